package behavior

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Calibration kinds.
const (
	CalibrationTemperature = "temperature"
	CalibrationPlatt       = "platt"
	CalibrationDefault     = "default"
)

// Calibration maps a raw logit to a calibrated logit.
type Calibration struct {
	Kind string
	T    float64
	A    float64
	B    float64
}

// Apply transforms a raw logit. Temperatures below 1 are raised to 1 so that
// a bad calibration file cannot sharpen scores.
func (c Calibration) Apply(logit float64) float64 {
	switch c.Kind {
	case CalibrationPlatt:
		return c.A*logit + c.B
	default:
		return logit / math.Max(1, c.T)
	}
}

type calibrationDoc struct {
	Type string   `json:"type" yaml:"type"`
	T    *float64 `json:"T" yaml:"T"`
	A    *float64 `json:"a" yaml:"a"`
	B    *float64 `json:"b" yaml:"b"`
}

func parseCalibration(path string, data []byte) (Calibration, bool, error) {
	var doc calibrationDoc
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return Calibration{}, false, err
	}

	switch strings.ToLower(doc.Type) {
	case CalibrationTemperature:
		if doc.T == nil {
			return Calibration{}, false, fmt.Errorf("temperature calibration without T")
		}
		return Calibration{Kind: CalibrationTemperature, T: *doc.T}, true, nil
	case CalibrationPlatt:
		if doc.A == nil || doc.B == nil {
			return Calibration{}, false, fmt.Errorf("platt calibration needs a and b")
		}
		return Calibration{Kind: CalibrationPlatt, A: *doc.A, B: *doc.B}, true, nil
	default:
		// unknown type: use the default temperature
		return Calibration{}, false, nil
	}
}

type calibrationSnapshot struct {
	cal     Calibration
	modTime time.Time
	loaded  bool
}

// CalibrationSource serves the current calibration, re-reading its file
// whenever the file's modification time changes. Reads never fail: on any
// error the last good calibration (or the default temperature) is returned.
type CalibrationSource struct {
	path     string
	fallback Calibration
	log      *zap.Logger

	snap  atomic.Pointer[calibrationSnapshot]
	group singleflight.Group
}

// NewCalibrationSource creates a source for path. defaultTemperature is used
// until a valid file is read.
func NewCalibrationSource(path string, defaultTemperature float64, log *zap.Logger) *CalibrationSource {
	return &CalibrationSource{
		path:     path,
		fallback: Calibration{Kind: CalibrationDefault, T: defaultTemperature},
		log:      log,
	}
}

// Current returns the calibration to apply right now.
func (s *CalibrationSource) Current() Calibration {
	if s.path == "" {
		return s.fallback
	}

	snap := s.snap.Load()
	info, err := os.Stat(s.path)
	if err != nil {
		return s.lastGood(snap)
	}
	if snap != nil && snap.modTime.Equal(info.ModTime()) {
		return s.lastGood(snap)
	}

	v, _, _ := s.group.Do(s.path, func() (interface{}, error) {
		return s.reload(snap, info.ModTime()), nil
	})
	return s.lastGood(v.(*calibrationSnapshot))
}

func (s *CalibrationSource) reload(prev *calibrationSnapshot, modTime time.Time) *calibrationSnapshot {
	next := &calibrationSnapshot{modTime: modTime}
	if prev != nil {
		next.cal, next.loaded = prev.cal, prev.loaded
	}

	data, err := os.ReadFile(s.path)
	if err == nil {
		var cal Calibration
		var ok bool
		cal, ok, err = parseCalibration(s.path, data)
		if err == nil {
			next.cal, next.loaded = cal, ok
		}
	}
	if err != nil {
		s.log.Warn("Calibration reload failed, keeping previous",
			zap.String("path", s.path),
			zap.Error(err),
		)
	} else {
		s.log.Info("Calibration loaded",
			zap.String("path", s.path),
			zap.String("kind", next.cal.Kind),
			zap.Bool("from_file", next.loaded),
		)
	}

	s.snap.Store(next)
	return next
}

func (s *CalibrationSource) lastGood(snap *calibrationSnapshot) Calibration {
	if snap == nil || !snap.loaded {
		return s.fallback
	}
	return snap.cal
}

// LoadThreshold reads {"val_threshold": x} from path, returning fallback if
// the file is missing or malformed.
func LoadThreshold(path string, fallback float64) (float64, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback, err
	}
	var doc struct {
		ValThreshold *float64 `json:"val_threshold"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fallback, err
	}
	if doc.ValThreshold == nil {
		return fallback, nil
	}
	return *doc.ValThreshold, nil
}
