package behavior

import (
	"errors"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrModelUnavailable is returned when no network weights could be loaded.
var ErrModelUnavailable = errors.New("behavior model unavailable")

// logitClip bounds the calibrated logit before the logistic function.
const logitClip = 3.0

// Network produces a raw logit for a feature window.
type Network interface {
	Forward(w *Window) float64
}

// NetworkSource hands out the network to use for one scoring call.
type NetworkSource interface {
	Network() (Network, error)
}

// loadedModel pairs the serving network with the weights file mtime it was
// checked against. After a failed load net is the previous network (nil when
// nothing ever loaded) and modTime is the broken file's, so an unchanged
// broken file is not parsed again.
type loadedModel struct {
	net     Network
	modTime time.Time
}

func (m *loadedModel) network() (Network, error) {
	if m == nil || m.net == nil {
		return nil, ErrModelUnavailable
	}
	return m.net, nil
}

// ModelHandle is a hot-swappable reference to the loaded network. A scoring
// call keeps the *Model it acquired even if the handle is swapped meanwhile;
// the old model is released once no call holds it.
type ModelHandle struct {
	path string
	log  *zap.Logger

	current atomic.Pointer[loadedModel]
	group   singleflight.Group
}

// NewModelHandle creates a handle that lazily loads weights from path and
// reloads them when the file's modification time changes.
func NewModelHandle(path string, log *zap.Logger) *ModelHandle {
	return &ModelHandle{path: path, log: log}
}

// Swap installs net directly, bypassing the file.
func (h *ModelHandle) Swap(net Network) {
	h.current.Store(&loadedModel{net: net})
}

// Network returns the current network, loading or reloading it if the
// weights file changed. A failed reload keeps serving the previous model.
func (h *ModelHandle) Network() (Network, error) {
	cur := h.current.Load()
	if h.path == "" {
		return cur.network()
	}

	info, err := os.Stat(h.path)
	if err != nil {
		return cur.network()
	}
	if cur != nil && cur.modTime.Equal(info.ModTime()) {
		return cur.network()
	}

	v, _, _ := h.group.Do(h.path, func() (interface{}, error) {
		next := &loadedModel{modTime: info.ModTime()}
		m, err := LoadModel(h.path)
		if err != nil {
			if cur != nil {
				next.net = cur.net
			}
			h.log.Warn("Behavior model load failed, keeping previous",
				zap.String("path", h.path),
				zap.Time("mod_time", info.ModTime()),
				zap.Error(err),
			)
		} else {
			next.net = m
			h.log.Info("Behavior model loaded", zap.String("path", h.path))
		}
		h.current.Store(next)
		return next, nil
	})
	return v.(*loadedModel).network()
}

// Score is the scorer's output for one window.
type Score struct {
	Logit       float64
	Calibrated  float64
	Probability float64
	Threshold   float64
	Calibration string
	Verdict     model.Verdict
}

// Scorer turns a feature window into a bot probability and verdict.
type Scorer struct {
	networks    NetworkSource
	calibration *CalibrationSource
	threshold   float64
}

// NewScorer creates a scorer. Probabilities at or above threshold are bots.
func NewScorer(networks NetworkSource, calibration *CalibrationSource, threshold float64) *Scorer {
	return &Scorer{networks: networks, calibration: calibration, threshold: threshold}
}

// Score runs the network, calibrates the logit and applies the threshold.
func (s *Scorer) Score(w *Window) (Score, error) {
	net, err := s.networks.Network()
	if err != nil {
		return Score{}, err
	}

	logit := net.Forward(w)
	cal := s.calibration.Current()
	z := cal.Apply(logit)
	if math.IsNaN(z) {
		z = 0
	}
	p := sigmoid(math.Max(-logitClip, math.Min(logitClip, z)))

	verdict := model.VerdictHuman
	if p >= s.threshold {
		verdict = model.VerdictBot
	}
	return Score{
		Logit:       logit,
		Calibrated:  z,
		Probability: p,
		Threshold:   s.threshold,
		Calibration: cal.Kind,
		Verdict:     verdict,
	}, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
