package behavior

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// WindowLen is the number of rows fed to the scorer.
	WindowLen = 300

	// Channels is the number of features per row: x, y, vx, vy, speed, accel, oob.
	Channels = 7

	// minDtMs floors per-sample delta-times before differentiation.
	minDtMs = 1.0
)

// Channel indexes of a window row.
const (
	ChX = iota
	ChY
	ChVX
	ChVY
	ChSpeed
	ChAccel
	ChOOB
)

var (
	// ErrNoUsableTelemetry is the parent of every extraction failure.
	ErrNoUsableTelemetry = errors.New("no usable telemetry")

	// ErrNoCanvasROI means the canvas rectangle is missing or has no area.
	ErrNoCanvasROI = fmt.Errorf("%w: canvas roi missing", ErrNoUsableTelemetry)

	// ErrNoSamples means no pointer sample survived flattening.
	ErrNoSamples = fmt.Errorf("%w: no pointer samples", ErrNoUsableTelemetry)
)

// Window is a fixed-size T×7 feature matrix, row-major.
type Window [WindowLen][Channels]float32

// Stats summarise the telemetry for logs and metrics. They are not scored.
type Stats struct {
	OOBRateCanvas  float64 `json:"oob_rate_canvas"`
	OOBRateWrapper float64 `json:"oob_rate_wrapper"`
	SpeedMean      float64 `json:"speed_mean"`
	NEvents        int     `json:"n_events"`
	HasCanvas      bool    `json:"roi_has_canvas"`
	HasWrapper     bool    `json:"roi_has_wrapper"`
	TimeRule       string  `json:"time_rule,omitempty"`
}

// Extract builds the feature window for one session's telemetry. It is a
// pure function of its inputs.
func Extract(meta Meta, events []Event) (*Window, Stats, error) {
	canvas := meta.rect(CanvasROIKey)
	wrapper := meta.rect(WrapperROIKey)
	stats := Stats{HasCanvas: canvas != nil, HasWrapper: wrapper != nil}
	if canvas == nil {
		return nil, stats, ErrNoCanvasROI
	}

	samples := flatten(events)
	if len(samples) == 0 {
		return nil, stats, ErrNoSamples
	}

	n := len(samples)
	xs := make([]float32, n)
	ys := make([]float32, n)
	oob := make([]float32, n)
	ts := make([]float64, n)
	var oobCanvas, oobWrapper int
	for i, s := range samples {
		x, y, out := canvas.normalize(s.X, s.Y)
		xs[i], ys[i] = float32(x), float32(y)
		if out {
			oob[i] = 1
			oobCanvas++
		}
		if wrapper != nil {
			if _, _, outW := wrapper.normalize(s.X, s.Y); outW {
				oobWrapper++
			}
		}
		ts[i] = s.T
	}

	ts, stats.TimeRule = toMilliseconds(ts)
	rows := kinematics(xs, ys, oob, ts)

	w := assemble(rows)
	stats.NEvents = n
	stats.OOBRateCanvas = float64(oobCanvas) / float64(n)
	stats.OOBRateWrapper = float64(oobWrapper) / float64(n)
	stats.SpeedMean = w.columnMean(ChSpeed)
	return w, stats, nil
}

// flatten expands every event into samples and sorts them by time. Samples
// with equal timestamps keep their arrival order.
func flatten(events []Event) []Sample {
	var out []Sample
	for _, ev := range events {
		out = ev.samples(out)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}

// kinematics derives [x, y, vx, vy, speed, accel, oob] per sample. The first
// sample's derivatives are zero.
func kinematics(xs, ys, oob []float32, ts []float64) [][Channels]float32 {
	n := len(xs)
	rows := make([][Channels]float32, n)
	var prevSpeed float64
	for i := 0; i < n; i++ {
		var vx, vy, speed, accel float64
		if i > 0 {
			dtS := math.Max(ts[i]-ts[i-1], minDtMs) / 1000
			vx = float64(xs[i]-xs[i-1]) / dtS
			vy = float64(ys[i]-ys[i-1]) / dtS
			speed = math.Hypot(vx, vy)
			accel = (speed - prevSpeed) / dtS
		}
		prevSpeed = speed
		rows[i] = [Channels]float32{
			ChX:     xs[i],
			ChY:     ys[i],
			ChVX:    float32(vx),
			ChVY:    float32(vy),
			ChSpeed: float32(speed),
			ChAccel: float32(accel),
			ChOOB:   oob[i],
		}
	}
	return rows
}

// assemble zero-pads short sequences at the end and keeps the most recent
// WindowLen rows of long ones.
func assemble(rows [][Channels]float32) *Window {
	var w Window
	if len(rows) > WindowLen {
		rows = rows[len(rows)-WindowLen:]
	}
	copy(w[:], rows)
	return &w
}

// columnMean averages one channel over all WindowLen rows, padding included.
func (w *Window) columnMean(ch int) float64 {
	var sum float64
	for i := range w {
		sum += float64(w[i][ch])
	}
	return sum / WindowLen
}
