package behavior

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixedLogit float64

func (f fixedLogit) Forward(*Window) float64 { return float64(f) }

func scorerWith(logit float64, threshold float64) *Scorer {
	h := NewModelHandle("", zap.NewNop())
	h.Swap(fixedLogit(logit))
	return NewScorer(h, NewCalibrationSource("", 2.0, zap.NewNop()), threshold)
}

func TestScorer(t *testing.T) {
	tests := []struct {
		name      string
		logit     float64
		threshold float64
		wantP     float64
		verdict   model.Verdict
	}{
		{"calibrated bot", 4, 0.5, sigmoid(2), model.VerdictBot},
		{"calibrated human", -4, 0.5, sigmoid(-2), model.VerdictHuman},
		{"clipped high", 40, 0.5, sigmoid(3), model.VerdictBot},
		{"clipped low", -40, 0.5, sigmoid(-3), model.VerdictHuman},
		{"threshold is inclusive", 0, 0.5, 0.5, model.VerdictBot},
		{"custom threshold", 4, 0.9, sigmoid(2), model.VerdictHuman},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := scorerWith(tt.logit, tt.threshold).Score(&Window{})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantP, score.Probability, 1e-12)
			assert.Equal(t, tt.verdict, score.Verdict)
			assert.Equal(t, tt.logit, score.Logit)
			assert.Equal(t, CalibrationDefault, score.Calibration)
		})
	}
}

func TestScorer_NaNLogit(t *testing.T) {
	score, err := scorerWith(math.NaN(), 0.5).Score(&Window{})
	require.NoError(t, err)
	assert.Equal(t, 0.5, score.Probability)
}

func TestScorer_ModelUnavailable(t *testing.T) {
	s := NewScorer(NewModelHandle("", zap.NewNop()), NewCalibrationSource("", 2, zap.NewNop()), 0.5)
	_, err := s.Score(&Window{})
	assert.ErrorIs(t, err, ErrModelUnavailable)

	missing := NewModelHandle(filepath.Join(t.TempDir(), "weights.json"), zap.NewNop())
	_, err = missing.Network()
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestModelHandle_HotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	writeWeights(t, path, passXWeights(0, 1))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	h := NewModelHandle(path, zap.NewNop())
	net, err := h.Network()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, net.Forward(&Window{}), 1e-9)

	// the same mtime serves the cached model
	again, err := h.Network()
	require.NoError(t, err)
	assert.Same(t, net.(*Model), again.(*Model))

	writeWeights(t, path, passXWeights(0, -2))
	newer := time.Now().Add(-30 * time.Minute)
	require.NoError(t, os.Chtimes(path, newer, newer))

	net, err = h.Network()
	require.NoError(t, err)
	assert.InDelta(t, -2.0, net.Forward(&Window{}), 1e-9)

	// a broken file keeps the previous model
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	net, err = h.Network()
	require.NoError(t, err)
	assert.InDelta(t, -2.0, net.Forward(&Window{}), 1e-9)
}

func TestModelHandle_BrokenFileParsedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	writeWeights(t, path, passXWeights(0, 1))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	core, logs := observer.New(zapcore.WarnLevel)
	h := NewModelHandle(path, zap.New(core))
	_, err := h.Network()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	broken := time.Now().Add(-30 * time.Minute)
	require.NoError(t, os.Chtimes(path, broken, broken))

	for i := 0; i < 100; i++ {
		net, err := h.Network()
		require.NoError(t, err)
		assert.InDelta(t, 1.0, net.Forward(&Window{}), 1e-9)
	}
	assert.Equal(t, 1, logs.FilterMessageSnippet("load failed").Len())

	// a fixed file with a new mtime is picked up again
	writeWeights(t, path, passXWeights(0, 3))
	fixed := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(path, fixed, fixed))

	net, err := h.Network()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, net.Forward(&Window{}), 1e-9)
}

func TestModelHandle_BrokenFileNeverLoaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	core, logs := observer.New(zapcore.WarnLevel)
	h := NewModelHandle(path, zap.New(core))
	for i := 0; i < 10; i++ {
		_, err := h.Network()
		assert.ErrorIs(t, err, ErrModelUnavailable)
	}
	assert.Equal(t, 1, logs.Len())
}

func TestModelHandle_ConcurrentScoring(t *testing.T) {
	h := NewModelHandle("", zap.NewNop())
	h.Swap(fixedLogit(1))
	s := NewScorer(h, NewCalibrationSource("", 1, zap.NewNop()), 0.5)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				h.Swap(fixedLogit(-1))
				return
			}
			score, err := s.Score(&Window{})
			assert.NoError(t, err)
			assert.Contains(t, []float64{sigmoid(1), sigmoid(-1)}, score.Probability)
		}(i)
	}
	wg.Wait()
}

func TestAnalyzer_Assess(t *testing.T) {
	a := NewAnalyzer(scorerWith(4, 0.5))

	telemetry := &model.TelemetryInput{
		Meta: json.RawMessage(`{"device":"mouse","roi_map":{"canvas-container":{"left":0,"top":0,"w":100,"h":100}}}`),
		Events: []json.RawMessage{
			json.RawMessage(`{"type":"pointerdown","t":1000,"x_raw":10,"y_raw":10}`),
			json.RawMessage(`{"type":"moves","payload":{"base_t":1010,"dts":[16,16],"xrs":[20,30],"yrs":[20,30]}}`),
			json.RawMessage(`{"type":"pointerup","t":1050,"x_raw":30,"y_raw":30}`),
		},
	}

	assessment, stats, err := a.Assess(telemetry)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictBot, assessment.Score.Verdict)
	assert.Equal(t, 4, stats.NEvents)
	assert.Equal(t, stats, assessment.Stats)
}

func TestAnalyzer_NoUsableTelemetry(t *testing.T) {
	a := NewAnalyzer(scorerWith(0, 0.5))

	tests := []struct {
		name      string
		telemetry *model.TelemetryInput
	}{
		{"bad meta", &model.TelemetryInput{Meta: json.RawMessage(`"x"`), Events: []json.RawMessage{json.RawMessage(`{}`)}}},
		{"bad event", &model.TelemetryInput{Meta: json.RawMessage(`{}`), Events: []json.RawMessage{json.RawMessage(`[`)}}},
		{"no canvas", &model.TelemetryInput{Meta: json.RawMessage(`{"roi_map":{}}`), Events: []json.RawMessage{json.RawMessage(`{"type":"click","t":1,"x_raw":1,"y_raw":1}`)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := a.Assess(tt.telemetry)
			assert.ErrorIs(t, err, ErrNoUsableTelemetry)
		})
	}
}
