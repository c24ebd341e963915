package behavior

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// rewrite replaces the file and moves its mtime forward so reloads see it
func rewrite(t *testing.T, path, content string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	ts := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestCalibrationApply(t *testing.T) {
	tests := []struct {
		name string
		cal  Calibration
		in   float64
		want float64
	}{
		{"temperature", Calibration{Kind: CalibrationTemperature, T: 4}, 2, 0.5},
		{"temperature below one", Calibration{Kind: CalibrationTemperature, T: 0.5}, 2, 2},
		{"platt", Calibration{Kind: CalibrationPlatt, A: 2, B: -1}, 3, 5},
		{"default", Calibration{Kind: CalibrationDefault, T: 2}, 3, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.cal.Apply(tt.in), 1e-12)
		})
	}
}

func TestCalibrationSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	src := NewCalibrationSource(path, 2.0, zap.NewNop())

	// missing file: default temperature
	assert.Equal(t, Calibration{Kind: CalibrationDefault, T: 2}, src.Current())

	rewrite(t, path, `{"type":"temperature","T":3.5}`, 3*time.Hour)
	assert.Equal(t, Calibration{Kind: CalibrationTemperature, T: 3.5}, src.Current())

	rewrite(t, path, `{"type":"platt","a":1.5,"b":0.25}`, 2*time.Hour)
	assert.Equal(t, Calibration{Kind: CalibrationPlatt, A: 1.5, B: 0.25}, src.Current())

	// a broken file keeps the last good calibration
	rewrite(t, path, `{"type":`, time.Hour)
	assert.Equal(t, Calibration{Kind: CalibrationPlatt, A: 1.5, B: 0.25}, src.Current())

	// an unknown type falls back to the default temperature
	rewrite(t, path, `{"type":"isotonic"}`, 30*time.Minute)
	assert.Equal(t, Calibration{Kind: CalibrationDefault, T: 2}, src.Current())

	// a removed file keeps serving what was last read
	require.NoError(t, os.Remove(path))
	assert.Equal(t, Calibration{Kind: CalibrationDefault, T: 2}, src.Current())
}

func TestCalibrationSource_Incomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	src := NewCalibrationSource(path, 2.0, zap.NewNop())

	rewrite(t, path, `{"type":"platt","a":1}`, time.Hour)
	assert.Equal(t, CalibrationDefault, src.Current().Kind)

	rewrite(t, path, `{"type":"temperature"}`, 30*time.Minute)
	assert.Equal(t, CalibrationDefault, src.Current().Kind)
}

func TestCalibrationSource_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	rewrite(t, path, "type: temperature\nT: 1.75\n", time.Hour)

	src := NewCalibrationSource(path, 2.0, zap.NewNop())
	assert.Equal(t, Calibration{Kind: CalibrationTemperature, T: 1.75}, src.Current())
}

func TestCalibrationSource_NoPath(t *testing.T) {
	src := NewCalibrationSource("", 1.25, zap.NewNop())
	assert.Equal(t, Calibration{Kind: CalibrationDefault, T: 1.25}, src.Current())
}

func TestLoadThreshold(t *testing.T) {
	dir := t.TempDir()

	v, err := LoadThreshold("", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	v, err = LoadThreshold(filepath.Join(dir, "missing.json"), 0.5)
	assert.Error(t, err)
	assert.Equal(t, 0.5, v)

	path := filepath.Join(dir, "thresholds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"val_threshold":0.73,"val_auc":0.9}`), 0o644))
	v, err = LoadThreshold(path, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.73, v)

	require.NoError(t, os.WriteFile(path, []byte(`{"val_auc":0.9}`), 0o644))
	v, err = LoadThreshold(path, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	require.NoError(t, os.WriteFile(path, []byte(`nope`), 0o644))
	v, err = LoadThreshold(path, 0.5)
	assert.Error(t, err)
	assert.Equal(t, 0.5, v)
}
