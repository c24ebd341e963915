package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seq(n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * step
	}
	return out
}

func TestToMilliseconds(t *testing.T) {
	tests := []struct {
		name  string
		in    []float64
		rule  string
		first float64
		last  float64
	}{
		{"milliseconds by range", seq(20, 100), "ms", 0, 1900},
		{"milliseconds by delta", seq(5, 8), "ms", 0, 32},
		{"seconds", []float64{1, 2, 3}, "seconds", 1000, 3000},
		{"frames", seq(701, 1), "frames", 0, 700 * frameMs},
		{"reindexed", []float64{0, 0.05, 0.1, 0.15}, "reindexed", 0, 3 * frameMs},
		{"fallback", []float64{0, 0.1, 0.2, 300}, "ms_fallback", 0, 300},
		{"short", []float64{42}, "short", 42, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := toMilliseconds(tt.in)
			assert.Equal(t, tt.rule, rule)
			switch rule {
			case "ms", "ms_fallback", "short":
				// already in milliseconds: values pass through untouched
				assert.Equal(t, tt.in, got)
			}
			assert.InDelta(t, tt.first, got[0], 1e-9)
			assert.InDelta(t, tt.last, got[len(got)-1], 1e-9)
		})
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}
