package behavior

import "sort"

// timeRule is one step of the time-unit correction. Rules are evaluated in
// order and the first match wins.
type timeRule struct {
	name  string
	match func(s timeSummary) bool
	apply func(ts []float64) []float64
}

// timeSummary is what the rules look at.
type timeSummary struct {
	rng   float64 // last - first
	medDT float64 // median of consecutive deltas
}

func summarize(ts []float64) timeSummary {
	dts := make([]float64, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		dts[i-1] = ts[i] - ts[i-1]
	}
	return timeSummary{rng: ts[len(ts)-1] - ts[0], medDT: median(dts)}
}

// median matches numpy: the mean of the two middle values for even lengths.
func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func scaleBy(k float64) func([]float64) []float64 {
	return func(ts []float64) []float64 {
		out := make([]float64, len(ts))
		for i, t := range ts {
			out[i] = t * k
		}
		return out
	}
}

func unchanged(ts []float64) []float64 { return ts }

// frameMs is the assumed frame period (~60Hz) for frame-index timestamps.
const frameMs = 16.0

var timeRules = []timeRule{
	{
		name:  "ms",
		match: func(s timeSummary) bool { return s.rng >= 1000 || s.medDT >= 5 },
		apply: unchanged,
	},
	{
		name:  "seconds",
		match: func(s timeSummary) bool { return s.medDT >= 0.2 && s.medDT <= 5 && s.rng <= 600 },
		apply: scaleBy(1000),
	},
	{
		name:  "frames",
		match: func(s timeSummary) bool { return s.medDT >= 0.8 && s.medDT <= 1.2 },
		apply: scaleBy(frameMs),
	},
	{
		name:  "reindexed",
		match: func(s timeSummary) bool { return s.rng < 100 },
		apply: func(ts []float64) []float64 {
			out := make([]float64, len(ts))
			for i := range out {
				out[i] = float64(i) * frameMs
			}
			return out
		},
	},
	{
		name:  "ms_fallback",
		match: func(timeSummary) bool { return true },
		apply: unchanged,
	},
}

// toMilliseconds rescales a sorted timestamp sequence to milliseconds and
// reports the rule that fired. Sequences shorter than two are returned as is.
func toMilliseconds(ts []float64) ([]float64, string) {
	if len(ts) < 2 {
		return ts, "short"
	}
	s := summarize(ts)
	for _, r := range timeRules {
		if r.match(s) {
			return r.apply(ts), r.name
		}
	}
	return ts, "ms_fallback"
}
