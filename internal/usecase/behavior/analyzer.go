package behavior

import (
	"fmt"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
)

// Assessment is the behavioral signal for one verification attempt.
type Assessment struct {
	Score    Score
	Stats    Stats
	Duration time.Duration
}

// Analyzer decodes raw telemetry, extracts the feature window and scores it.
type Analyzer struct {
	scorer *Scorer
}

// NewAnalyzer creates an analyzer around scorer.
func NewAnalyzer(scorer *Scorer) *Analyzer {
	return &Analyzer{scorer: scorer}
}

// Assess returns the behavioral signal. Any error means "no signal"; the
// returned Stats are still filled as far as extraction got.
func (a *Analyzer) Assess(telemetry *model.TelemetryInput) (*Assessment, Stats, error) {
	start := time.Now()

	meta, err := DecodeMeta(telemetry.Meta)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrNoUsableTelemetry, err)
	}
	events, err := DecodeEvents(telemetry.Events)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%w: %v", ErrNoUsableTelemetry, err)
	}

	window, stats, err := Extract(meta, events)
	if err != nil {
		return nil, stats, err
	}

	score, err := a.scorer.Score(window)
	if err != nil {
		return nil, stats, err
	}
	return &Assessment{Score: score, Stats: stats, Duration: time.Since(start)}, stats, nil
}
