package usecase

import "time"

// Writers of terminal logs
const (
	SourceResolver = "resolver"
	SourceSweeper  = "sweeper"
)

// Recorder receives service-level measurements. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveIssued(result string)
	ObserveOutcome(source, outcome string)
	ObserveScore(verdict string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveIssued(string) {}
func (nopRecorder) ObserveOutcome(string, string) {}
func (nopRecorder) ObserveScore(string, time.Duration) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
