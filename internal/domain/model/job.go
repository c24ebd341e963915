package model

import (
	"encoding/json"
	"time"
)

// JobState is the observable state of an asynchronous verification.
type JobState string

const (
	JobPending JobState = "pending"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// VerifyJob is the payload handed across the async boundary.
type VerifyJob struct {
	Handle      string          `json:"handle"`
	ClientToken string          `json:"client_token"`
	Answer      string          `json:"answer"`
	IPAddress   string          `json:"ip_address,omitempty"`
	UserAgent   string          `json:"user_agent,omitempty"`
	Telemetry   *TelemetryInput `json:"telemetry,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// TelemetryInput is the raw behavioral payload as received from the widget.
// Meta and Events are kept as raw JSON so that the archive stores exactly what
// the client sent; decoding into typed events happens in the extractor.
type TelemetryInput struct {
	Meta   json.RawMessage   `json:"meta,omitempty"`
	Events []json.RawMessage `json:"events,omitempty"`
}

// Present reports whether both the ROI meta and at least one event were sent.
func (t *TelemetryInput) Present() bool {
	return t != nil && len(t.Meta) > 0 && string(t.Meta) != "null" && len(t.Events) > 0
}

// VerificationResult is the job body's return value.
type VerificationResult struct {
	Result     string   `json:"result"`
	Message    string   `json:"message"`
	Confidence *float64 `json:"confidence"`
	Verdict    *Verdict `json:"verdict"`
}

// JobError describes why a job failed.
type JobError struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// JobStatus is what a poller sees for a handle.
type JobStatus struct {
	Handle    string              `json:"handle"`
	State     JobState            `json:"state"`
	Result    *VerificationResult `json:"result,omitempty"`
	Error     *JobError           `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}
