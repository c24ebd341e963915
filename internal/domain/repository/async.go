package repository

import (
	"context"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
)

// JobQueue is the asynchronous execution boundary between the verify
// endpoint and the workers that run the decision engine.
type JobQueue interface {
	// Submit enqueues the job and returns its opaque handle
	Submit(ctx context.Context, job *model.VerifyJob) (string, error)

	// Status returns the current state of a handle
	Status(ctx context.Context, handle string) (*model.JobStatus, error)

	// Next blocks until a job is available or ctx is done
	Next(ctx context.Context) (*model.VerifyJob, error)

	Complete(ctx context.Context, handle string, result *model.VerificationResult) error
	Fail(ctx context.Context, handle string, jobErr *model.JobError) error
}

// TelemetryArchive stores raw telemetry for offline analysis. Implementations
// must not block the caller and must swallow their own failures.
type TelemetryArchive interface {
	Archive(clientToken string, telemetry *model.TelemetryInput)
}

// GeoLocator maps a client IP to an ISO country code
type GeoLocator interface {
	Country(ip string) (string, bool)
}
