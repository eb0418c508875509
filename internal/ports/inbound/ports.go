// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

// ConvertRequest is a point-in-time conversion query as received from a caller.
// All fields are raw strings; validation is the converter's job.
type ConvertRequest struct {
	From string
	To   string

	// At is an optional ISO-8601 target time. Empty means "now".
	At string
}

// Converter answers point-in-time conversion queries.
type Converter interface {
	Convert(ctx context.Context, req ConvertRequest) (*entity.Conversion, error)
}

// RunResult summarizes one ingestion run.
type RunResult struct {
	StartedAt  time.Time
	FinishedAt time.Time

	// Fetched is the number of observations aggregated from all providers.
	Fetched int

	// Inserted is the number of observations written to the store.
	Inserted int

	// FailedProviders names the providers whose fetch failed during this run.
	FailedProviders []string
}

// Ingester is the single "run once" entry point that triggers call on every tick.
type Ingester interface {
	RunOnce(ctx context.Context) (*RunResult, error)
}

// Job is the callback a Scheduler invokes on every tick.
type Job func(ctx context.Context) error

// RetryPolicy bounds how a Scheduler retries a failed job.
type RetryPolicy struct {
	// Limit is the number of retries after the first attempt.
	Limit int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// Backoff doubles the delay after each retry when true; otherwise it stays constant.
	Backoff bool
}

// Scheduler drives a Job on a fixed cadence. Schedule blocks until ctx is cancelled.
type Scheduler interface {
	Schedule(ctx context.Context, cadence time.Duration, policy RetryPolicy, job Job) error
}

// HealthChecker defines the interface for services that can report readiness and liveness.
type HealthChecker interface {
	// IsReady returns true once the service has completed its first successful unit of work.
	IsReady() bool

	// IsHealthy returns true while the service keeps completing work on schedule.
	IsHealthy() bool
}
