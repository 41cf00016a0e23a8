package queue

import (
	"context"
	"time"
)

// Repository is the durable job queue. Dequeue locks rather than
// deletes, so a crashed worker's job survives and is released again by
// the claim reaper once its ledger lease expires.
type Repository interface {
	// Enqueue inserts a job. Duplicate event IDs are ignored, mirroring
	// the ledger's insert-if-absent semantics at the edge.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue locks and returns the oldest due job, or nil when none is
	// available. Concurrent workers never receive the same job.
	Dequeue(ctx context.Context, now time.Time) (*Job, error)

	// Retry schedules another attempt: bumps the attempt counter, sets
	// the next availability and unlocks the row.
	Retry(ctx context.Context, jobID int64, attempt int, availableAt time.Time) error

	// Release unlocks a job by event ID so it becomes available again,
	// used when a claim lease expires.
	Release(ctx context.Context, eventID string, availableAt time.Time) error

	// Delete removes a job after a terminal outcome (completed or dead).
	Delete(ctx context.Context, jobID int64) error
}
