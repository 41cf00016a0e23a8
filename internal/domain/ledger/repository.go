package ledger

import (
	"context"
	"time"
)

// Repository is the idempotency ledger: the single source of truth for
// whether an event has been claimed or processed. All transitions are
// conditional writes pushed down to the storage layer, which is what
// keeps concurrent workers safe without in-process locks.
type Repository interface {
	// Claim atomically transitions received/retrying to claimed,
	// increments the attempt counter and stamps a lease expiry. It
	// returns the updated row and whether this caller won the claim.
	Claim(ctx context.Context, eventID string, leaseFor time.Duration) (*WebhookEvent, bool, error)

	// MarkProcessing transitions claimed to processing before the
	// handler is invoked.
	MarkProcessing(ctx context.Context, eventID string) error

	// MarkCompleted transitions processing to completed. Completed rows
	// are terminal and never reprocessed.
	MarkCompleted(ctx context.Context, eventID string) error

	// MarkRetrying releases the claim after a recoverable failure so
	// another worker can pick the event up after the backoff delay.
	MarkRetrying(ctx context.Context, eventID string, lastError string) error

	// MarkDeadForRequeue conditionally moves a dead event back to
	// retrying with its attempt counter reset. Used by the operator
	// requeue path only.
	MarkDeadForRequeue(ctx context.Context, eventID string) (bool, error)

	// FindByEventID returns the row for an event, or nil when absent.
	FindByEventID(ctx context.Context, eventID string) (*WebhookEvent, error)

	// ListExpiredClaims returns events stuck in claimed/processing past
	// their lease expiry, oldest first.
	ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*WebhookEvent, error)
}
