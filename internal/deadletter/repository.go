package deadletter

import "context"

// Repository persists dead-letter entries. Record performs the ledger's
// dead transition and the entry insert in one atomic operation and
// reports whether this call won the transition, so the caller can emit
// exactly one alert per dead event.
type Repository interface {
	Record(ctx context.Context, entry *Entry) (bool, error)
	List(ctx context.Context, limit int) ([]*Entry, error)
	FindByEventID(ctx context.Context, eventID string) (*Entry, error)
}
