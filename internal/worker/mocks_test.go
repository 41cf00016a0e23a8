package worker

import (
	"context"
	"sync"
	"time"

	"github.com/hudsor01/tenant-flow-sub014/internal/alert"
	"github.com/hudsor01/tenant-flow-sub014/internal/deadletter"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
)

// memLedger is an in-memory ledger with the same conditional-transition
// semantics as the Postgres implementation.
type memLedger struct {
	mu   sync.Mutex
	rows map[string]*ledger.WebhookEvent
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]*ledger.WebhookEvent)}
}

func (m *memLedger) seed(eventID, eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[eventID] = &ledger.WebhookEvent{
		ID:         int64(len(m.rows) + 1),
		EventID:    eventID,
		EventType:  eventType,
		Status:     ledger.StatusReceived,
		ReceivedAt: time.Now().UTC(),
	}
}

func (m *memLedger) get(eventID string) ledger.WebhookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[eventID]
}

func (m *memLedger) Claim(ctx context.Context, eventID string, leaseFor time.Duration) (*ledger.WebhookEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[eventID]
	if !ok {
		return nil, false, nil
	}
	if row.Status != ledger.StatusReceived && row.Status != ledger.StatusRetrying {
		return nil, false, nil
	}

	now := time.Now().UTC()
	expiry := now.Add(leaseFor)
	row.Status = ledger.StatusClaimed
	row.Attempts++
	row.LastAttemptAt = &now
	row.LeaseExpiresAt = &expiry

	copied := *row
	return &copied, true, nil
}

func (m *memLedger) MarkProcessing(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[eventID]; ok && row.Status == ledger.StatusClaimed {
		row.Status = ledger.StatusProcessing
	}
	return nil
}

func (m *memLedger) MarkCompleted(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[eventID]; ok {
		now := time.Now().UTC()
		row.Status = ledger.StatusCompleted
		row.CompletedAt = &now
		row.LeaseExpiresAt = nil
	}
	return nil
}

func (m *memLedger) MarkRetrying(ctx context.Context, eventID string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[eventID]; ok {
		row.Status = ledger.StatusRetrying
		row.LastError = lastError
		row.LeaseExpiresAt = nil
	}
	return nil
}

func (m *memLedger) markDead(eventID, finalError string) bool {
	row, ok := m.rows[eventID]
	if !ok {
		return false
	}
	if row.Status != ledger.StatusClaimed && row.Status != ledger.StatusProcessing && row.Status != ledger.StatusRetrying {
		return false
	}
	row.Status = ledger.StatusDead
	row.LastError = finalError
	row.LeaseExpiresAt = nil
	return true
}

func (m *memLedger) MarkDeadForRequeue(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[eventID]
	if !ok || row.Status != ledger.StatusDead {
		return false, nil
	}
	row.Status = ledger.StatusRetrying
	row.Attempts = 0
	return true, nil
}

func (m *memLedger) FindByEventID(ctx context.Context, eventID string) (*ledger.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[eventID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (m *memLedger) ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*ledger.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.WebhookEvent
	for _, row := range m.rows {
		if row.Status != ledger.StatusClaimed && row.Status != ledger.StatusProcessing {
			continue
		}
		if row.LeaseExpiresAt == nil || row.LeaseExpiresAt.After(now) {
			continue
		}
		copied := *row
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// memQueue is an in-memory job queue with lock-on-dequeue semantics.
type memQueue struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*queue.Job
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(map[int64]*queue.Job)}
}

func (m *memQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.jobs {
		if existing.EventID == job.EventID {
			return nil
		}
	}
	m.nextID++
	copied := *job
	copied.ID = m.nextID
	m.jobs[copied.ID] = &copied
	return nil
}

func (m *memQueue) Dequeue(ctx context.Context, now time.Time) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.LockedAt != nil || job.AvailableAt.After(now) {
			continue
		}
		locked := now
		job.LockedAt = &locked
		copied := *job
		return &copied, nil
	}
	return nil, nil
}

func (m *memQueue) Retry(ctx context.Context, jobID int64, attempt int, availableAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.Attempt = attempt
		job.AvailableAt = availableAt
		job.LockedAt = nil
	}
	return nil
}

func (m *memQueue) Release(ctx context.Context, eventID string, availableAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.EventID == eventID {
			job.AvailableAt = availableAt
			job.LockedAt = nil
		}
	}
	return nil
}

func (m *memQueue) Delete(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memQueue) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// memDeadLetters couples entry inserts to the ledger's dead transition,
// mirroring the atomic Record of the Postgres repository.
type memDeadLetters struct {
	mu      sync.Mutex
	ledger  *memLedger
	entries map[string]*deadletter.Entry
}

func newMemDeadLetters(l *memLedger) *memDeadLetters {
	return &memDeadLetters{ledger: l, entries: make(map[string]*deadletter.Entry)}
}

func (m *memDeadLetters) Record(ctx context.Context, entry *deadletter.Entry) (bool, error) {
	m.ledger.mu.Lock()
	transitioned := m.ledger.markDead(entry.EventID, entry.FinalError)
	m.ledger.mu.Unlock()
	if !transitioned {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.EventID]; !exists {
		copied := *entry
		copied.ID = int64(len(m.entries) + 1)
		m.entries[entry.EventID] = &copied
	}
	return true, nil
}

func (m *memDeadLetters) List(ctx context.Context, limit int) ([]*deadletter.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*deadletter.Entry
	for _, e := range m.entries {
		copied := *e
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memDeadLetters) FindByEventID(ctx context.Context, eventID string) (*deadletter.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[eventID]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (m *memDeadLetters) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// countingSink records alert emissions.
type countingSink struct {
	mu     sync.Mutex
	events []alert.Event
}

func (s *countingSink) Emit(ctx context.Context, evt alert.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
