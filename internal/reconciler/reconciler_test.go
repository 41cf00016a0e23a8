package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/audit"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/rent"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&rent.Lease{},
		&rent.PendingSubscriptionLink{},
		&audit.Entry{},
	))
	return db
}

func TestSubscriptionReconciler_AppliesParkedActivation(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&rent.PendingSubscriptionLink{
		EventID:        "evt_1",
		EventType:      "subscription.activated",
		SubscriptionID: "sub_1",
	}).Error)

	// The lease shows up later through its own creation path, already
	// carrying the processor's subscription ID.
	lease := &rent.Lease{
		OrgID:                 1,
		TenantID:              7,
		AutopaySubscriptionID: "sub_1",
		AutopayStatus:         rent.AutopayInactive,
	}
	require.NoError(t, db.Create(lease).Error)

	r := NewSubscriptionReconciler(db, time.Minute, 50, zap.NewNop())
	require.NoError(t, r.reconcile(context.Background()))

	var reloaded rent.Lease
	require.NoError(t, db.First(&reloaded, lease.ID).Error)
	assert.Equal(t, rent.AutopayActive, reloaded.AutopayStatus)

	var link rent.PendingSubscriptionLink
	require.NoError(t, db.Where("event_id = ?", "evt_1").First(&link).Error)
	require.NotNil(t, link.ResolvedAt)

	var entries []audit.Entry
	require.NoError(t, db.Where("event_id = ?", "evt_1").Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionLinkReconciled, entries[0].Action)

	// A second sweep is a no-op: the link is resolved.
	require.NoError(t, r.reconcile(context.Background()))
	require.NoError(t, db.Where("event_id = ?", "evt_1").Find(&entries).Error)
	assert.Len(t, entries, 1)
}

func TestSubscriptionReconciler_ResolvesByParkedLeaseID(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&rent.PendingSubscriptionLink{
		EventID:        "evt_4",
		EventType:      "subscription.activated",
		SubscriptionID: "sub_4",
		Payload:        []byte(`{"subscription_id":"sub_4","lease_id":77}`),
	}).Error)

	// The lease arrives without any autopay linkage; only the parked
	// payload's lease_id can tie the two together.
	lease := &rent.Lease{
		ID:            77,
		OrgID:         1,
		TenantID:      4,
		AutopayStatus: rent.AutopayInactive,
	}
	require.NoError(t, db.Create(lease).Error)

	r := NewSubscriptionReconciler(db, time.Minute, 50, zap.NewNop())
	require.NoError(t, r.reconcile(context.Background()))

	var reloaded rent.Lease
	require.NoError(t, db.First(&reloaded, int64(77)).Error)
	assert.Equal(t, rent.AutopayActive, reloaded.AutopayStatus)
	assert.Equal(t, "sub_4", reloaded.AutopaySubscriptionID)

	var link rent.PendingSubscriptionLink
	require.NoError(t, db.Where("event_id = ?", "evt_4").First(&link).Error)
	require.NotNil(t, link.ResolvedAt)
}

func TestSubscriptionReconciler_LeaseStillMissingStaysParked(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&rent.PendingSubscriptionLink{
		EventID:        "evt_2",
		EventType:      "subscription.activated",
		SubscriptionID: "sub_ghost",
	}).Error)

	r := NewSubscriptionReconciler(db, time.Minute, 50, zap.NewNop())
	require.NoError(t, r.reconcile(context.Background()))

	var link rent.PendingSubscriptionLink
	require.NoError(t, db.Where("event_id = ?", "evt_2").First(&link).Error)
	assert.Nil(t, link.ResolvedAt)
}

func TestSubscriptionReconciler_AppliesParkedCancellation(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&rent.PendingSubscriptionLink{
		EventID:        "evt_3",
		EventType:      "subscription.canceled",
		SubscriptionID: "sub_3",
	}).Error)
	lease := &rent.Lease{
		OrgID:                 1,
		TenantID:              9,
		AutopaySubscriptionID: "sub_3",
		AutopayStatus:         rent.AutopayActive,
	}
	require.NoError(t, db.Create(lease).Error)

	r := NewSubscriptionReconciler(db, time.Minute, 50, zap.NewNop())
	require.NoError(t, r.reconcile(context.Background()))

	var reloaded rent.Lease
	require.NoError(t, db.First(&reloaded, lease.ID).Error)
	assert.Equal(t, rent.AutopayCanceled, reloaded.AutopayStatus)
}

// reaperLedger records released claims for assertions.
type reaperLedger struct {
	mu      sync.Mutex
	expired []*ledger.WebhookEvent
	retried []string
}

func (f *reaperLedger) Claim(ctx context.Context, eventID string, leaseFor time.Duration) (*ledger.WebhookEvent, bool, error) {
	return nil, false, nil
}
func (f *reaperLedger) MarkProcessing(ctx context.Context, eventID string) error { return nil }
func (f *reaperLedger) MarkCompleted(ctx context.Context, eventID string) error  { return nil }
func (f *reaperLedger) MarkRetrying(ctx context.Context, eventID string, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, eventID)
	return nil
}
func (f *reaperLedger) MarkDeadForRequeue(ctx context.Context, eventID string) (bool, error) {
	return false, nil
}
func (f *reaperLedger) FindByEventID(ctx context.Context, eventID string) (*ledger.WebhookEvent, error) {
	return nil, nil
}
func (f *reaperLedger) ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*ledger.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired, nil
}

type reaperQueue struct {
	mu       sync.Mutex
	released []string
}

func (f *reaperQueue) Enqueue(ctx context.Context, job *queue.Job) error { return nil }
func (f *reaperQueue) Dequeue(ctx context.Context, now time.Time) (*queue.Job, error) {
	return nil, nil
}
func (f *reaperQueue) Retry(ctx context.Context, jobID int64, attempt int, availableAt time.Time) error {
	return nil
}
func (f *reaperQueue) Release(ctx context.Context, eventID string, availableAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, eventID)
	return nil
}
func (f *reaperQueue) Delete(ctx context.Context, jobID int64) error { return nil }

func TestClaimReaper_ReleasesExpiredClaims(t *testing.T) {
	expiry := time.Now().UTC().Add(-time.Minute)
	events := &reaperLedger{expired: []*ledger.WebhookEvent{
		{EventID: "evt_a", EventType: "payment.succeeded", Status: ledger.StatusClaimed, Attempts: 2, LeaseExpiresAt: &expiry},
		{EventID: "evt_b", EventType: "payment.failed", Status: ledger.StatusProcessing, Attempts: 1, LeaseExpiresAt: &expiry},
	}}
	jobs := &reaperQueue{}

	r := NewClaimReaper(events, jobs, time.Minute, 50, zap.NewNop())
	require.NoError(t, r.reap(context.Background()))

	assert.ElementsMatch(t, []string{"evt_a", "evt_b"}, events.retried)
	assert.ElementsMatch(t, []string{"evt_a", "evt_b"}, jobs.released)
}

func TestClaimReaper_NothingExpired(t *testing.T) {
	events := &reaperLedger{}
	jobs := &reaperQueue{}

	r := NewClaimReaper(events, jobs, time.Minute, 50, zap.NewNop())
	require.NoError(t, r.reap(context.Background()))

	assert.Empty(t, events.retried)
	assert.Empty(t, jobs.released)
}
