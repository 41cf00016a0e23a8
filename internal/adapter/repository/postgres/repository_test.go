package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hudsor01/tenant-flow-sub014/internal/deadletter"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
	"github.com/hudsor01/tenant-flow-sub014/pkg/snowflake"
	"github.com/hudsor01/tenant-flow-sub014/pkg/testhelper"
)

func setupRepositories(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := testhelper.SetupPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Teardown(context.Background())
	})

	db, err := gorm.Open(postgres.Open(container.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledger.WebhookEvent{},
		&queue.Job{},
		&deadletter.Entry{},
	))

	node, err := snowflake.NewNode()
	require.NoError(t, err)
	return db, node
}

func seedEvent(t *testing.T, db *gorm.DB, node *snowflake.Node, eventID string, status ledger.Status) {
	t.Helper()
	require.NoError(t, db.Create(&ledger.WebhookEvent{
		ID:         node.GenerateID(),
		EventID:    eventID,
		EventType:  "payment.succeeded",
		Status:     status,
		ReceivedAt: time.Now().UTC(),
	}).Error)
}

func TestLedgerRepository_ClaimIsExclusive(t *testing.T) {
	db, node := setupRepositories(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	seedEvent(t, db, node, "evt_claim", ledger.StatusReceived)

	const contenders = 8
	var wg sync.WaitGroup
	wins := make(chan *ledger.WebhookEvent, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row, claimed, err := repo.Claim(ctx, "evt_claim", time.Minute)
			assert.NoError(t, err)
			if claimed {
				wins <- row
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []*ledger.WebhookEvent
	for row := range wins {
		winners = append(winners, row)
	}
	require.Len(t, winners, 1, "exactly one contender may win the claim")
	assert.Equal(t, 1, winners[0].Attempts)
	assert.Equal(t, ledger.StatusClaimed, winners[0].Status)
	require.NotNil(t, winners[0].LeaseExpiresAt)
}

func TestLedgerRepository_Transitions(t *testing.T) {
	db, node := setupRepositories(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	seedEvent(t, db, node, "evt_life", ledger.StatusReceived)

	_, claimed, err := repo.Claim(ctx, "evt_life", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, repo.MarkProcessing(ctx, "evt_life"))
	require.NoError(t, repo.MarkRetrying(ctx, "evt_life", "transient"))

	row, err := repo.FindByEventID(ctx, "evt_life")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRetrying, row.Status)
	assert.Equal(t, "transient", row.LastError)
	assert.Nil(t, row.LeaseExpiresAt)

	// A retrying event can be claimed again, incrementing attempts.
	again, claimed, err := repo.Claim(ctx, "evt_life", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, 2, again.Attempts)

	require.NoError(t, repo.MarkCompleted(ctx, "evt_life"))

	// Completed rows can never be claimed again.
	_, claimed, err = repo.Claim(ctx, "evt_life", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestLedgerRepository_ListExpiredClaims(t *testing.T) {
	db, node := setupRepositories(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	seedEvent(t, db, node, "evt_exp", ledger.StatusReceived)
	_, claimed, err := repo.Claim(ctx, "evt_exp", -time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	expired, err := repo.ListExpiredClaims(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "evt_exp", expired[0].EventID)
}

func TestQueueRepository_EnqueueDeduplicatesAndDequeueLocks(t *testing.T) {
	db, node := setupRepositories(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	job := &queue.Job{
		ID:          node.GenerateID(),
		EventID:     "evt_q",
		EventType:   "payment.succeeded",
		Payload:     []byte(`{"id":"evt_q"}`),
		AvailableAt: now.Add(-time.Second),
	}
	require.NoError(t, repo.Enqueue(ctx, job))

	dup := *job
	dup.ID = node.GenerateID()
	require.NoError(t, repo.Enqueue(ctx, &dup))

	var count int64
	require.NoError(t, db.Model(&queue.Job{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "duplicate event IDs collapse to one job")

	first, err := repo.Dequeue(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "evt_q", first.EventID)

	// The locked job is invisible to a second consumer.
	second, err := repo.Dequeue(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, second)

	// Release makes it visible again.
	require.NoError(t, repo.Release(ctx, "evt_q", now))
	third, err := repo.Dequeue(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, third)

	require.NoError(t, repo.Delete(ctx, third.ID))
	gone, err := repo.Dequeue(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestQueueRepository_RetryReschedules(t *testing.T) {
	db, node := setupRepositories(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Enqueue(ctx, &queue.Job{
		ID:          node.GenerateID(),
		EventID:     "evt_r",
		EventType:   "payment.failed",
		Payload:     []byte(`{"id":"evt_r"}`),
		AvailableAt: now.Add(-time.Second),
	}))

	job, err := repo.Dequeue(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, job)

	next := now.Add(time.Minute)
	require.NoError(t, repo.Retry(ctx, job.ID, 2, next))

	early, err := repo.Dequeue(ctx, now)
	require.NoError(t, err)
	assert.Nil(t, early, "job stays invisible until its backoff elapses")

	late, err := repo.Dequeue(ctx, next.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Equal(t, 2, late.Attempt)
}

func TestIntakeStore_DuplicateWritesNothing(t *testing.T) {
	db, node := setupRepositories(t)
	store := NewIntakeStore(db, node)
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := store.ReceiveAndEnqueue(ctx,
		&ledger.WebhookEvent{EventID: "evt_in", EventType: "payment.succeeded", Status: ledger.StatusReceived, ReceivedAt: now},
		&queue.Job{EventID: "evt_in", EventType: "payment.succeeded", Payload: []byte(`{}`), AvailableAt: now},
	)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.ReceiveAndEnqueue(ctx,
		&ledger.WebhookEvent{EventID: "evt_in", EventType: "payment.succeeded", Status: ledger.StatusReceived, ReceivedAt: now},
		&queue.Job{EventID: "evt_in", EventType: "payment.succeeded", Payload: []byte(`{}`), AvailableAt: now},
	)
	require.NoError(t, err)
	assert.False(t, created)

	var events, jobs int64
	require.NoError(t, db.Model(&ledger.WebhookEvent{}).Count(&events).Error)
	require.NoError(t, db.Model(&queue.Job{}).Count(&jobs).Error)
	assert.Equal(t, int64(1), events)
	assert.Equal(t, int64(1), jobs)
}

func TestDeadLetterRepository_RecordWinsOnce(t *testing.T) {
	db, node := setupRepositories(t)
	ledgerRepo := NewLedgerRepository(db)
	dlq := NewDeadLetterRepository(db, node)
	ctx := context.Background()

	seedEvent(t, db, node, "evt_dead", ledger.StatusReceived)
	_, claimed, err := ledgerRepo.Claim(ctx, "evt_dead", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	entry := &deadletter.Entry{
		EventID:        "evt_dead",
		EventType:      "payment.succeeded",
		Attempts:       5,
		FinalError:     "persistent failure",
		Payload:        []byte(`{"id":"evt_dead"}`),
		DeadLetteredAt: time.Now().UTC(),
	}
	created, err := dlq.Record(ctx, entry)
	require.NoError(t, err)
	assert.True(t, created)

	row, err := ledgerRepo.FindByEventID(ctx, "evt_dead")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDead, row.Status)

	// A second record call is a no-op: the row is already dead.
	again, err := dlq.Record(ctx, &deadletter.Entry{
		EventID:    "evt_dead",
		EventType:  "payment.succeeded",
		Attempts:   5,
		FinalError: "persistent failure",
	})
	require.NoError(t, err)
	assert.False(t, again)

	// Operator requeue flips dead back to retrying exactly once.
	requeued, err := ledgerRepo.MarkDeadForRequeue(ctx, "evt_dead")
	require.NoError(t, err)
	assert.True(t, requeued)
	requeued, err = ledgerRepo.MarkDeadForRequeue(ctx, "evt_dead")
	require.NoError(t, err)
	assert.False(t, requeued)

	found, err := dlq.FindByEventID(ctx, "evt_dead")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 5, found.Attempts)
}
