package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
)

// ClaimReaper releases events whose worker died mid-claim. A claim
// carries a lease expiry; once it passes, the event moves back to
// retrying and its job becomes visible again, so a crash can delay an
// event but never lose it.
type ClaimReaper struct {
	events    ledger.Repository
	jobs      queue.Repository
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewClaimReaper(events ledger.Repository, jobs queue.Repository, interval time.Duration, batchSize int, logger *zap.Logger) *ClaimReaper {
	return &ClaimReaper{
		events:    events,
		jobs:      jobs,
		logger:    logger.Named("claim.reaper"),
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *ClaimReaper) Run(ctx context.Context) {
	if err := r.reap(ctx); err != nil {
		r.logger.Error("reap_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.reap(ctx); err != nil {
				r.logger.Error("reap_failed", zap.Error(err))
			}
		}
	}
}

func (r *ClaimReaper) reap(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := r.events.ListExpiredClaims(ctx, now, r.batchSize)
	if err != nil {
		return err
	}

	for _, evt := range expired {
		r.release(ctx, evt, now)
	}
	return nil
}

func (r *ClaimReaper) release(ctx context.Context, evt *ledger.WebhookEvent, now time.Time) {
	if err := r.events.MarkRetrying(ctx, evt.EventID, "claim lease expired"); err != nil {
		r.logger.Warn("reap_mark_retrying_failed",
			zap.Error(err),
			zap.String("event_id", evt.EventID),
		)
		return
	}
	if err := r.jobs.Release(ctx, evt.EventID, now); err != nil {
		r.logger.Warn("reap_job_release_failed",
			zap.Error(err),
			zap.String("event_id", evt.EventID),
		)
		return
	}
	r.logger.Info("expired_claim_released",
		zap.String("event_id", evt.EventID),
		zap.String("event_type", evt.EventType),
		zap.Int("attempts", evt.Attempts),
	)
}
