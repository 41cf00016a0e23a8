package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/audit"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/rent"
)

// SubscriptionReconciler sweeps pending subscription links: events that
// referenced a lease before it existed. Each sweep looks for the lease
// again and, when found, applies the parked change and resolves the
// link in the same transaction.
type SubscriptionReconciler struct {
	db        *gorm.DB
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewSubscriptionReconciler(db *gorm.DB, interval time.Duration, batchSize int, logger *zap.Logger) *SubscriptionReconciler {
	return &SubscriptionReconciler{
		db:        db,
		logger:    logger.Named("subscription.reconciler"),
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *SubscriptionReconciler) Run(ctx context.Context) {
	if err := r.reconcile(ctx); err != nil {
		r.logger.Error("reconcile_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.reconcile(ctx); err != nil {
				r.logger.Error("reconcile_failed", zap.Error(err))
			}
		}
	}
}

func (r *SubscriptionReconciler) reconcile(ctx context.Context) error {
	var links []rent.PendingSubscriptionLink
	query := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at asc")
	if r.batchSize > 0 {
		query = query.Limit(r.batchSize)
	}
	if err := query.Find(&links).Error; err != nil {
		return err
	}

	for _, link := range links {
		r.resolveLink(ctx, link)
	}
	return nil
}

func (r *SubscriptionReconciler) resolveLink(ctx context.Context, link rent.PendingSubscriptionLink) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := r.findLease(tx, link)
		if err != nil {
			return err
		}
		if lease == nil {
			// Lease still absent; the link stays parked for the next sweep.
			return nil
		}

		status := rent.AutopayActive
		if link.EventType == "subscription.canceled" {
			status = rent.AutopayCanceled
		}

		if err := tx.Model(&rent.Lease{}).
			Where("id = ?", lease.ID).
			Updates(map[string]any{
				"autopay_subscription_id": link.SubscriptionID,
				"autopay_status":          status,
			}).Error; err != nil {
			return err
		}

		if err := tx.Create(&audit.Entry{
			EventID:     link.EventID,
			EventType:   link.EventType,
			SubjectType: "lease",
			SubjectID:   fmt.Sprintf("%d", lease.ID),
			Action:      audit.ActionLinkReconciled,
			Note:        "pending subscription link applied",
		}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		result := tx.Model(&rent.PendingSubscriptionLink{}).
			Where("id = ? AND resolved_at IS NULL", link.ID).
			Update("resolved_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		r.logger.Info("pending_link_reconciled",
			zap.String("event_id", link.EventID),
			zap.String("subscription_id", link.SubscriptionID),
			zap.Int64("lease_id", lease.ID),
		)
		return nil
	})
	if err != nil {
		r.logger.Warn("pending_link_reconcile_failed",
			zap.Error(err),
			zap.String("event_id", link.EventID),
		)
	}
}

// findLease mirrors the handler's subject resolution: a lease already
// carrying the subscription ID, or the lease ID parked in the event
// payload. A lease created after the event parked typically has no
// subscription linkage yet, so the payload's lease_id is the usual path.
func (r *SubscriptionReconciler) findLease(tx *gorm.DB, link rent.PendingSubscriptionLink) (*rent.Lease, error) {
	var lease rent.Lease
	err := tx.Where("autopay_subscription_id = ?", link.SubscriptionID).First(&lease).Error
	if err == nil {
		return &lease, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var data struct {
		LeaseID int64 `json:"lease_id"`
	}
	if jsonErr := json.Unmarshal(link.Payload, &data); jsonErr != nil || data.LeaseID == 0 {
		return nil, nil
	}

	err = tx.First(&lease, data.LeaseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}
