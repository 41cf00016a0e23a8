package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/audit"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/rent"
	"github.com/hudsor01/tenant-flow-sub014/internal/webhook"
	"github.com/hudsor01/tenant-flow-sub014/internal/worker"
)

// subscriptionData is the payload of subscription.* events.
type subscriptionData struct {
	SubscriptionID string `json:"subscription_id"`
	LeaseID        int64  `json:"lease_id"`
}

// SubscriptionHandler applies autopay subscription confirmations to
// leases. A confirmation can arrive before its lease exists; the
// handler then parks a pending link and completes, and the
// reconciliation sweep applies the change once the lease shows up.
type SubscriptionHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewSubscriptionHandler(db *gorm.DB, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{db: db, logger: logger.Named("subscription_handler")}
}

func (h *SubscriptionHandler) Handle(ctx context.Context, evt webhook.Event) error {
	var data subscriptionData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return worker.Terminal(fmt.Errorf("decode subscription data: %w", err))
	}
	if data.SubscriptionID == "" {
		return worker.Terminal(fmt.Errorf("subscription event %s missing subscription_id", evt.ID))
	}

	var status rent.AutopayStatus
	var action string
	switch evt.Type {
	case "subscription.activated":
		status, action = rent.AutopayActive, audit.ActionAutopayActivated
	case "subscription.canceled":
		status, action = rent.AutopayCanceled, audit.ActionAutopayCanceled
	default:
		return worker.Terminal(fmt.Errorf("subscription handler registered for unexpected type %q", evt.Type))
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lease, err := h.findLease(tx, data)
		if err != nil {
			return err
		}
		if lease == nil {
			return h.parkPendingLink(tx, evt, data)
		}

		if err := tx.Create(&audit.Entry{
			EventID:     evt.ID,
			EventType:   evt.Type,
			SubjectType: "lease",
			SubjectID:   fmt.Sprintf("%d", lease.ID),
			Action:      action,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&rent.Lease{}).
			Where("id = ?", lease.ID).
			Updates(map[string]any{
				"autopay_subscription_id": data.SubscriptionID,
				"autopay_status":          status,
			}).Error
	})
}

// findLease resolves the event's subject by explicit lease ID first,
// then by an already linked subscription ID. Nil means not found.
func (h *SubscriptionHandler) findLease(tx *gorm.DB, data subscriptionData) (*rent.Lease, error) {
	var lease rent.Lease
	if data.LeaseID != 0 {
		err := tx.First(&lease, data.LeaseID).Error
		if err == nil {
			return &lease, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	err := tx.Where("autopay_subscription_id = ?", data.SubscriptionID).First(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

func (h *SubscriptionHandler) parkPendingLink(tx *gorm.DB, evt webhook.Event, data subscriptionData) error {
	h.logger.Warn("subscription_subject_missing",
		zap.String("event_id", evt.ID),
		zap.String("subscription_id", data.SubscriptionID),
	)

	if err := tx.Create(&audit.Entry{
		EventID:     evt.ID,
		EventType:   evt.Type,
		SubjectType: "subscription",
		SubjectID:   data.SubscriptionID,
		Action:      audit.ActionSkippedMissingOwner,
		Note:        "no lease for subscription, parked for reconciliation",
	}).Error; err != nil {
		return err
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&rent.PendingSubscriptionLink{
		EventID:        evt.ID,
		EventType:      evt.Type,
		SubscriptionID: data.SubscriptionID,
		Payload:        evt.Data,
	}).Error
}
