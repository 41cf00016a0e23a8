package handler

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
	"github.com/hudsor01/tenant-flow-sub014/internal/webhook"
	"github.com/hudsor01/tenant-flow-sub014/internal/worker"
)

// paymentData is the payload of payment.* events.
type paymentData struct {
	ChargeID      string `json:"charge_id"`
	LeaseID       int64  `json:"lease_id"`
	AmountCents   int64  `json:"amount_cents"`
	FailureReason string `json:"failure_reason"`
}

// PaymentHandler applies charge settlement events to rent payments and
// lease balances. Each event mutates domain storage in one transaction;
// the worker's claim protocol ensures the handler runs at most once per
// event, so no mutation here needs its own idempotence guard.
type PaymentHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPaymentHandler(db *gorm.DB, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{db: db, logger: logger.Named("payment_handler")}
}

func (h *PaymentHandler) Handle(ctx context.Context, evt webhook.Event) error {
	data, err := parsePaymentData(evt)
	if err != nil {
		return err
	}

	switch evt.Type {
	case "payment.succeeded":
		return h.settle(ctx, evt, data)
	case "payment.failed":
		return h.fail(ctx, evt, data)
	case "payment.refunded":
		return h.refund(ctx, evt, data)
	default:
		return worker.Terminal(fmt.Errorf("payment handler registered for unexpected type %q", evt.Type))
	}
}

func (h *PaymentHandler) settle(ctx context.Context, evt webhook.Event, data paymentData) error {
	if data.LeaseID == 0 {
		return worker.Terminal(fmt.Errorf("payment event %s missing lease_id", evt.ID))
	}
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lease rent.Lease
		if err := tx.First(&lease, data.LeaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return h.skipMissingLease(tx, evt, data)
			}
			return err
		}

		if err := tx.Create(&audit.Entry{
			EventID:     evt.ID,
			EventType:   evt.Type,
			SubjectType: "lease",
			SubjectID:   fmt.Sprintf("%d", lease.ID),
			Action:      audit.ActionPaymentSettled,
		}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		payment := rent.RentPayment{
			LeaseID:          lease.ID,
			ProviderChargeID: data.ChargeID,
			AmountCents:      data.AmountCents,
			Status:           rent.PaymentPaid,
			PaidAt:           &now,
		}
		result := tx.Where("provider_charge_id = ?", data.ChargeID).
			Assign(map[string]any{
				"status":         rent.PaymentPaid,
				"paid_at":        now,
				"failure_reason": "",
			}).
			FirstOrCreate(&payment)
		if result.Error != nil {
			return result.Error
		}

		return tx.Model(&rent.Lease{}).
			Where("id = ?", lease.ID).
			Update("balance_cents", gorm.Expr("balance_cents - ?", data.AmountCents)).Error
	})
}

func (h *PaymentHandler) fail(ctx context.Context, evt webhook.Event, data paymentData) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment rent.RentPayment
		err := tx.Where("provider_charge_id = ?", data.ChargeID).First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return h.skipMissingCharge(tx, evt, data)
		}
		if err != nil {
			return err
		}

		if err := tx.Create(&audit.Entry{
			EventID:     evt.ID,
			EventType:   evt.Type,
			SubjectType: "rent_payment",
			SubjectID:   data.ChargeID,
			Action:      audit.ActionPaymentFailed,
			Note:        data.FailureReason,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&rent.RentPayment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{
				"status":         rent.PaymentFailed,
				"failure_reason": data.FailureReason,
			}).Error
	})
}

func (h *PaymentHandler) refund(ctx context.Context, evt webhook.Event, data paymentData) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment rent.RentPayment
		err := tx.Where("provider_charge_id = ?", data.ChargeID).First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return h.skipMissingCharge(tx, evt, data)
		}
		if err != nil {
			return err
		}

		if err := tx.Create(&audit.Entry{
			EventID:     evt.ID,
			EventType:   evt.Type,
			SubjectType: "rent_payment",
			SubjectID:   data.ChargeID,
			Action:      audit.ActionPaymentRefunded,
		}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&rent.RentPayment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{
				"status":      rent.PaymentRefunded,
				"refunded_at": now,
			}).Error; err != nil {
			return err
		}

		// A refund reinstates the amount on the lease balance.
		return tx.Model(&rent.Lease{}).
			Where("id = ?", payment.LeaseID).
			Update("balance_cents", gorm.Expr("balance_cents + ?", payment.AmountCents)).Error
	})
}

func (h *PaymentHandler) skipMissingLease(tx *gorm.DB, evt webhook.Event, data paymentData) error {
	h.logger.Warn("payment_subject_missing",
		zap.String("event_id", evt.ID),
		zap.Int64("lease_id", data.LeaseID),
	)
	return tx.Create(&audit.Entry{
		EventID:     evt.ID,
		EventType:   evt.Type,
		SubjectType: "lease",
		SubjectID:   fmt.Sprintf("%d", data.LeaseID),
		Action:      audit.ActionSkippedMissingOwner,
		Note:        "lease not found, event acknowledged without mutation",
	}).Error
}

func (h *PaymentHandler) skipMissingCharge(tx *gorm.DB, evt webhook.Event, data paymentData) error {
	h.logger.Warn("payment_subject_missing",
		zap.String("event_id", evt.ID),
		zap.String("charge_id", data.ChargeID),
	)
	return tx.Create(&audit.Entry{
		EventID:     evt.ID,
		EventType:   evt.Type,
		SubjectType: "rent_payment",
		SubjectID:   data.ChargeID,
		Action:      audit.ActionSkippedMissingOwner,
		Note:        "rent payment not found, event acknowledged without mutation",
	}).Error
}

func parsePaymentData(evt webhook.Event) (paymentData, error) {
	var data paymentData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return data, worker.Terminal(fmt.Errorf("decode payment data: %w", err))
	}
	if data.ChargeID == "" {
		return data, worker.Terminal(fmt.Errorf("payment event %s missing charge_id", evt.ID))
	}
	return data, nil
}
