package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
)

// LedgerRepository implements ledger.Repository on Postgres. Every
// transition is a conditional UPDATE guarded by the current status, so
// concurrent workers resolve races in the database rather than in
// process.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Claim(ctx context.Context, eventID string, leaseFor time.Duration) (*ledger.WebhookEvent, bool, error) {
	now := time.Now().UTC()
	expiry := now.Add(leaseFor)

	var rows []ledger.WebhookEvent
	err := r.db.WithContext(ctx).Raw(
		`UPDATE webhook_events
		 SET status = ?,
		     attempts = attempts + 1,
		     last_attempt_at = ?,
		     lease_expires_at = ?,
		     updated_at = ?
		 WHERE event_id = ?
		   AND status IN (?, ?)
		 RETURNING *`,
		ledger.StatusClaimed,
		now,
		expiry,
		now,
		eventID,
		ledger.StatusReceived,
		ledger.StatusRetrying,
	).Scan(&rows).Error
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return &rows[0], true, nil
}

func (r *LedgerRepository) MarkProcessing(ctx context.Context, eventID string) error {
	return r.transition(ctx, eventID, []ledger.Status{ledger.StatusClaimed}, map[string]any{
		"status": ledger.StatusProcessing,
	})
}

func (r *LedgerRepository) MarkCompleted(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	return r.transition(ctx, eventID,
		[]ledger.Status{ledger.StatusClaimed, ledger.StatusProcessing},
		map[string]any{
			"status":           ledger.StatusCompleted,
			"completed_at":     now,
			"lease_expires_at": nil,
			"last_error":       "",
		})
}

func (r *LedgerRepository) MarkRetrying(ctx context.Context, eventID string, lastError string) error {
	return r.transition(ctx, eventID,
		[]ledger.Status{ledger.StatusClaimed, ledger.StatusProcessing},
		map[string]any{
			"status":           ledger.StatusRetrying,
			"last_error":       lastError,
			"lease_expires_at": nil,
		})
}

func (r *LedgerRepository) MarkDeadForRequeue(ctx context.Context, eventID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&ledger.WebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, ledger.StatusDead).
		Updates(map[string]any{
			"status":     ledger.StatusRetrying,
			"attempts":   0,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *LedgerRepository) FindByEventID(ctx context.Context, eventID string) (*ledger.WebhookEvent, error) {
	var row ledger.WebhookEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *LedgerRepository) ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*ledger.WebhookEvent, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ? AND lease_expires_at <= ?",
			[]ledger.Status{ledger.StatusClaimed, ledger.StatusProcessing}, now).
		Order("lease_expires_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []*ledger.WebhookEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LedgerRepository) transition(ctx context.Context, eventID string, from []ledger.Status, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&ledger.WebhookEvent{}).
		Where("event_id = ? AND status IN ?", eventID, from).
		Updates(updates).Error
}
