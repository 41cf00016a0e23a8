package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hudsor01/tenant-flow-sub014/internal/deadletter"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/pkg/snowflake"
)

// DeadLetterRepository implements deadletter.Repository on Postgres.
type DeadLetterRepository struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewDeadLetterRepository(db *gorm.DB, node *snowflake.Node) *DeadLetterRepository {
	return &DeadLetterRepository{db: db, node: node}
}

// Record marks the ledger row dead and inserts the entry in one
// transaction. The conditional UPDATE decides the winner when workers
// race: only the caller whose UPDATE actually transitioned the row
// observes created=true.
func (r *DeadLetterRepository) Record(ctx context.Context, entry *deadletter.Entry) (bool, error) {
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ledger.WebhookEvent{}).
			Where("event_id = ? AND status IN ?", entry.EventID,
				[]ledger.Status{ledger.StatusClaimed, ledger.StatusProcessing, ledger.StatusRetrying}).
			Updates(map[string]any{
				"status":           ledger.StatusDead,
				"last_error":       entry.FinalError,
				"lease_expires_at": nil,
				"updated_at":       time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		created = true
		if entry.ID == 0 {
			entry.ID = r.node.GenerateID()
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(entry).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]*deadletter.Entry, error) {
	query := r.db.WithContext(ctx).Order("dead_lettered_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []*deadletter.Entry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *DeadLetterRepository) FindByEventID(ctx context.Context, eventID string) (*deadletter.Entry, error) {
	var entry deadletter.Entry
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
