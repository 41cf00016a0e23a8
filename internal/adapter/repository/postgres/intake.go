package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
	"github.com/hudsor01/tenant-flow-sub014/pkg/snowflake"
)

// IntakeStore implements intake.Store: ledger insert and job enqueue in
// one transaction. ON CONFLICT DO NOTHING on the ledger's event_id
// decides duplicates, and the job insert is skipped when this delivery
// lost, so a replayed delivery writes nothing at all.
type IntakeStore struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewIntakeStore(db *gorm.DB, node *snowflake.Node) *IntakeStore {
	return &IntakeStore{db: db, node: node}
}

func (s *IntakeStore) ReceiveAndEnqueue(ctx context.Context, event *ledger.WebhookEvent, job *queue.Job) (bool, error) {
	created := false
	if event.ID == 0 {
		event.ID = s.node.GenerateID()
	}
	if job.ID == 0 {
		job.ID = s.node.GenerateID()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(event)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		created = true
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(job).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
