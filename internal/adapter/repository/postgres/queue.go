package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
)

// QueueRepository implements queue.Repository on Postgres. Dequeue uses
// FOR UPDATE SKIP LOCKED so concurrent workers never contend on the
// same row; the lock stamp keeps the job invisible until a terminal
// outcome deletes it or a lease expiry releases it.
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Enqueue(ctx context.Context, job *queue.Job) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(job).Error
}

func (r *QueueRepository) Dequeue(ctx context.Context, now time.Time) (*queue.Job, error) {
	var jobs []queue.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT * FROM webhook_jobs
			 WHERE locked_at IS NULL
			   AND available_at <= ?
			 ORDER BY available_at ASC, id ASC
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED`,
			now,
		).Scan(&jobs).Error; err != nil {
			return err
		}

		if len(jobs) == 0 {
			return nil
		}

		return tx.Model(&queue.Job{}).
			Where("id = ?", jobs[0].ID).
			Update("locked_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	jobs[0].LockedAt = &now
	return &jobs[0], nil
}

func (r *QueueRepository) Retry(ctx context.Context, jobID int64, attempt int, availableAt time.Time) error {
	return r.db.WithContext(ctx).Model(&queue.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"attempt":      attempt,
			"available_at": availableAt,
			"locked_at":    nil,
		}).Error
}

func (r *QueueRepository) Release(ctx context.Context, eventID string, availableAt time.Time) error {
	return r.db.WithContext(ctx).Model(&queue.Job{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"available_at": availableAt,
			"locked_at":    nil,
		}).Error
}

func (r *QueueRepository) Delete(ctx context.Context, jobID int64) error {
	return r.db.WithContext(ctx).Delete(&queue.Job{}, jobID).Error
}
