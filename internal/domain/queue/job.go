package queue

import "time"

// Job is the envelope placed on the durable work queue. Payload is
// opaque to the queue and interpreted only by handlers. Rows live in the
// queue's own storage and nowhere else.
type Job struct {
	ID            int64  `gorm:"primaryKey"`
	EventID       string `gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType     string `gorm:"type:varchar(100);not null"`
	Payload       []byte `gorm:"type:jsonb;not null"`
	Attempt       int    `gorm:"not null;default:0"`
	CorrelationID string `gorm:"type:varchar(64)"`
	AvailableAt   time.Time
	LockedAt      *time.Time
	CreatedAt     time.Time
}

func (Job) TableName() string {
	return "webhook_jobs"
}
