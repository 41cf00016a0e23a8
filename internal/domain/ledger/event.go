package ledger

import "time"

// Status is the lifecycle state of a webhook event.
type Status string

const (
	StatusReceived   Status = "received"
	StatusClaimed    Status = "claimed"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRetrying   Status = "retrying"
	StatusDead       Status = "dead"
)

// WebhookEvent is the durable receipt for one distinct processor event.
// EventID is the external idempotency key; exactly one row exists per ID.
type WebhookEvent struct {
	ID             int64  `gorm:"primaryKey"`
	EventID        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType      string `gorm:"type:varchar(100);not null"`
	Status         Status `gorm:"type:varchar(20);not null"`
	Attempts       int    `gorm:"not null;default:0"`
	LastError      string `gorm:"type:text"`
	ReceivedAt     time.Time
	LastAttemptAt  *time.Time
	CompletedAt    *time.Time
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
