package deadletter

import "time"

// Entry records an event that exhausted its retries or failed
// terminally. Created once per event; the stored payload allows an
// operator to requeue after fixing the underlying cause.
type Entry struct {
	ID             int64  `gorm:"primaryKey"`
	EventID        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType      string `gorm:"type:varchar(100);not null"`
	Attempts       int    `gorm:"not null"`
	FinalError     string `gorm:"type:text;not null"`
	Payload        []byte `gorm:"type:jsonb"`
	DeadLetteredAt time.Time
	CreatedAt      time.Time
}

func (Entry) TableName() string {
	return "webhook_dead_letters"
}
