package rent

import "time"

// PendingSubscriptionLink records a subscription confirmation that
// arrived before its lease existed. The handler completes normally and
// the reconciliation sweep applies the activation once the lease shows
// up through the separate creation path.
type PendingSubscriptionLink struct {
	ID             int64  `gorm:"primaryKey"`
	EventID        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType      string `gorm:"type:varchar(100);not null"`
	SubscriptionID string `gorm:"type:varchar(255);not null;index"`
	Payload        []byte `gorm:"type:jsonb"`
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

func (PendingSubscriptionLink) TableName() string {
	return "pending_subscription_links"
}
