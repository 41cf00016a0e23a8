package audit

import "time"

// Handler actions the trail distinguishes. Skips are non-error notes:
// the referenced domain record did not exist yet when the event arrived.
const (
	ActionPaymentSettled      = "payment_settled"
	ActionPaymentFailed       = "payment_failed"
	ActionPaymentRefunded     = "payment_refunded"
	ActionAutopayActivated    = "autopay_activated"
	ActionAutopayCanceled     = "autopay_canceled"
	ActionSkippedMissingOwner = "skipped_missing_subject"
	ActionLinkReconciled      = "pending_link_reconciled"
)

// Entry is an append-only trace of which domain subject a webhook event
// touched. Handlers run with cross-tenant data access and no
// request-scoped authorization, so the trail is the only record of what
// was mutated on whose behalf. Rows are never updated or deleted.
type Entry struct {
	ID          int64  `gorm:"primaryKey"`
	EventID     string `gorm:"type:varchar(255);not null;index"`
	EventType   string `gorm:"type:varchar(100);not null"`
	SubjectType string `gorm:"type:varchar(50);not null"`
	SubjectID   string `gorm:"type:varchar(255);not null"`
	Action      string `gorm:"type:varchar(100);not null"`
	Note        string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (Entry) TableName() string {
	return "webhook_audit_entries"
}
