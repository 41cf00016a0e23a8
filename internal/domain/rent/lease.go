package rent

import "time"

// AutopayStatus is the state of a lease's autopay subscription with the
// payment processor.
type AutopayStatus string

const (
	AutopayInactive AutopayStatus = "inactive"
	AutopayActive   AutopayStatus = "active"
	AutopayCanceled AutopayStatus = "canceled"
)

// Lease is the minimal projection of the CRUD-owned leases table that
// webhook handlers mutate. The full entity (unit, terms, documents) is
// owned by the property-management domain and out of scope here.
type Lease struct {
	ID                    int64         `gorm:"primaryKey"`
	OrgID                 int64         `gorm:"not null;index"`
	TenantID              int64         `gorm:"not null"`
	BalanceCents          int64         `gorm:"not null;default:0"`
	AutopaySubscriptionID string        `gorm:"type:varchar(255);index"`
	AutopayStatus         AutopayStatus `gorm:"type:varchar(20);not null;default:'inactive'"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (Lease) TableName() string {
	return "leases"
}
