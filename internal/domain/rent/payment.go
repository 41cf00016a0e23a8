package rent

import "time"

// PaymentStatus is the settlement state of a rent payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// RentPayment is the projection of the CRUD-owned rent_payments table
// the settlement handlers mutate. ProviderChargeID is the processor's
// charge identifier referenced by payment events; the row may not exist
// yet when an event arrives out of order.
type RentPayment struct {
	ID               int64         `gorm:"primaryKey"`
	LeaseID          int64         `gorm:"not null;index"`
	ProviderChargeID string        `gorm:"type:varchar(255);not null;uniqueIndex"`
	AmountCents      int64         `gorm:"not null"`
	Status           PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	FailureReason    string        `gorm:"type:text"`
	PaidAt           *time.Time
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (RentPayment) TableName() string {
	return "rent_payments"
}
