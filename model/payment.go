package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentExpired   PaymentStatus = "expired"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is permitted out of s.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentCompleted, PaymentCancelled, PaymentExpired, PaymentFailed:
		return true
	}
	return false
}

// Payment is the single payment record allowed per order. The uniqueness of
// OrderID is enforced by the database index, not just application checks, so
// two concurrent checkouts cannot both insert one.
type Payment struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrderID        uint            `gorm:"uniqueIndex" json:"order_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	Method         string          `gorm:"type:varchar(50)" json:"method"`
	Status         PaymentStatus   `gorm:"type:varchar(20);default:'pending'" json:"status"`
	ExternalRef    *string         `gorm:"index" json:"external_ref,omitempty"`
	GatewayPayload string          `gorm:"type:text" json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
