package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending       OrderStatus = "pending"
	OrderCompleted     OrderStatus = "completed"
	OrderCancelled     OrderStatus = "cancelled"
	OrderPaymentFailed OrderStatus = "payment_failed"
)

type Order struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	UserID             uint            `gorm:"index" json:"user_id"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(10,2)" json:"total_amount"`
	Status             OrderStatus     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	PaymentMethod      string          `gorm:"type:varchar(50)" json:"payment_method"`
	RecipientName      string          `json:"recipient_name"`
	RecipientPhone     string          `json:"recipient_phone"`
	ShippingAddress    string          `json:"shipping_address"`
	ShippingCity       string          `json:"shipping_city"`
	ShippingPostalCode string          `json:"shipping_postal_code"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// OrderItem snapshots the unit price at order time so later catalog price
// changes never alter an existing order's total.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"index" json:"order_id"`
	ProductID uint            `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
}
