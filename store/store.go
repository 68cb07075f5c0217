package store

import (
	"context"
	"errors"
	"time"

	"github.com/Capstone-2-FMSuggestion-System/backend/model"
)

var (
	// ErrNotFound is returned when an order, payment or product does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicatePayment is returned when a payment already exists for the
	// order. It surfaces the unique index on payments.order_id.
	ErrDuplicatePayment = errors.New("payment already exists for order")
)

// Store is the durable ledger of orders and payments. It is the single source
// of truth for business state; everything else (cache, gateway, events) is
// derived from it.
type Store interface {
	GetProduct(ctx context.Context, id uint) (*model.Product, error)

	CreateOrder(ctx context.Context, order *model.Order, items []model.OrderItem) error
	GetOrder(ctx context.Context, id uint) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID uint) ([]model.Order, error)
	MarkOrderStatus(ctx context.Context, orderID uint, status model.OrderStatus) error

	CreatePayment(ctx context.Context, payment *model.Payment) error
	GetPayment(ctx context.Context, id uint) (*model.Payment, error)
	GetPaymentByOrder(ctx context.Context, orderID uint) (*model.Payment, error)
	GetPaymentByExternalRef(ctx context.Context, ref string) (*model.Payment, error)
	SetPaymentExternalRef(ctx context.Context, paymentID uint, ref, payload string) error
	MarkPaymentFailed(ctx context.Context, paymentID uint, payload string) error
	ListAllPayments(ctx context.Context) ([]model.Payment, error)
	ListPendingPayments(ctx context.Context, olderThan time.Time) ([]model.Payment, error)

	// ApplyTransition moves the payment from `from` to `to` and the owning
	// order to orderStatus in a single transaction. The payment update is
	// conditional on the current status, so concurrent redeliveries race
	// safely: only one wins. Returns the updated order, or nil when no row
	// matched (someone else already transitioned it).
	ApplyTransition(ctx context.Context, paymentID uint, from, to model.PaymentStatus, orderStatus model.OrderStatus, payload string) (*model.Order, error)
}
