package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/Capstone-2-FMSuggestion-System/backend/cache"
	"github.com/Capstone-2-FMSuggestion-System/backend/model"
	"github.com/Capstone-2-FMSuggestion-System/backend/payos"
	"github.com/Capstone-2-FMSuggestion-System/backend/store"
)

var (
	// ErrAmountMismatch means the client-declared total disagrees with the
	// total recomputed from trusted catalog prices.
	ErrAmountMismatch = errors.New("declared total does not match order total")
	// ErrEmptyCart rejects checkouts with no line items.
	ErrEmptyCart = errors.New("order has no items")
	// ErrNotOwner guards order views and cancellation against other users.
	ErrNotOwner = errors.New("order belongs to another user")
	// ErrCannotCancel means the payment already reached a terminal state.
	ErrCannotCancel = errors.New("order can no longer be cancelled")
)

// Gateway is the create-request surface of the payment gateway.
type Gateway interface {
	CreatePaymentRequest(ctx context.Context, orderID uint, amount decimal.Decimal, items []payos.LineItem, idempotencyKey string) (*payos.CreateResult, error)
}

type Invalidations interface {
	Enqueue(scope cache.Scope)
}

type Publisher interface {
	Publish(topic, eventType string, data map[string]any)
}

type ItemInput struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type ShippingInfo struct {
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	PostalCode     string `json:"postal_code"`
}

type Result struct {
	CheckoutURL string `json:"checkout_url"`
	OrderID     uint   `json:"order_id"`
	PaymentID   uint   `json:"payment_id"`
}

// Service is the request-time checkout flow: validate, persist, hand off to
// the gateway, persist the payable link, return the checkout URL.
type Service struct {
	store   store.Store
	gateway Gateway
	inv     Invalidations
	events  Publisher
}

func NewService(st store.Store, gw Gateway, inv Invalidations, events Publisher) *Service {
	return &Service{store: st, gateway: gw, inv: inv, events: events}
}

// CreateCheckout creates the order and its payment, registers the payable
// link with the gateway and returns the checkout URL. The gateway call is the
// only network suspension point; if it fails the order is marked
// payment_failed (never deleted) and the caller decides whether to retry with
// a fresh checkout.
func (s *Service) CreateCheckout(ctx context.Context, userID uint, items []ItemInput, declaredTotal decimal.Decimal, method string, shipping ShippingInfo) (*Result, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	orderItems := make([]model.OrderItem, 0, len(items))
	lineItems := make([]payos.LineItem, 0, len(items))

	for _, item := range items {
		product, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, err)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrEmptyCart)
		}

		// Server-trusted price, never the client's.
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))

		orderItems = append(orderItems, model.OrderItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
		lineItems = append(lineItems, payos.LineItem{
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
	}

	if !declaredTotal.Equal(total) {
		return nil, fmt.Errorf("%w: declared %s, computed %s", ErrAmountMismatch, declaredTotal, total)
	}

	order := &model.Order{
		UserID:             userID,
		TotalAmount:        total,
		Status:             model.OrderPending,
		PaymentMethod:      method,
		RecipientName:      shipping.RecipientName,
		RecipientPhone:     shipping.RecipientPhone,
		ShippingAddress:    shipping.Address,
		ShippingCity:       shipping.City,
		ShippingPostalCode: shipping.PostalCode,
	}
	if err := s.store.CreateOrder(ctx, order, orderItems); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	payment := &model.Payment{
		OrderID: order.ID,
		Amount:  total,
		Method:  method,
		Status:  model.PaymentPending,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	created, err := s.gateway.CreatePaymentRequest(ctx, order.ID, total, lineItems, payos.IdempotencyKey(order.ID))
	if err != nil {
		// Keep the failure on the ledger rather than leaving the order
		// pending forever. No retry here; the caller starts a fresh checkout.
		if markErr := s.store.MarkPaymentFailed(ctx, payment.ID, err.Error()); markErr != nil {
			log.Printf("marking payment %d failed: %v", payment.ID, markErr)
		}
		if markErr := s.store.MarkOrderStatus(ctx, order.ID, model.OrderPaymentFailed); markErr != nil {
			log.Printf("marking order %d payment_failed: %v", order.ID, markErr)
		}
		return nil, err
	}

	raw, _ := json.Marshal(created)
	if err := s.store.SetPaymentExternalRef(ctx, payment.ID, created.ExternalRef, string(raw)); err != nil {
		// The gateway side effect exists either way; the reconciliation sweep
		// recovers this payment via the ref derived from the order id.
		log.Printf("persisting external ref for payment %d: %v", payment.ID, err)
	}

	s.events.Publish("order.created", "order.created", map[string]any{
		"order_id":     order.ID,
		"user_id":      userID,
		"payment_id":   payment.ID,
		"total_amount": total.String(),
	})
	s.inv.Enqueue(cache.DashboardScope())
	s.inv.Enqueue(cache.UserOrdersScope(userID))

	return &Result{
		CheckoutURL: created.CheckoutURL,
		OrderID:     order.ID,
		PaymentID:   payment.ID,
	}, nil
}

// StatusView is the order/payment pair shown to the owner.
type StatusView struct {
	OrderID       uint                `json:"order_id"`
	OrderStatus   model.OrderStatus   `json:"order_status"`
	PaymentID     uint                `json:"payment_id"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	Amount        decimal.Decimal     `json:"amount"`
	ExternalRef   string              `json:"external_ref,omitempty"`
}

// GetOrderPaymentStatus returns the owner-checked order and payment status.
func (s *Service) GetOrderPaymentStatus(ctx context.Context, orderID, userID uint) (*StatusView, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOwner
	}

	payment, err := s.store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		PaymentID:     payment.ID,
		PaymentStatus: payment.Status,
		Amount:        payment.Amount,
	}
	if payment.ExternalRef != nil {
		view.ExternalRef = *payment.ExternalRef
	}
	return view, nil
}

// CancelOrder cancels a still-pending order on the owner's request.
// Cancellation is a status transition through the same conditional update the
// reconciliation engine uses, so it can never undo a terminal payment state.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID uint) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrNotOwner
	}

	payment, err := s.store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if payment.Status.Terminal() {
		return ErrCannotCancel
	}

	updated, err := s.store.ApplyTransition(ctx, payment.ID,
		model.PaymentPending, model.PaymentCancelled, model.OrderCancelled,
		`{"source":"user_cancel"}`)
	if err != nil {
		return err
	}
	if updated == nil {
		return ErrCannotCancel
	}

	s.events.Publish("payment.failed", "payment.cancelled", map[string]any{
		"order_id":   order.ID,
		"payment_id": payment.ID,
		"user_id":    userID,
	})
	s.inv.Enqueue(cache.DashboardScope())
	s.inv.Enqueue(cache.UserOrdersScope(userID))
	return nil
}
