package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Capstone-2-FMSuggestion-System/backend/cache"
	"github.com/Capstone-2-FMSuggestion-System/backend/model"
	"github.com/Capstone-2-FMSuggestion-System/backend/store"
)

// Signal is one status notification, regardless of where it came from: a
// gateway webhook, the reconciliation sweep, or a manual status check.
type Signal struct {
	// ExternalRef correlates the signal to a payment when that is all the
	// gateway gives us (webhooks). PaymentID takes precedence when set.
	ExternalRef   string
	PaymentID     uint
	GatewayStatus string
	// Raw is the signal body as received, stored on the payment for audit.
	Raw    string
	Source string
}

// Invalidations is the slice of the cache invalidator the engine needs.
type Invalidations interface {
	Enqueue(scope cache.Scope)
}

// Publisher emits domain events after committed transitions.
type Publisher interface {
	Publish(topic, eventType string, data map[string]any)
}

// Engine applies gateway signals to the ledger. It is safe under arbitrary
// interleaving and redelivery: every application re-reads current state and
// commits through a conditional update.
type Engine struct {
	store  store.Store
	inv    Invalidations
	events Publisher
}

func NewEngine(st store.Store, inv Invalidations, events Publisher) *Engine {
	return &Engine{store: st, inv: inv, events: events}
}

// Apply runs the transition rule for one signal. Unknown references and
// conflicting terminal states are logged and swallowed; they must never
// surface to an external caller. A non-nil error means the ledger itself
// failed and the signal should be redelivered.
func (e *Engine) Apply(ctx context.Context, sig Signal) error {
	payment, err := e.lookup(ctx, sig)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("discarding %s signal for unknown reference %q", sig.Source, sig.ExternalRef)
		return nil
	}
	if err != nil {
		return fmt.Errorf("payment lookup: %w", err)
	}

	next := FromGateway(sig.GatewayStatus)
	if next == model.PaymentPending {
		log.Printf("ignoring non-terminal %s signal %q for payment %d", sig.Source, sig.GatewayStatus, payment.ID)
		return nil
	}

	if payment.Status == next {
		// Redelivery of a signal we already applied. Success, nothing to do.
		log.Printf("payment %d already %s, %s signal is a no-op", payment.ID, next, sig.Source)
		return nil
	}

	if payment.Status.Terminal() {
		// A terminal state is final once reached locally. Overwriting it here
		// risks financial inconsistency, so record the anomaly and keep ours.
		log.Printf("ANOMALY: payment %d is %s but %s signal says %s; keeping %s",
			payment.ID, payment.Status, sig.Source, next, payment.Status)
		return nil
	}

	order, err := e.store.ApplyTransition(ctx, payment.ID, model.PaymentPending, next, OrderStatusFor(next), sig.Raw)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if order == nil {
		// Lost the race to a concurrent signal. The winner already did the
		// follow-up work.
		log.Printf("payment %d transitioned concurrently, %s signal skipped", payment.ID, sig.Source)
		return nil
	}

	log.Printf("payment %d -> %s, order %d -> %s (source %s)",
		payment.ID, next, order.ID, order.Status, sig.Source)

	e.inv.Enqueue(cache.DashboardScope())
	e.inv.Enqueue(cache.UserOrdersScope(order.UserID))

	e.publish(payment, order, next)
	return nil
}

func (e *Engine) lookup(ctx context.Context, sig Signal) (*model.Payment, error) {
	if sig.PaymentID != 0 {
		return e.store.GetPayment(ctx, sig.PaymentID)
	}
	return e.store.GetPaymentByExternalRef(ctx, sig.ExternalRef)
}

func (e *Engine) publish(payment *model.Payment, order *model.Order, next model.PaymentStatus) {
	data := map[string]any{
		"payment_id": payment.ID,
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"amount":     payment.Amount.String(),
		"status":     string(next),
	}
	if next == model.PaymentCompleted {
		e.events.Publish("payment.completed", "payment.completed", data)
		return
	}
	e.events.Publish("payment.failed", "payment.failed", data)
}
