package reconcile

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/Capstone-2-FMSuggestion-System/backend/model"
	"github.com/Capstone-2-FMSuggestion-System/backend/payos"
	"github.com/Capstone-2-FMSuggestion-System/backend/store"
)

// Gateway is the status-poll surface of the payment gateway.
type Gateway interface {
	QueryStatus(ctx context.Context, externalRef string) (*payos.StatusResult, error)
}

// Sweeper compensates for lost webhooks: it periodically polls the gateway for
// every payment stuck pending past a grace period and feeds the answers
// through the same transition rule webhooks use.
type Sweeper struct {
	store    store.Store
	gateway  Gateway
	engine   *Engine
	interval time.Duration
	grace    time.Duration
}

func NewSweeper(st store.Store, gw Gateway, engine *Engine, interval, grace time.Duration) *Sweeper {
	return &Sweeper{store: st, gateway: gw, engine: engine, interval: interval, grace: grace}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("reconciliation sweep running every %s (grace %s)", s.interval, s.grace)
	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce polls every overdue pending payment. Gateway failures for one
// payment are logged and do not stop the rest of the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	pending, err := s.store.ListPendingPayments(ctx, time.Now().Add(-s.grace))
	if err != nil {
		log.Printf("sweep: listing pending payments failed: %v", err)
		return
	}

	for _, payment := range pending {
		ref := refFor(payment)
		status, err := s.gateway.QueryStatus(ctx, ref)
		if err != nil {
			log.Printf("sweep: status query for payment %d (ref %s) failed: %v", payment.ID, ref, err)
			continue
		}

		raw, _ := json.Marshal(status)
		sig := Signal{
			PaymentID:     payment.ID,
			GatewayStatus: status.Status,
			Raw:           string(raw),
			Source:        "sweep",
		}
		if err := s.engine.Apply(ctx, sig); err != nil {
			log.Printf("sweep: applying status for payment %d failed: %v", payment.ID, err)
		}
	}
}

// refFor prefers the persisted external ref but falls back to the ref derived
// from the order id, covering payments orphaned between the gateway call and
// the local persist.
func refFor(p model.Payment) string {
	if p.ExternalRef != nil && *p.ExternalRef != "" {
		return *p.ExternalRef
	}
	return payos.DerivedRef(p.OrderID)
}
