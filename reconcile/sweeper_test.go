package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Capstone-2-FMSuggestion-System/backend/model"
	"github.com/Capstone-2-FMSuggestion-System/backend/payos"
)

type fakeGateway struct {
	mu      sync.Mutex
	results map[string]*payos.StatusResult
	err     error
	queried []string
}

func (f *fakeGateway) QueryStatus(ctx context.Context, ref string) (*payos.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, ref)
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.results[ref]; ok {
		return res, nil
	}
	return &payos.StatusResult{Status: "PENDING"}, nil
}

func newSweeper(gw *fakeGateway) (*Sweeper, *fakeStore) {
	st := newFakeStore()
	engine := NewEngine(st, &fakeInvalidator{}, &fakePublisher{})
	return NewSweeper(st, gw, engine, time.Minute, time.Minute), st
}

func TestSweepConvergesWithoutWebhook(t *testing.T) {
	gw := &fakeGateway{results: map[string]*payos.StatusResult{
		"10": {Status: "PAID", Amount: 20000},
	}}
	sweeper, st := newSweeper(gw)

	st.addPending(1, 10, 7, "10")
	st.payments[1].CreatedAt = time.Now().Add(-time.Hour)

	sweeper.SweepOnce(context.Background())

	assert.Equal(t, model.PaymentCompleted, st.payments[1].Status)
	assert.Equal(t, model.OrderCompleted, st.orders[10].Status)
}

func TestSweepSkipsRecentPayments(t *testing.T) {
	gw := &fakeGateway{}
	sweeper, st := newSweeper(gw)

	st.addPending(1, 10, 7, "10")
	st.payments[1].CreatedAt = time.Now()

	sweeper.SweepOnce(context.Background())

	assert.Empty(t, gw.queried, "payments inside the grace period are not polled")
	assert.Equal(t, model.PaymentPending, st.payments[1].Status)
}

func TestSweepUsesDerivedRefForOrphans(t *testing.T) {
	gw := &fakeGateway{results: map[string]*payos.StatusResult{
		"10": {Status: "PAID"},
	}}
	sweeper, st := newSweeper(gw)

	// Orphaned payment: the process died after the gateway call, before the
	// external ref was persisted.
	st.addPending(1, 10, 7, "")
	st.payments[1].ExternalRef = nil
	st.payments[1].CreatedAt = time.Now().Add(-time.Hour)

	sweeper.SweepOnce(context.Background())

	require.Equal(t, []string{"10"}, gw.queried, "ref derived from the order id")
	assert.Equal(t, model.PaymentCompleted, st.payments[1].Status)
}

func TestSweepToleratesGatewayFailure(t *testing.T) {
	gw := &fakeGateway{err: payos.ErrGatewayUnavailable}
	sweeper, st := newSweeper(gw)

	st.addPending(1, 10, 7, "10")
	st.payments[1].CreatedAt = time.Now().Add(-time.Hour)

	sweeper.SweepOnce(context.Background())

	assert.Equal(t, model.PaymentPending, st.payments[1].Status, "stays pending until a later sweep succeeds")
}

func TestSweepNonTerminalAnswerIsNoop(t *testing.T) {
	gw := &fakeGateway{}
	sweeper, st := newSweeper(gw)

	st.addPending(1, 10, 7, "10")
	st.payments[1].CreatedAt = time.Now().Add(-time.Hour)

	sweeper.SweepOnce(context.Background())

	assert.Equal(t, model.PaymentPending, st.payments[1].Status)
	assert.Equal(t, 0, st.transitions)
}
