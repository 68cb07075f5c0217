package reconcile

import "github.com/Capstone-2-FMSuggestion-System/backend/model"

// statusFromGateway is the single place the gateway's status vocabulary is
// translated. Unrecognized statuses map to pending, which the engine treats
// as a no-op.
var statusFromGateway = map[string]model.PaymentStatus{
	"PAID":      model.PaymentCompleted,
	"CANCELLED": model.PaymentCancelled,
	"EXPIRED":   model.PaymentExpired,
	"FAILED":    model.PaymentFailed,
}

// FromGateway maps a gateway status string onto the internal payment status.
func FromGateway(status string) model.PaymentStatus {
	if s, ok := statusFromGateway[status]; ok {
		return s
	}
	return model.PaymentPending
}

// OrderStatusFor is the coarser order status mirrored from a terminal payment
// status.
func OrderStatusFor(s model.PaymentStatus) model.OrderStatus {
	switch s {
	case model.PaymentCompleted:
		return model.OrderCompleted
	case model.PaymentCancelled:
		return model.OrderCancelled
	default:
		return model.OrderPaymentFailed
	}
}
