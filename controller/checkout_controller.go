package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/Capstone-2-FMSuggestion-System/backend/checkout"
	"github.com/Capstone-2-FMSuggestion-System/backend/payos"
	"github.com/Capstone-2-FMSuggestion-System/backend/store"
)

type CheckoutController struct {
	Service *checkout.Service
}

func NewCheckoutController(svc *checkout.Service) *CheckoutController {
	return &CheckoutController{Service: svc}
}

type checkoutRequest struct {
	Items         []checkout.ItemInput  `json:"items"`
	DeclaredTotal decimal.Decimal       `json:"declared_total"`
	PaymentMethod string                `json:"payment_method"`
	Shipping      checkout.ShippingInfo `json:"shipping"`
}

func (cc *CheckoutController) Create(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var body checkoutRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.PaymentMethod == "" {
		body.PaymentMethod = "payos"
	}

	result, err := cc.Service.CreateCheckout(c.Context(), userID, body.Items, body.DeclaredTotal, body.PaymentMethod, body.Shipping)
	if err != nil {
		return c.Status(errToStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(201).JSON(result)
}

// errToStatus is the single place domain errors map onto HTTP codes.
func errToStatus(err error) int {
	switch {
	case errors.Is(err, checkout.ErrAmountMismatch),
		errors.Is(err, checkout.ErrEmptyCart):
		return fiber.StatusBadRequest
	case errors.Is(err, checkout.ErrNotOwner):
		return fiber.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrDuplicatePayment),
		errors.Is(err, checkout.ErrCannotCancel):
		return fiber.StatusConflict
	case errors.Is(err, payos.ErrGatewayRejected):
		return fiber.StatusBadGateway
	case errors.Is(err, payos.ErrGatewayUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
