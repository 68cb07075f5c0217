package controller

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Capstone-2-FMSuggestion-System/backend/checkout"
	"github.com/Capstone-2-FMSuggestion-System/backend/payos"
	"github.com/Capstone-2-FMSuggestion-System/backend/reconcile"
	"github.com/Capstone-2-FMSuggestion-System/backend/store"
)

// WebhookVerifier is the signature-check surface of the gateway adapter.
type WebhookVerifier interface {
	VerifyWebhookSignature(rawPayload []byte, signature string) bool
}

type PaymentController struct {
	Engine   *reconcile.Engine
	Service  *checkout.Service
	Store    store.Store
	Verifier WebhookVerifier
}

func NewPaymentController(engine *reconcile.Engine, svc *checkout.Service, st store.Store, verifier WebhookVerifier) *PaymentController {
	return &PaymentController{Engine: engine, Service: svc, Store: st, Verifier: verifier}
}

// Webhook receives the gateway's signed status notifications. Responses are
// deliberately uninformative: a prober learns nothing about which references
// exist.
func (pc *PaymentController) Webhook(c *fiber.Ctx) error {
	raw := c.Body()
	signature := c.Get("x-checksum")

	if !pc.Verifier.VerifyWebhookSignature(raw, signature) {
		log.Printf("rejected webhook with bad signature from %s", c.IP())
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	var payload payos.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("rejected malformed webhook: %v", err)
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	sig := reconcile.Signal{
		ExternalRef:   payload.ExternalRef(),
		GatewayStatus: payload.Status,
		Raw:           string(raw),
		Source:        "webhook",
	}
	if err := pc.Engine.Apply(c.Context(), sig); err != nil {
		// Ledger failure: let the gateway redeliver.
		log.Printf("webhook apply failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}

	return c.JSON(fiber.Map{"success": true})
}

func (pc *PaymentController) Status(c *fiber.Ctx) error {
	orderID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	userID := c.Locals("user_id").(uint)

	view, err := pc.Service.GetOrderPaymentStatus(c.Context(), uint(orderID), userID)
	if err != nil {
		return c.Status(errToStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(view)
}

func (pc *PaymentController) ListAll(c *fiber.Ctx) error {
	payments, err := pc.Store.ListAllPayments(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(payments)
}
