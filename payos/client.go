package payos

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayUnavailable covers timeouts, network failures and 5xx
	// responses. Retrying the checkout may succeed.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected covers deterministic rejections; retrying the same
	// request will fail again.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

type Config struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	BaseURL     string
	ReturnURL   string
	CancelURL   string
	Timeout     time.Duration
}

// Client talks to the PayOS payment gateway. It holds no business state and
// never retries; retry policy belongs to the caller.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// IdempotencyKey derives the gateway-facing idempotency key purely from the
// order id, so a retried checkout for the same order is deduplicated remotely.
func IdempotencyKey(orderID uint) string {
	return fmt.Sprintf("order-%d", orderID)
}

// DerivedRef is the gateway order code we assign at create time. Because it is
// a pure function of the order id, the reconciliation sweep can query the
// gateway even for payments whose external ref was never persisted locally.
func DerivedRef(orderID uint) string {
	return strconv.FormatUint(uint64(orderID), 10)
}

type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type CreateResult struct {
	CheckoutURL string
	ExternalRef string
}

type StatusResult struct {
	Status      string
	Amount      int64
	Description string
}

// WebhookPayload is the body of the gateway's signed status notification. The
// status query response mirrors the same shape.
type WebhookPayload struct {
	OrderCode   int64  `json:"orderCode"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (w WebhookPayload) ExternalRef() string {
	return strconv.FormatInt(w.OrderCode, 10)
}

type wireItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type createRequest struct {
	ClientID    string     `json:"client_id"`
	OrderCode   int64      `json:"order_code"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description"`
	CancelURL   string     `json:"cancel_url"`
	ReturnURL   string     `json:"return_url"`
	Items       []wireItem `json:"items"`
}

type statusRequest struct {
	ClientID  string `json:"client_id"`
	OrderCode string `json:"order_code"`
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		CheckoutURL string `json:"checkoutUrl"`
		OrderCode   int64  `json:"orderCode"`
		Status      string `json:"status"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	} `json:"data"`
}

// minorUnits converts a major-unit decimal amount into the gateway's smallest
// currency unit (two decimal places).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreatePaymentRequest registers a payable link for the order. Validation
// failures are rejected before any network round-trip.
func (c *Client) CreatePaymentRequest(ctx context.Context, orderID uint, amount decimal.Decimal, items []LineItem, idempotencyKey string) (*CreateResult, error) {
	minor := minorUnits(amount)
	if minor <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrGatewayRejected)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items list cannot be empty", ErrGatewayRejected)
	}

	wire := make([]wireItem, 0, len(items))
	for _, it := range items {
		wire = append(wire, wireItem{
			Name:     it.Name,
			Price:    minorUnits(it.UnitPrice),
			Quantity: it.Quantity,
		})
	}

	req := createRequest{
		ClientID:    c.cfg.ClientID,
		OrderCode:   int64(orderID),
		Amount:      minor,
		Description: fmt.Sprintf("Payment for order %d", orderID),
		CancelURL:   c.cfg.CancelURL,
		ReturnURL:   c.cfg.ReturnURL,
		Items:       wire,
	}

	env, err := c.post(ctx, "/v2/payment-requests", req, idempotencyKey)
	if err != nil {
		return nil, err
	}

	return &CreateResult{
		CheckoutURL: env.Data.CheckoutURL,
		ExternalRef: strconv.FormatInt(env.Data.OrderCode, 10),
	}, nil
}

// QueryStatus polls the gateway for the current payment status. Used by the
// reconciliation sweep and by manual status checks.
func (c *Client) QueryStatus(ctx context.Context, externalRef string) (*StatusResult, error) {
	req := statusRequest{
		ClientID:  c.cfg.ClientID,
		OrderCode: externalRef,
	}

	env, err := c.post(ctx, "/v2/payment-requests/status", req, "")
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		Status:      env.Data.Status,
		Amount:      env.Data.Amount,
		Description: env.Data.Description,
	}, nil
}

// VerifyWebhookSignature recomputes the HMAC over the raw payload and compares
// it to the signature header in constant time.
func (c *Client) VerifyWebhookSignature(rawPayload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	want, err := c.checksum(rawPayload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}

// checksum is an HMAC-SHA256 over the canonical serialization of the body
// (JSON with sorted keys, which encoding/json produces for maps).
func (c *Client) checksum(body []byte) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.ChecksumKey))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, idempotencyKey string) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	checksum, err := c.checksum(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("x-checksum", checksum)
	if idempotencyKey != "" {
		req.Header.Set("x-idempotency-key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 400 || env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, msg)
	}

	return &env, nil
}
