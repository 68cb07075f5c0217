package payos

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChecksumKey = "test-checksum-key"

func testClient(baseURL string) *Client {
	return NewClient(Config{
		ClientID:    "client-1",
		APIKey:      "api-key-1",
		ChecksumKey: testChecksumKey,
		BaseURL:     baseURL,
		ReturnURL:   "http://shop.local/return",
		CancelURL:   "http://shop.local/cancel",
	})
}

// expectedChecksum mirrors the adapter's canonical serialization: JSON with
// sorted keys, HMAC-SHA256, hex.
func expectedChecksum(t *testing.T, body []byte) string {
	t.Helper()
	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))
	canonical, err := json.Marshal(fields)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(testChecksumKey))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

func items() []LineItem {
	return []LineItem{
		{Name: "Tea", UnitPrice: decimal.RequireFromString("100.00"), Quantity: 2},
	}
}

func TestCreatePaymentRequestFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := testClient(srv.URL)

	_, err := client.CreatePaymentRequest(context.Background(), 1, decimal.Zero, items(), IdempotencyKey(1))
	assert.ErrorIs(t, err, ErrGatewayRejected)

	_, err = client.CreatePaymentRequest(context.Background(), 1, decimal.RequireFromString("-5"), items(), IdempotencyKey(1))
	assert.ErrorIs(t, err, ErrGatewayRejected)

	_, err = client.CreatePaymentRequest(context.Background(), 1, decimal.RequireFromString("200.00"), nil, IdempotencyKey(1))
	assert.ErrorIs(t, err, ErrGatewayRejected)

	assert.Equal(t, int32(0), hits.Load(), "validation failures must not reach the gateway")
}

func TestCreatePaymentRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/payment-requests", r.URL.Path)
		require.Equal(t, "api-key-1", r.Header.Get("x-api-key"))
		require.Equal(t, "order-42", r.Header.Get("x-idempotency-key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, expectedChecksum(t, body), r.Header.Get("x-checksum"))

		var req createRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, int64(42), req.OrderCode)
		assert.Equal(t, int64(20000), req.Amount, "amount must be in minor units")
		require.Len(t, req.Items, 1)
		assert.Equal(t, int64(10000), req.Items[0].Price)
		assert.Equal(t, "http://shop.local/cancel", req.CancelURL)

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"checkoutUrl": "https://pay.example/link/abc",
				"orderCode":   42,
			},
		})
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	res, err := client.CreatePaymentRequest(context.Background(), 42, decimal.RequireFromString("200.00"), items(), IdempotencyKey(42))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/link/abc", res.CheckoutURL)
	assert.Equal(t, "42", res.ExternalRef)
}

func TestCreatePaymentRequestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.CreatePaymentRequest(context.Background(), 1, decimal.RequireFromString("10"), items(), IdempotencyKey(1))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreatePaymentRequestRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "error",
			"message": "unknown merchant order",
		})
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	_, err := client.CreatePaymentRequest(context.Background(), 1, decimal.RequireFromString("10"), items(), IdempotencyKey(1))
	require.ErrorIs(t, err, ErrGatewayRejected)
	assert.Contains(t, err.Error(), "unknown merchant order")
}

func TestCreatePaymentRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Config{
		ChecksumKey: testChecksumKey,
		BaseURL:     srv.URL,
		Timeout:     20 * time.Millisecond,
	})
	_, err := client.CreatePaymentRequest(context.Background(), 1, decimal.RequireFromString("10"), items(), IdempotencyKey(1))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestQueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/payment-requests/status", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, expectedChecksum(t, body), r.Header.Get("x-checksum"))

		var req statusRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "42", req.OrderCode)

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"status":      "PAID",
				"amount":      20000,
				"description": "Payment for order 42",
			},
		})
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	res, err := client.QueryStatus(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "PAID", res.Status)
	assert.Equal(t, int64(20000), res.Amount)
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := testClient("http://unused")
	body := []byte(`{"orderCode":42,"status":"PAID","amount":20000,"description":"ok"}`)
	sig := expectedChecksum(t, body)

	assert.True(t, client.VerifyWebhookSignature(body, sig))
	assert.False(t, client.VerifyWebhookSignature(body, ""), "absent signature")
	assert.False(t, client.VerifyWebhookSignature(body, "deadbeef"), "wrong signature")

	tampered := []byte(`{"orderCode":42,"status":"PAID","amount":99999,"description":"ok"}`)
	assert.False(t, client.VerifyWebhookSignature(tampered, sig), "tampered body")

	// Same fields in a different key order canonicalize identically.
	reordered := []byte(`{"status":"PAID","amount":20000,"description":"ok","orderCode":42}`)
	assert.True(t, client.VerifyWebhookSignature(reordered, sig))
}

func TestDerivedKeys(t *testing.T) {
	assert.Equal(t, "order-7", IdempotencyKey(7))
	assert.Equal(t, IdempotencyKey(7), IdempotencyKey(7), "key must be stable across retries")
	assert.Equal(t, "7", DerivedRef(7))
}
