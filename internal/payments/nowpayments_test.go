package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/paygate-bot/types"
)

func testRequest() types.InvoiceRequest {
	return types.InvoiceRequest{
		PriceAmount:   "15.00",
		PriceCurrency: "usd",
		OrderID:       "order-1",
		Description:   "Plan 2",
	}
}

func TestCreateInvoice(t *testing.T) {
	var got map[string]any
	var apiKey, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("x-api-key")
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":4522625843,"invoice_url":"https://nowpayments.io/payment/?iid=4522625843"}`))
	}))
	defer server.Close()

	c := NewClient(Config{
		APIKey:      "secret",
		BaseURL:     server.URL + "/",
		PayCurrency: "usdttrc20",
		CallbackURL: "https://bot.example/nowpayments",
	})

	inv, err := c.CreateInvoice(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "4522625843", inv.InvoiceID)
	assert.Equal(t, "https://nowpayments.io/payment/?iid=4522625843", inv.PaymentURL)

	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "/v1/invoice", path)
	assert.Equal(t, 15.0, got["price_amount"])
	assert.Equal(t, "usd", got["price_currency"])
	assert.Equal(t, "usdttrc20", got["pay_currency"])
	assert.Equal(t, "order-1", got["order_id"])
	assert.Equal(t, "https://bot.example/nowpayments", got["ipn_callback_url"])
}

func TestCreateInvoice_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `oops`},
		{"rejected", http.StatusBadRequest, `{"message":"bad"}`},
		{"missing url", http.StatusOK, `{"id":"1"}`},
		{"missing id", http.StatusOK, `{"invoice_url":"https://x"}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(Config{BaseURL: server.URL})
			_, err := c.CreateInvoice(context.Background(), testRequest())
			assert.Error(t, err)
		})
	}
}

func TestCreateInvoice_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CreateInvoice(ctx, testRequest())
	assert.Error(t, err)
}

func TestCreateInvoice_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL}, WithBreakerSettings(gobreaker.Settings{
		Name:    "test",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))

	for i := 0; i < 2; i++ {
		_, err := c.CreateInvoice(context.Background(), testRequest())
		require.Error(t, err)
	}
	_, err := c.CreateInvoice(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFlexibleID(t *testing.T) {
	tests := []struct {
		in   string
		want FlexibleID
	}{
		{`"abc"`, "abc"},
		{`" 12 "`, "12"},
		{`4522625843`, "4522625843"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var id FlexibleID
		require.NoError(t, json.Unmarshal([]byte(tt.in), &id), tt.in)
		assert.Equal(t, tt.want, id, tt.in)
	}

	var id FlexibleID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
}
