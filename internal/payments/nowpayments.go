// Package payments talks to the NOWPayments invoice API. Calls go through a
// circuit breaker.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/BatmanBruc/paygate-bot/types"
)

const DefaultBaseURL = "https://api.nowpayments.io"

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("payment processor unavailable")

type Config struct {
	APIKey      string
	BaseURL     string
	PayCurrency string
	// CallbackURL is sent as ipn_callback_url when set.
	CallbackURL string
}

type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[types.Invoice]
	cfg     Config
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithBreakerSettings replaces the default breaker configuration.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(cl *Client) {
		cl.breaker = gobreaker.NewCircuitBreaker[types.Invoice](st)
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	c := &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		logger: slog.Default(),
	}
	c.breaker = gobreaker.NewCircuitBreaker[types.Invoice](gobreaker.Settings{
		Name:        "nowpayments",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type invoiceRequest struct {
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayCurrency      string      `json:"pay_currency,omitempty"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description,omitempty"`
	IPNCallbackURL   string      `json:"ipn_callback_url,omitempty"`
}

type invoiceResponse struct {
	ID         FlexibleID `json:"id"`
	InvoiceURL string     `json:"invoice_url"`
}

// CreateInvoice creates a hosted invoice and returns its id and payment URL.
func (c *Client) CreateInvoice(ctx context.Context, req types.InvoiceRequest) (types.Invoice, error) {
	inv, err := c.breaker.Execute(func() (types.Invoice, error) {
		return c.createInvoice(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.Invoice{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return inv, err
}

func (c *Client) createInvoice(ctx context.Context, req types.InvoiceRequest) (types.Invoice, error) {
	body, err := json.Marshal(invoiceRequest{
		PriceAmount:      json.Number(req.PriceAmount),
		PriceCurrency:    req.PriceCurrency,
		PayCurrency:      c.cfg.PayCurrency,
		OrderID:          req.OrderID,
		OrderDescription: req.Description,
		IPNCallbackURL:   c.cfg.CallbackURL,
	})
	if err != nil {
		return types.Invoice{}, fmt.Errorf("encode invoice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/invoice", bytes.NewReader(body))
	if err != nil {
		return types.Invoice{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return types.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.Invoice{}, fmt.Errorf("read invoice response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Invoice{}, fmt.Errorf("create invoice: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out invoiceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.Invoice{}, fmt.Errorf("decode invoice response: %w", err)
	}
	if out.ID == "" || strings.TrimSpace(out.InvoiceURL) == "" {
		return types.Invoice{}, fmt.Errorf("invoice response missing id or invoice_url")
	}

	c.logger.InfoContext(ctx, "invoice created", "invoice_id", string(out.ID), "order_id", req.OrderID)
	return types.Invoice{InvoiceID: string(out.ID), PaymentURL: out.InvoiceURL}, nil
}

// FlexibleID decodes an identifier sent either as a JSON string or number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexibleID(n.String())
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
