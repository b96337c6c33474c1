package types

import (
	"context"
	"fmt"
	"time"
)

type Plan struct {
	ID             string `yaml:"id" json:"id"`
	Title          string `yaml:"title" json:"title"`
	PriceCents     int64  `yaml:"price_cents" json:"price_cents"`
	Currency       string `yaml:"currency" json:"currency"`
	BenefitMinutes int    `yaml:"minutes" json:"minutes,omitempty"`
	Lifetime       bool   `yaml:"lifetime" json:"lifetime,omitempty"`
}

func (p Plan) Benefit() Benefit {
	if p.Lifetime {
		return Benefit{Lifetime: true}
	}
	return Benefit{Minutes: p.BenefitMinutes}
}

// Amount formats PriceCents as a decimal string, e.g. 1500 -> "15.00".
func (p Plan) Amount() string {
	return fmt.Sprintf("%d.%02d", p.PriceCents/100, p.PriceCents%100)
}

type InvoiceBinding struct {
	InvoiceID   string        `json:"invoice_id"`
	OrderID     string        `json:"order_id"`
	SessionID   string        `json:"session_id"`
	PlanID      string        `json:"plan_id"`
	PaymentURL  string        `json:"payment_url"`
	Status      BindingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty"`
}

type InvoiceRequest struct {
	PriceAmount   string
	PriceCurrency string
	OrderID       string
	Description   string
}

type Invoice struct {
	InvoiceID  string
	PaymentURL string
}

type Activation struct {
	SessionID string     `json:"session_id"`
	Target    string     `json:"target"`
	Benefit   Benefit    `json:"benefit"`
	StartedAt time.Time  `json:"started_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

type BindingStore interface {
	CreateBinding(ctx context.Context, b InvoiceBinding) error
	// ConfirmBinding flips a pending binding to confirmed exactly once.
	ConfirmBinding(ctx context.Context, invoiceID string, at time.Time) (InvoiceBinding, error)
	// ReopenBinding returns a confirmed binding to pending so a confirmation
	// that could not be applied can be delivered again.
	ReopenBinding(ctx context.Context, invoiceID string) error
	InvoiceForOrder(ctx context.Context, orderID string) (string, error)
	DeletePendingBinding(ctx context.Context, invoiceID string) error
	SweepBindings(ctx context.Context, createdBefore time.Time) (int, error)
}

type ActivationStore interface {
	RecordActivation(ctx context.Context, a Activation) error
	StopActivation(ctx context.Context, sessionID string, at time.Time) (bool, error)
}
