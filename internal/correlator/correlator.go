// Package correlator binds processor invoices to sessions and resolves
// payment notifications back to the session that requested them.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BatmanBruc/paygate-bot/types"
)

type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req types.InvoiceRequest) (types.Invoice, error)
}

type PlanCatalog interface {
	Lookup(planID string) (types.Plan, error)
}

type Config struct {
	// Timeout bounds a single invoice creation call.
	Timeout time.Duration
	// BindingTTL is how long an unpaid binding is kept.
	BindingTTL time.Duration
}

type Correlator struct {
	store      types.BindingStore
	creator    InvoiceCreator
	catalog    PlanCatalog
	timeout    time.Duration
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time
	newOrderID func() string
}

func New(store types.BindingStore, creator InvoiceCreator, catalog PlanCatalog, cfg Config, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BindingTTL <= 0 {
		cfg.BindingTTL = 24 * time.Hour
	}
	return &Correlator{
		store:      store,
		creator:    creator,
		catalog:    catalog,
		timeout:    cfg.Timeout,
		ttl:        cfg.BindingTTL,
		logger:     logger,
		now:        time.Now,
		newOrderID: uuid.NewString,
	}
}

// Bind creates an invoice for planID and records it as pending for
// sessionID. Every processor-side failure, including a timeout, is reported
// as types.ErrInvoiceCreationFailed.
func (c *Correlator) Bind(ctx context.Context, sessionID, planID string) (types.InvoiceBinding, error) {
	plan, err := c.catalog.Lookup(planID)
	if err != nil {
		return types.InvoiceBinding{}, err
	}

	orderID := c.newOrderID()
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	invoice, err := c.creator.CreateInvoice(callCtx, types.InvoiceRequest{
		PriceAmount:   plan.Amount(),
		PriceCurrency: plan.Currency,
		OrderID:       orderID,
		Description:   fmt.Sprintf("Plan %s (%s)", plan.ID, plan.Title),
	})
	if err != nil {
		return types.InvoiceBinding{}, fmt.Errorf("%w: %v", types.ErrInvoiceCreationFailed, err)
	}
	invoice.InvoiceID = strings.TrimSpace(invoice.InvoiceID)
	if invoice.InvoiceID == "" || strings.TrimSpace(invoice.PaymentURL) == "" {
		return types.InvoiceBinding{}, fmt.Errorf("%w: processor returned an incomplete invoice", types.ErrInvoiceCreationFailed)
	}

	binding := types.InvoiceBinding{
		InvoiceID:  invoice.InvoiceID,
		OrderID:    orderID,
		SessionID:  sessionID,
		PlanID:     plan.ID,
		PaymentURL: invoice.PaymentURL,
		Status:     types.BindingPending,
		CreatedAt:  c.now(),
	}
	if err := c.store.CreateBinding(ctx, binding); err != nil {
		return types.InvoiceBinding{}, fmt.Errorf("%w: store binding: %v", types.ErrInvoiceCreationFailed, err)
	}

	c.logger.InfoContext(ctx, "invoice bound",
		"session_id", sessionID,
		"plan_id", plan.ID,
		"invoice_id", binding.InvoiceID,
		"order_id", orderID,
	)
	return binding, nil
}

// Resolve confirms the binding for invoiceID. Only the first call succeeds;
// later calls return types.ErrAlreadyConsumed, unknown invoices
// types.ErrBindingNotFound.
func (c *Correlator) Resolve(ctx context.Context, invoiceID string) (types.InvoiceBinding, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return types.InvoiceBinding{}, fmt.Errorf("%w: empty invoice id", types.ErrBindingNotFound)
	}
	return c.store.ConfirmBinding(ctx, invoiceID, c.now())
}

func (c *Correlator) ResolveOrder(ctx context.Context, orderID string) (types.InvoiceBinding, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return types.InvoiceBinding{}, fmt.Errorf("%w: empty order id", types.ErrBindingNotFound)
	}
	invoiceID, err := c.store.InvoiceForOrder(ctx, orderID)
	if err != nil {
		return types.InvoiceBinding{}, err
	}
	return c.Resolve(ctx, invoiceID)
}

// Reopen undoes a Resolve whose confirmation could not be applied.
func (c *Correlator) Reopen(ctx context.Context, invoiceID string) error {
	return c.store.ReopenBinding(ctx, strings.TrimSpace(invoiceID))
}

// Abandon drops a pending binding whose session no longer waits for it.
func (c *Correlator) Abandon(ctx context.Context, invoiceID string) error {
	return c.store.DeletePendingBinding(ctx, invoiceID)
}

// Sweep removes pending bindings older than the binding TTL.
func (c *Correlator) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := c.store.SweepBindings(ctx, now.Add(-c.ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.InfoContext(ctx, "swept abandoned invoice bindings", "count", n)
	}
	return n, nil
}

// IsReplayOrUnknown reports whether err is one of the expected, droppable
// resolution failures.
func IsReplayOrUnknown(err error) bool {
	return errors.Is(err, types.ErrBindingNotFound) || errors.Is(err, types.ErrAlreadyConsumed)
}
