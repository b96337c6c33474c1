// Package router feeds chat and payment events through the session state
// machine and runs the resulting effects after the session update committed.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/paygate-bot/internal/correlator"
	"github.com/BatmanBruc/paygate-bot/internal/i18n"
	"github.com/BatmanBruc/paygate-bot/internal/machine"
	"github.com/BatmanBruc/paygate-bot/internal/messages"
	"github.com/BatmanBruc/paygate-bot/internal/scheduler"
	"github.com/BatmanBruc/paygate-bot/types"
)

// ChatEvent is one inbound chat message or button press.
type ChatEvent struct {
	UserID string
	ChatID int64
	Text   string
	// Lang is the client language hint; it only seeds new sessions.
	Lang string
}

// PaymentEvent is one inbound payment status notification. Either InvoiceID
// or OrderID identifies the invoice.
type PaymentEvent struct {
	InvoiceID string
	OrderID   string
	Status    string
}

type Correlator interface {
	Bind(ctx context.Context, sessionID, planID string) (types.InvoiceBinding, error)
	Resolve(ctx context.Context, invoiceID string) (types.InvoiceBinding, error)
	ResolveOrder(ctx context.Context, orderID string) (types.InvoiceBinding, error)
	Reopen(ctx context.Context, invoiceID string) error
	Abandon(ctx context.Context, invoiceID string) error
}

type Messenger interface {
	Send(ctx context.Context, msg types.OutboundMessage) error
}

type Activator interface {
	Activate(ctx context.Context, sessionID, target string, benefit types.Benefit) (types.Activation, error)
	Deactivate(ctx context.Context, sessionID string) error
}

type Transitioner interface {
	Transition(s types.Session, ev machine.Event) machine.Result
}

// Dispatcher runs post-commit work. Jobs sharing a key must run in order.
// Go runs slow unkeyed work, such as invoice creation, off the keyed queues.
type Dispatcher interface {
	Dispatch(key string, job scheduler.Job) bool
	DispatchWait(ctx context.Context, key string, job scheduler.Job) bool
	Go(job scheduler.Job) bool
}

// InlineDispatcher runs each job synchronously on the caller's goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(key string, job scheduler.Job) bool {
	job(context.Background())
	return true
}

func (InlineDispatcher) DispatchWait(ctx context.Context, key string, job scheduler.Job) bool {
	job(context.Background())
	return true
}

func (InlineDispatcher) Go(job scheduler.Job) bool {
	job(context.Background())
	return true
}

const defaultEnqueueWait = 5 * time.Second

type Router struct {
	sessions   types.SessionStore
	machine    Transitioner
	correlator Correlator
	messenger  Messenger
	activator  Activator
	dispatcher Dispatcher
	// enqueueWait bounds how long activation changes wait for queue room.
	enqueueWait time.Duration
	logger      *slog.Logger
}

type Deps struct {
	Sessions   types.SessionStore
	Machine    Transitioner
	Correlator Correlator
	Messenger  Messenger
	Activator  Activator
	Dispatcher Dispatcher
	// EnqueueWait defaults to five seconds.
	EnqueueWait time.Duration
	Logger      *slog.Logger
}

func New(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Dispatcher == nil {
		d.Dispatcher = InlineDispatcher{}
	}
	if d.EnqueueWait <= 0 {
		d.EnqueueWait = defaultEnqueueWait
	}
	return &Router{
		sessions:    d.Sessions,
		machine:     d.Machine,
		correlator:  d.Correlator,
		messenger:   d.Messenger,
		activator:   d.Activator,
		dispatcher:  d.Dispatcher,
		enqueueWait: d.EnqueueWait,
		logger:      d.Logger,
	}
}

// HandleChat applies one chat message to the sender's session.
func (r *Router) HandleChat(ctx context.Context, ev ChatEvent) error {
	userID := strings.TrimSpace(ev.UserID)
	if userID == "" {
		return fmt.Errorf("chat event without user id")
	}
	if _, err := r.sessions.GetOrCreate(ctx, userID, ev.ChatID); err != nil {
		r.replyError(ctx, userID, ev)
		return fmt.Errorf("load session %s: %w", userID, err)
	}

	res, err := r.apply(ctx, userID, machine.ChatText{Text: ev.Text}, ev.Lang)
	if err != nil {
		r.replyError(ctx, userID, ev)
		return err
	}
	r.logger.DebugContext(ctx, "chat event applied",
		"session_id", userID,
		"state", string(res.Session.State),
		"effects", len(res.Effects),
	)
	r.dispatch(ctx, userID, res.Effects)
	return nil
}

// replyError tells the user their message was not processed.
func (r *Router) replyError(ctx context.Context, userID string, ev ChatEvent) {
	if ev.ChatID == 0 {
		return
	}
	r.dispatch(ctx, userID, []machine.Effect{machine.Send{
		ChatID: ev.ChatID,
		Text:   messages.ErrorDefault(i18n.Parse(ev.Lang)),
	}})
}

// HandlePayment applies a payment notification. Only "finished" payments
// count; unknown and replayed invoices are dropped.
func (r *Router) HandlePayment(ctx context.Context, ev PaymentEvent) error {
	if !strings.EqualFold(strings.TrimSpace(ev.Status), types.PaymentStatusFinished) {
		r.logger.InfoContext(ctx, "payment status ignored",
			"invoice_id", ev.InvoiceID,
			"order_id", ev.OrderID,
			"status", ev.Status,
		)
		return nil
	}

	var (
		binding types.InvoiceBinding
		err     error
	)
	if strings.TrimSpace(ev.InvoiceID) != "" {
		binding, err = r.correlator.Resolve(ctx, ev.InvoiceID)
	} else {
		binding, err = r.correlator.ResolveOrder(ctx, ev.OrderID)
	}
	if err != nil {
		if correlator.IsReplayOrUnknown(err) {
			r.logger.WarnContext(ctx, "payment dropped",
				"invoice_id", ev.InvoiceID,
				"order_id", ev.OrderID,
				"reason", err.Error(),
			)
			return nil
		}
		return fmt.Errorf("resolve payment: %w", err)
	}

	res, err := r.apply(ctx, binding.SessionID, machine.PaymentConfirmed{InvoiceID: binding.InvoiceID}, "")
	if err != nil {
		if errors.Is(err, types.ErrSessionNotFound) {
			r.logger.WarnContext(ctx, "payment for expired session", "session_id", binding.SessionID, "invoice_id", binding.InvoiceID)
			return nil
		}
		if rerr := r.correlator.Reopen(ctx, binding.InvoiceID); rerr != nil {
			r.logger.ErrorContext(ctx, "payment lost: binding not reopened",
				"session_id", binding.SessionID,
				"invoice_id", binding.InvoiceID,
				"error", rerr,
			)
		}
		return err
	}
	if res.Outcome == machine.Ignored {
		r.logger.WarnContext(ctx, "payment not awaited by session",
			"session_id", binding.SessionID,
			"invoice_id", binding.InvoiceID,
			"state", string(res.Session.State),
		)
		return nil
	}

	r.logger.InfoContext(ctx, "payment confirmed", "session_id", binding.SessionID, "invoice_id", binding.InvoiceID, "plan_id", binding.PlanID)
	r.dispatch(ctx, binding.SessionID, res.Effects)
	return nil
}

func (r *Router) apply(ctx context.Context, sessionID string, ev machine.Event, lang string) (machine.Result, error) {
	var res machine.Result
	_, err := r.sessions.AtomicUpdate(ctx, sessionID, func(s types.Session) (types.Session, error) {
		if s.Lang == "" && lang != "" {
			s.Lang = lang
		}
		res = r.machine.Transition(s, ev)
		return res.Session, nil
	})
	if err != nil {
		return machine.Result{}, fmt.Errorf("update session %s: %w", sessionID, err)
	}
	return res, nil
}

// dispatch queues effects on the session's worker. Activation changes wait
// for queue room; anything else is dropped when the queue is full.
func (r *Router) dispatch(ctx context.Context, sessionID string, effects []machine.Effect) {
	if len(effects) == 0 {
		return
	}
	job := func(ctx context.Context) {
		r.runEffects(ctx, sessionID, effects)
	}

	var ok bool
	if changesActivation(effects) {
		waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.enqueueWait)
		ok = r.dispatcher.DispatchWait(waitCtx, sessionID, job)
		cancel()
	} else {
		ok = r.dispatcher.Dispatch(sessionID, job)
	}
	if !ok {
		r.logger.ErrorContext(ctx, "effects dropped", "session_id", sessionID, "effects", effectNames(effects))
	}
}

func changesActivation(effects []machine.Effect) bool {
	for _, eff := range effects {
		switch eff.(type) {
		case machine.Activate, machine.Deactivate:
			return true
		}
	}
	return false
}

func effectNames(effects []machine.Effect) []string {
	names := make([]string, 0, len(effects))
	for _, eff := range effects {
		names = append(names, strings.TrimPrefix(fmt.Sprintf("%T", eff), "machine."))
	}
	return names
}

func (r *Router) runEffects(ctx context.Context, sessionID string, effects []machine.Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case machine.Send:
			err := r.messenger.Send(ctx, types.OutboundMessage{ChatID: e.ChatID, Text: e.Text, Buttons: e.Buttons})
			if err != nil {
				r.logger.ErrorContext(ctx, "send failed", "session_id", sessionID, "chat_id", e.ChatID, "error", err)
			}
		case machine.Activate:
			if _, err := r.activator.Activate(ctx, e.SessionID, e.Target, e.Benefit); err != nil {
				r.logger.ErrorContext(ctx, "activation failed", "session_id", e.SessionID, "error", err)
			}
		case machine.Deactivate:
			if err := r.activator.Deactivate(ctx, e.SessionID); err != nil {
				r.logger.ErrorContext(ctx, "deactivation failed", "session_id", e.SessionID, "error", err)
			}
		case machine.RequestInvoice:
			ok := r.dispatcher.Go(func(ctx context.Context) {
				r.requestInvoice(ctx, e)
			})
			if !ok {
				r.logger.ErrorContext(ctx, "invoice request dropped", "session_id", e.SessionID, "plan_id", e.PlanID)
			}
		default:
			r.logger.ErrorContext(ctx, "unknown effect", "session_id", sessionID, "effect", fmt.Sprintf("%T", eff))
		}
	}
}

// requestInvoice creates the invoice outside any session lock and feeds the
// outcome back into the machine. Follow-up effects go back through the
// session's queue.
func (r *Router) requestInvoice(ctx context.Context, e machine.RequestInvoice) {
	binding, bindErr := r.correlator.Bind(ctx, e.SessionID, e.PlanID)

	var ev machine.Event
	if bindErr != nil {
		r.logger.ErrorContext(ctx, "invoice creation failed", "session_id", e.SessionID, "plan_id", e.PlanID, "error", bindErr)
		ev = machine.InvoiceFailed{PlanID: e.PlanID, Err: bindErr}
	} else {
		ev = machine.InvoiceIssued{PlanID: binding.PlanID, InvoiceID: binding.InvoiceID, PaymentURL: binding.PaymentURL}
	}

	res, err := r.apply(ctx, e.SessionID, ev, "")
	if err != nil {
		r.logger.ErrorContext(ctx, "invoice outcome not applied", "session_id", e.SessionID, "error", err)
		if bindErr == nil {
			r.abandon(ctx, binding)
		}
		return
	}
	if bindErr == nil && res.Outcome == machine.Stale {
		r.abandon(ctx, binding)
	}
	r.dispatch(ctx, e.SessionID, res.Effects)
}

func (r *Router) abandon(ctx context.Context, b types.InvoiceBinding) {
	if err := r.correlator.Abandon(ctx, b.InvoiceID); err != nil {
		r.logger.WarnContext(ctx, "abandon binding failed", "invoice_id", b.InvoiceID, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "stale invoice abandoned", "session_id", b.SessionID, "invoice_id", b.InvoiceID)
}
