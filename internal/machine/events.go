package machine

import (
	"github.com/BatmanBruc/paygate-bot/internal/i18n"
	"github.com/BatmanBruc/paygate-bot/types"
)

// Event is one input to Transition.
type Event interface {
	event()
}

// ChatText is a message or button press from the user.
type ChatText struct {
	Text string
}

// InvoiceIssued reports that the correlator bound a fresh invoice.
type InvoiceIssued struct {
	PlanID     string
	InvoiceID  string
	PaymentURL string
}

// InvoiceFailed reports that invoice creation failed or timed out.
type InvoiceFailed struct {
	PlanID string
	Err    error
}

// PaymentConfirmed is a resolved "finished" payment for InvoiceID.
type PaymentConfirmed struct {
	InvoiceID string
}

func (ChatText) event()         {}
func (InvoiceIssued) event()    {}
func (InvoiceFailed) event()    {}
func (PaymentConfirmed) event() {}

// Effect is a side effect the router runs after the transition committed.
type Effect interface {
	effect()
}

// Send delivers Text, with optional inline buttons, to ChatID.
type Send struct {
	ChatID  int64
	Text    string
	Buttons []types.Button
}

// RequestInvoice asks the correlator for an invoice for PlanID.
type RequestInvoice struct {
	SessionID string
	ChatID    int64
	Lang      i18n.Lang
	PlanID    string
}

// Activate starts the granted benefit for Target.
type Activate struct {
	SessionID string
	Target    string
	Benefit   types.Benefit
}

// Deactivate ends the running benefit of SessionID.
type Deactivate struct {
	SessionID string
}

func (Send) effect()           {}
func (RequestInvoice) effect() {}
func (Activate) effect()       {}
func (Deactivate) effect()     {}

// Outcome tells the router what to do with a Result.
type Outcome int

const (
	// Applied means the result should be committed and its effects run.
	Applied Outcome = iota
	// Stale means an invoice arrived for a session that moved on; the
	// router abandons the binding.
	Stale
	// Ignored means the event did not match the session and nothing changed.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Result is the output of Transition.
type Result struct {
	Session types.Session
	Effects []Effect
	Outcome Outcome
}
