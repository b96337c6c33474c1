// Package machine implements the per-session workflow as a pure transition
// function. Transition performs no I/O: external work is returned as effects.
package machine

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"

	"github.com/BatmanBruc/paygate-bot/internal/i18n"
	"github.com/BatmanBruc/paygate-bot/internal/messages"
	"github.com/BatmanBruc/paygate-bot/types"
)

// DefaultTargetPattern accepts an E.164-like phone number.
const DefaultTargetPattern = `^\+?[0-9]{7,15}$`

// PlanCatalog resolves the option a user picked.
type PlanCatalog interface {
	Lookup(planID string) (types.Plan, error)
	Plans() []types.Plan
}

// Config tunes the machine.
type Config struct {
	// LifetimeCredential is the shared secret that grants a lifetime
	// benefit. Empty disables the shortcut.
	LifetimeCredential string
	TargetPattern      string
}

// Machine holds the immutable inputs Transition needs. It is safe for
// concurrent use.
type Machine struct {
	catalog    PlanCatalog
	credential string
	target     *regexp.Regexp
}

// New compiles the target pattern, falling back to DefaultTargetPattern.
func New(catalog PlanCatalog, cfg Config) (*Machine, error) {
	pattern := strings.TrimSpace(cfg.TargetPattern)
	if pattern == "" {
		pattern = DefaultTargetPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("machine: target pattern: %w", err)
	}
	return &Machine{
		catalog:    catalog,
		credential: strings.TrimSpace(cfg.LifetimeCredential),
		target:     re,
	}, nil
}

// NormalizeTarget strips common separators and checks the result against the
// configured pattern.
func (m *Machine) NormalizeTarget(text string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(text))
	if cleaned == "" || !m.target.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidTarget, text)
	}
	return cleaned, nil
}

func (m *Machine) isCredential(text string) bool {
	if m.credential == "" || text == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(text), []byte(m.credential)) == 1
}

// Transition computes the next session and the effects to run once it is
// committed. It never mutates shared state.
func (m *Machine) Transition(s types.Session, ev Event) Result {
	switch e := ev.(type) {
	case ChatText:
		return m.onText(s, e)
	case InvoiceIssued:
		return m.onInvoiceIssued(s, e)
	case InvoiceFailed:
		return m.onInvoiceFailed(s, e)
	case PaymentConfirmed:
		return m.onPaymentConfirmed(s, e)
	default:
		return Result{Session: s, Outcome: Ignored}
	}
}

func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd := fields[0]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func send(s types.Session, text string) Effect {
	return Send{ChatID: s.ChatID, Text: text}
}

func (m *Machine) onText(s types.Session, e ChatText) Result {
	text := strings.TrimSpace(e.Text)
	lang := i18n.Parse(s.Lang)

	switch command(text) {
	case types.CommandStart:
		return m.start(s, lang)
	case types.CommandStop:
		return m.stop(s, lang)
	case types.CommandHelp:
		return Result{Session: s, Effects: []Effect{send(s, messages.Help(lang))}}
	}

	if m.isCredential(text) {
		return m.grantLifetime(s, lang)
	}

	switch s.State {
	case types.StateAwaitingOption:
		plan, err := m.catalog.Lookup(text)
		if err != nil {
			return Result{Session: s, Effects: []Effect{send(s, messages.InvalidOption(lang))}}
		}
		return Result{Session: s, Effects: []Effect{RequestInvoice{
			SessionID: s.SessionID,
			ChatID:    s.ChatID,
			Lang:      lang,
			PlanID:    plan.ID,
		}}}
	case types.StateAwaitingPayment:
		return Result{Session: s, Effects: []Effect{send(s, messages.WaitingForPayment(lang))}}
	case types.StateAwaitingTarget:
		if s.GrantedBenefit == nil {
			return Result{Session: s, Effects: []Effect{send(s, messages.PayFirst(lang))}}
		}
		target, err := m.NormalizeTarget(text)
		if err != nil {
			return Result{Session: s, Effects: []Effect{send(s, messages.InvalidTarget(lang))}}
		}
		benefit := *s.GrantedBenefit
		s.State = types.StateActive
		s.Target = target
		return Result{Session: s, Effects: []Effect{
			Activate{SessionID: s.SessionID, Target: target, Benefit: benefit},
			send(s, messages.Started(lang, target, benefit)),
		}}
	case types.StateActive, types.StateStopped:
		return Result{Session: s, Effects: []Effect{send(s, messages.UseStopOrStart(lang))}}
	default:
		return Result{Session: s, Effects: []Effect{send(s, messages.PayFirst(lang))}}
	}
}

// start replaces the transient fields and shows the catalog. A lifetime
// benefit survives and can still be used from AwaitingOption.
func (m *Machine) start(s types.Session, lang i18n.Lang) Result {
	var effects []Effect
	if s.State == types.StateActive {
		effects = append(effects, Deactivate{SessionID: s.SessionID})
	}
	s = s.Cleared()
	s.State = types.StateAwaitingOption
	plans := m.catalog.Plans()
	buttons := make([]types.Button, 0, len(plans))
	for _, p := range plans {
		buttons = append(buttons, types.Button{Text: messages.PlanButton(lang, p), Data: p.ID})
	}
	return Result{Session: s, Effects: append(effects, Send{
		ChatID:  s.ChatID,
		Text:    messages.Catalog(lang, plans),
		Buttons: buttons,
	})}
}

func (m *Machine) stop(s types.Session, lang i18n.Lang) Result {
	if s.State != types.StateAwaitingTarget && s.State != types.StateActive {
		return Result{Session: s, Effects: []Effect{send(s, messages.NothingToStop(lang))}}
	}
	var effects []Effect
	if s.State == types.StateActive {
		effects = append(effects, Deactivate{SessionID: s.SessionID})
	}
	s.State = types.StateStopped
	s.SelectedPlanID = ""
	if !s.HasLifetime() {
		s.GrantedBenefit = nil
	}
	return Result{Session: s, Effects: append(effects, send(s, messages.StoppedConfirmation(lang)))}
}

func (m *Machine) grantLifetime(s types.Session, lang i18n.Lang) Result {
	var effects []Effect
	if s.State == types.StateActive {
		effects = append(effects, Deactivate{SessionID: s.SessionID})
	}
	s.State = types.StateAwaitingTarget
	s.SelectedPlanID = ""
	s.PendingInvoiceID = ""
	s.Target = ""
	s.GrantedBenefit = &types.Benefit{Lifetime: true}
	return Result{Session: s, Effects: append(effects, send(s, messages.LifetimeVerified(lang)))}
}

func (m *Machine) onInvoiceIssued(s types.Session, e InvoiceIssued) Result {
	if s.State != types.StateAwaitingOption {
		return Result{Session: s, Outcome: Stale}
	}
	lang := i18n.Parse(s.Lang)
	plan, err := m.catalog.Lookup(e.PlanID)
	if err != nil || e.InvoiceID == "" {
		return Result{Session: s, Effects: []Effect{send(s, messages.InvoiceError(lang))}, Outcome: Stale}
	}
	s.State = types.StateAwaitingPayment
	s.SelectedPlanID = plan.ID
	s.PendingInvoiceID = e.InvoiceID
	return Result{Session: s, Effects: []Effect{send(s, messages.PaymentLink(lang, plan, e.PaymentURL))}}
}

func (m *Machine) onInvoiceFailed(s types.Session, e InvoiceFailed) Result {
	if s.State != types.StateAwaitingOption {
		return Result{Session: s, Outcome: Ignored}
	}
	return Result{Session: s, Effects: []Effect{send(s, messages.InvoiceError(i18n.Parse(s.Lang)))}}
}

func (m *Machine) onPaymentConfirmed(s types.Session, e PaymentConfirmed) Result {
	if s.State != types.StateAwaitingPayment || e.InvoiceID == "" || s.PendingInvoiceID != e.InvoiceID {
		return Result{Session: s, Outcome: Ignored}
	}
	plan, err := m.catalog.Lookup(s.SelectedPlanID)
	if err != nil {
		return Result{Session: s, Outcome: Ignored}
	}
	lang := i18n.Parse(s.Lang)

	benefit := plan.Benefit()
	s.State = types.StateAwaitingTarget
	s.PendingInvoiceID = ""
	s.GrantedBenefit = &benefit

	effects := []Effect{send(s, messages.PaymentConfirmed(lang))}
	if plan.Lifetime && m.credential != "" {
		effects = append(effects, send(s, messages.LifetimeIssued(lang, m.credential)))
	}
	return Result{Session: s, Effects: effects}
}
