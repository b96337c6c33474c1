package types

import (
	"fmt"
	"strconv"
	"time"
)

// Benefit is the privilege granted after payment or credential validation.
type Benefit struct {
	Minutes  int  `json:"minutes,omitempty"`
	Lifetime bool `json:"lifetime,omitempty"`
}

func (b Benefit) Duration() time.Duration {
	if b.Lifetime {
		return 0
	}
	return time.Duration(b.Minutes) * time.Minute
}

func (b Benefit) String() string {
	if b.Lifetime {
		return "lifetime"
	}
	return strconv.Itoa(b.Minutes) + "m"
}

type Session struct {
	SessionID        string    `json:"session_id"`
	ChatID           int64     `json:"chat_id"`
	Lang             string    `json:"lang,omitempty"`
	State            ChatState `json:"state"`
	SelectedPlanID   string    `json:"selected_plan_id,omitempty"`
	PendingInvoiceID string    `json:"pending_invoice_id,omitempty"`
	GrantedBenefit   *Benefit  `json:"granted_benefit,omitempty"`
	Target           string    `json:"target,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewSession(sessionID string, chatID int64, now time.Time) Session {
	return Session{
		SessionID: sessionID,
		ChatID:    chatID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasLifetime reports whether the session holds a lifetime benefit.
func (s Session) HasLifetime() bool {
	return s.GrantedBenefit != nil && s.GrantedBenefit.Lifetime
}

// Cleared drops the transient fields and every benefit except a lifetime one.
func (s Session) Cleared() Session {
	s.SelectedPlanID = ""
	s.PendingInvoiceID = ""
	s.Target = ""
	if !s.HasLifetime() {
		s.GrantedBenefit = nil
	}
	return s
}

// Clone returns a copy that shares no pointers with s.
func (s Session) Clone() Session {
	if s.GrantedBenefit != nil {
		b := *s.GrantedBenefit
		s.GrantedBenefit = &b
	}
	return s
}

// Validate checks the record invariants. Stores refuse to commit a session
// that fails it.
func (s Session) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidSession, s.State)
	}
	if (s.PendingInvoiceID != "") != (s.State == StateAwaitingPayment) {
		return fmt.Errorf("%w: pending invoice %q in state %s", ErrInvalidSession, s.PendingInvoiceID, s.State)
	}
	if s.State == StateAwaitingPayment && s.SelectedPlanID == "" {
		return fmt.Errorf("%w: awaiting payment without a plan", ErrInvalidSession)
	}
	if s.GrantedBenefit != nil && !s.GrantedBenefit.Lifetime {
		if s.GrantedBenefit.Minutes <= 0 {
			return fmt.Errorf("%w: empty benefit", ErrInvalidSession)
		}
		if s.State != StateAwaitingTarget && s.State != StateActive {
			return fmt.Errorf("%w: timed benefit in state %s", ErrInvalidSession, s.State)
		}
	}
	switch s.State {
	case StateAwaitingTarget:
		if s.GrantedBenefit == nil {
			return fmt.Errorf("%w: awaiting target without benefit", ErrInvalidSession)
		}
		if s.Target != "" {
			return fmt.Errorf("%w: target set before activation", ErrInvalidSession)
		}
	case StateActive:
		if s.GrantedBenefit == nil || s.Target == "" {
			return fmt.Errorf("%w: active without benefit and target", ErrInvalidSession)
		}
	case StateStopped:
	default:
		if s.Target != "" {
			return fmt.Errorf("%w: target in state %s", ErrInvalidSession, s.State)
		}
	}
	return nil
}
