// Package activation records granted activations in a ledger. It never acts
// on the target itself.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BatmanBruc/paygate-bot/types"
)

type Activator struct {
	store  types.ActivationStore
	logger *slog.Logger
	now    func() time.Time
}

func New(store types.ActivationStore, logger *slog.Logger) *Activator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activator{store: store, logger: logger, now: time.Now}
}

// Activate opens a ledger entry for target. Time-boxed benefits get an end
// time, lifetime ones do not.
func (a *Activator) Activate(ctx context.Context, sessionID, target string, benefit types.Benefit) (types.Activation, error) {
	if strings.TrimSpace(target) == "" {
		return types.Activation{}, types.ErrInvalidTarget
	}
	if !benefit.Lifetime && benefit.Minutes <= 0 {
		return types.Activation{}, fmt.Errorf("activate %s: empty benefit", sessionID)
	}

	started := a.now()
	act := types.Activation{
		SessionID: sessionID,
		Target:    target,
		Benefit:   benefit,
		StartedAt: started,
	}
	if !benefit.Lifetime {
		ends := started.Add(benefit.Duration())
		act.EndsAt = &ends
	}

	if err := a.store.RecordActivation(ctx, act); err != nil {
		return types.Activation{}, fmt.Errorf("record activation: %w", err)
	}
	a.logger.InfoContext(ctx, "activation started",
		"session_id", sessionID,
		"target", target,
		"benefit", benefit.String(),
	)
	return act, nil
}

// Deactivate closes every open ledger entry of the session.
func (a *Activator) Deactivate(ctx context.Context, sessionID string) error {
	stopped, err := a.store.StopActivation(ctx, sessionID, a.now())
	if err != nil {
		return fmt.Errorf("stop activation: %w", err)
	}
	if stopped {
		a.logger.InfoContext(ctx, "activation stopped", "session_id", sessionID)
	}
	return nil
}
