package store

import (
	"fmt"
	"time"

	"github.com/BatmanBruc/paygate-bot/types"
)

// applyUpdate runs fn against a private copy of prior. A panic, an error or
// an invalid result discards the update.
func applyUpdate(prior types.Session, fn types.UpdateFunc, now time.Time) (next types.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = types.Session{}
			err = fmt.Errorf("%w: panic: %v", types.ErrUpdateRejected, r)
		}
	}()

	next, err = fn(prior.Clone())
	if err != nil {
		return types.Session{}, err
	}
	if next.SessionID != prior.SessionID {
		return types.Session{}, fmt.Errorf("%w: session id changed", types.ErrUpdateRejected)
	}
	if err := next.Validate(); err != nil {
		return types.Session{}, fmt.Errorf("%w: %v", types.ErrUpdateRejected, err)
	}
	next.CreatedAt = prior.CreatedAt
	next.UpdatedAt = now
	return next, nil
}

func resetSession(s types.Session) (types.Session, error) {
	s = s.Cleared()
	s.State = types.StateIdle
	return s, nil
}
