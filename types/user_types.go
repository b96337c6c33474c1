package types

import (
	"context"
	"time"
)

// UpdateFunc computes the next session from the current one. It must not
// perform I/O; returning an error discards the update.
type UpdateFunc func(Session) (Session, error)

type SessionStore interface {
	Get(ctx context.Context, userID string) (Session, error)
	GetOrCreate(ctx context.Context, userID string, chatID int64) (Session, error)
	// AtomicUpdate applies fn under per-session mutual exclusion. On failure
	// the prior session is returned with the error.
	AtomicUpdate(ctx context.Context, userID string, fn UpdateFunc) (Session, error)
	Reset(ctx context.Context, userID string) (Session, error)
}

// Sweeper is implemented by stores that evict stale records themselves.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
