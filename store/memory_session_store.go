package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BatmanBruc/paygate-bot/types"
)

type sessionEntry struct {
	mu      sync.Mutex
	session types.Session
	removed bool
}

// MemorySessionStore keeps sessions in process memory. The map lock is held
// only to find or insert an entry; updates serialize on the entry's own lock,
// so different users never wait on each other.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemorySessionStore) lookup(userID string) *sessionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[userID]
}

func (s *MemorySessionStore) lookupOrInsert(userID string, chatID int64) *sessionEntry {
	if e := s.lookup(userID); e != nil {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		return e
	}
	e := &sessionEntry{session: types.NewSession(userID, chatID, s.now())}
	s.entries[userID] = e
	return e
}

// lock returns the locked live entry for userID. The caller unlocks it.
func (s *MemorySessionStore) lock(userID string, chatID int64, create bool) (*sessionEntry, error) {
	for {
		var e *sessionEntry
		if create {
			e = s.lookupOrInsert(userID, chatID)
		} else {
			e = s.lookup(userID)
		}
		if e == nil {
			return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, userID)
		}
		e.mu.Lock()
		if !e.removed {
			return e, nil
		}
		e.mu.Unlock()
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, userID string) (types.Session, error) {
	e, err := s.lock(userID, 0, false)
	if err != nil {
		return types.Session{}, err
	}
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

func (s *MemorySessionStore) GetOrCreate(ctx context.Context, userID string, chatID int64) (types.Session, error) {
	e, err := s.lock(userID, chatID, true)
	if err != nil {
		return types.Session{}, err
	}
	defer e.mu.Unlock()
	if chatID != 0 && e.session.ChatID != chatID {
		e.session.ChatID = chatID
	}
	return e.session.Clone(), nil
}

func (s *MemorySessionStore) AtomicUpdate(ctx context.Context, userID string, fn types.UpdateFunc) (types.Session, error) {
	e, err := s.lock(userID, 0, false)
	if err != nil {
		return types.Session{}, err
	}
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return e.session.Clone(), err
	}
	next, err := applyUpdate(e.session, fn, s.now())
	if err != nil {
		return e.session.Clone(), err
	}
	e.session = next
	return next.Clone(), nil
}

func (s *MemorySessionStore) Reset(ctx context.Context, userID string) (types.Session, error) {
	return s.AtomicUpdate(ctx, userID, resetSession)
}

// Sweep evicts sessions untouched for longer than the store TTL.
func (s *MemorySessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	candidates := make([]string, 0)
	for id, e := range s.entries {
		e.mu.Lock()
		if now.Sub(e.session.UpdatedAt) > s.ttl {
			candidates = append(candidates, id)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range candidates {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		s.mu.Lock()
		e, ok := s.entries[id]
		if ok {
			e.mu.Lock()
			if now.Sub(e.session.UpdatedAt) > s.ttl {
				e.removed = true
				delete(s.entries, id)
				removed++
			}
			e.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed, nil
}

func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
