package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BatmanBruc/paygate-bot/types"
)

type bindingEntry struct {
	mu      sync.Mutex
	binding types.InvoiceBinding
	removed bool
}

// MemoryBindingStore holds invoice bindings in memory. Confirmation locks the
// single binding, not the store.
type MemoryBindingStore struct {
	mu       sync.RWMutex
	bindings map[string]*bindingEntry
	orders   map[string]string
}

func NewMemoryBindingStore() *MemoryBindingStore {
	return &MemoryBindingStore{
		bindings: make(map[string]*bindingEntry),
		orders:   make(map[string]string),
	}
}

func (s *MemoryBindingStore) CreateBinding(ctx context.Context, b types.InvoiceBinding) error {
	if b.InvoiceID == "" {
		return fmt.Errorf("binding: empty invoice id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bindings[b.InvoiceID]; exists {
		return fmt.Errorf("binding: invoice %s already bound", b.InvoiceID)
	}
	b.Status = types.BindingPending
	s.bindings[b.InvoiceID] = &bindingEntry{binding: b}
	if b.OrderID != "" {
		s.orders[b.OrderID] = b.InvoiceID
	}
	return nil
}

func (s *MemoryBindingStore) ConfirmBinding(ctx context.Context, invoiceID string, at time.Time) (types.InvoiceBinding, error) {
	s.mu.RLock()
	e, ok := s.bindings[invoiceID]
	s.mu.RUnlock()
	if !ok {
		return types.InvoiceBinding{}, fmt.Errorf("%w: %s", types.ErrBindingNotFound, invoiceID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return types.InvoiceBinding{}, fmt.Errorf("%w: %s", types.ErrBindingNotFound, invoiceID)
	}
	if e.binding.Status == types.BindingConfirmed {
		return e.binding, fmt.Errorf("%w: %s", types.ErrAlreadyConsumed, invoiceID)
	}
	e.binding.Status = types.BindingConfirmed
	confirmedAt := at
	e.binding.ConfirmedAt = &confirmedAt
	return e.binding, nil
}

func (s *MemoryBindingStore) ReopenBinding(ctx context.Context, invoiceID string) error {
	s.mu.RLock()
	e, ok := s.bindings[invoiceID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrBindingNotFound, invoiceID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", types.ErrBindingNotFound, invoiceID)
	}
	e.binding.Status = types.BindingPending
	e.binding.ConfirmedAt = nil
	return nil
}

func (s *MemoryBindingStore) InvoiceForOrder(ctx context.Context, orderID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoiceID, ok := s.orders[orderID]
	if !ok {
		return "", fmt.Errorf("%w: order %s", types.ErrBindingNotFound, orderID)
	}
	return invoiceID, nil
}

func (s *MemoryBindingStore) DeletePendingBinding(ctx context.Context, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.bindings[invoiceID]
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binding.Status != types.BindingPending {
		return nil
	}
	e.removed = true
	delete(s.bindings, invoiceID)
	delete(s.orders, e.binding.OrderID)
	return nil
}

// SweepBindings drops pending bindings created before the cutoff. Confirmed
// bindings stay so that late replays are still recognised as replays.
func (s *MemoryBindingStore) SweepBindings(ctx context.Context, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.bindings {
		e.mu.Lock()
		if e.binding.Status == types.BindingPending && e.binding.CreatedAt.Before(createdBefore) {
			e.removed = true
			delete(s.bindings, id)
			delete(s.orders, e.binding.OrderID)
			removed++
		}
		e.mu.Unlock()
	}
	return removed, nil
}

// Pending lists bindings that still wait for payment.
func (s *MemoryBindingStore) Pending() []types.InvoiceBinding {
	s.mu.RLock()
	entries := make([]*bindingEntry, 0, len(s.bindings))
	for _, e := range s.bindings {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]types.InvoiceBinding, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed && e.binding.Status == types.BindingPending {
			out = append(out, e.binding)
		}
		e.mu.Unlock()
	}
	return out
}

// MemoryActivationStore is the in-process activation ledger.
type MemoryActivationStore struct {
	mu          sync.Mutex
	activations map[string][]types.Activation
}

func NewMemoryActivationStore() *MemoryActivationStore {
	return &MemoryActivationStore{activations: make(map[string][]types.Activation)}
}

func (s *MemoryActivationStore) RecordActivation(ctx context.Context, a types.Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations[a.SessionID] = append(s.activations[a.SessionID], a)
	return nil
}

func (s *MemoryActivationStore) StopActivation(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.activations[sessionID]
	stopped := false
	for i := range list {
		if list[i].StoppedAt == nil {
			t := at
			list[i].StoppedAt = &t
			stopped = true
		}
	}
	return stopped, nil
}

func (s *MemoryActivationStore) Activations(sessionID string) []types.Activation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Activation, len(s.activations[sessionID]))
	copy(out, s.activations[sessionID])
	return out
}
