package identity

import (
	"context"
	"log/slog"
	"sync"

	"tonygamingtz/pkg/domain"
)

// Slot is the on-device storage port for the single active-identity record.
// Implementations are last-writer-wins; concurrent writers are reconciled
// only through change notifications, there is no lock across writers.
type Slot interface {
	Get() (domain.Identity, bool, error)
	Set(domain.Identity) error
	Clear() error
	// Subscribe registers a callback fired on every external change to the
	// slot. The returned func unsubscribes.
	Subscribe(fn func(domain.Identity, bool)) func()
}

// Registry mirrors identity records to a remote store. Writes are best
// effort; callers treat the slot as the durable source of truth.
type Registry interface {
	SaveIdentity(ctx context.Context, id domain.Identity) error
	GetIdentity(ctx context.Context, id string) (domain.Identity, bool, error)
}

// Store is the session context object handed to components that need the
// current identity. It reads local-first and mirrors to the registry
// opportunistically.
type Store struct {
	slot     Slot
	registry Registry
}

// NewStore wires the session store from an injected slot and optional registry.
func NewStore(slot Slot, registry Registry) *Store {
	return &Store{slot: slot, registry: registry}
}

// SignIn normalizes and activates an identity. The local write decides
// success; a failed registry mirror is logged and swallowed.
func (s *Store) SignIn(ctx context.Context, id domain.Identity) (domain.Identity, error) {
	id = Normalize(id)
	if err := s.slot.Set(id); err != nil {
		return domain.Identity{}, err
	}
	s.mirror(ctx, id)
	return id, nil
}

// Touch updates last-seen on the active identity, if any.
func (s *Store) Touch(ctx context.Context, id domain.Identity) {
	if err := s.slot.Set(id); err != nil {
		slog.Warn("identity slot update failed", "err", err)
		return
	}
	s.mirror(ctx, id)
}

// Current returns the active identity. The identity class is re-derived on
// every read so an edited slot cannot forge administrator status.
func (s *Store) Current() (domain.Identity, bool) {
	id, ok, err := s.slot.Get()
	if err != nil || !ok {
		return domain.Identity{}, false
	}
	return Normalize(id), true
}

// SignOut clears the active-session pointer. The historical registry entry
// is left intact.
func (s *Store) SignOut() error {
	return s.slot.Clear()
}

// Subscribe relays slot change notifications, normalizing each record before
// delivery.
func (s *Store) Subscribe(fn func(domain.Identity, bool)) func() {
	return s.slot.Subscribe(func(id domain.Identity, ok bool) {
		if ok {
			id = Normalize(id)
		}
		fn(id, ok)
	})
}

func (s *Store) mirror(ctx context.Context, id domain.Identity) {
	if s.registry == nil {
		return
	}
	if err := s.registry.SaveIdentity(ctx, id); err != nil {
		slog.Warn("identity mirror failed", "id", id.ID, "err", err)
	}
}

// MemorySlot keeps the active identity in process memory.
type MemorySlot struct {
	mu   sync.Mutex
	id   domain.Identity
	ok   bool
	subs map[int]func(domain.Identity, bool)
	next int
}

// NewMemorySlot builds an empty slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{subs: make(map[int]func(domain.Identity, bool))}
}

// Get returns the slot contents.
func (m *MemorySlot) Get() (domain.Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.ok, nil
}

// Set replaces the slot contents, last writer wins.
func (m *MemorySlot) Set(id domain.Identity) error {
	m.mu.Lock()
	m.id = id
	m.ok = true
	subs := m.snapshot()
	m.mu.Unlock()
	for _, fn := range subs {
		fn(id, true)
	}
	return nil
}

// Clear empties the slot.
func (m *MemorySlot) Clear() error {
	m.mu.Lock()
	m.id = domain.Identity{}
	m.ok = false
	subs := m.snapshot()
	m.mu.Unlock()
	for _, fn := range subs {
		fn(domain.Identity{}, false)
	}
	return nil
}

// Subscribe registers a change callback.
func (m *MemorySlot) Subscribe(fn func(domain.Identity, bool)) func() {
	m.mu.Lock()
	key := m.next
	m.next++
	m.subs[key] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, key)
		m.mu.Unlock()
	}
}

func (m *MemorySlot) snapshot() []func(domain.Identity, bool) {
	out := make([]func(domain.Identity, bool), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}
