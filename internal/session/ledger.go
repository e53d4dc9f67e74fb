package session

import (
	"context"
	"sync"
	"time"
)

// Ledger records OAuth1 request tokens that have been issued and not yet
// exchanged. A token can be consumed exactly once; the cookie pair alone
// cannot enforce that because a client can replay old cookies.
type Ledger interface {
	Register(ctx context.Context, token string, ttl time.Duration) error
	// Consume reports whether token was outstanding, and retires it.
	Consume(ctx context.Context, token string) (bool, error)
}

// MemoryLedger is a single-process Ledger used when Redis is not configured.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryLedger) Register(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
		}
	}
	m.entries[token] = now.Add(ttl)
	return nil
}

func (m *MemoryLedger) Consume(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[token]
	delete(m.entries, token)
	return ok && m.now().Before(exp), nil
}
