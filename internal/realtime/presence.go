package realtime

import (
	"context"
	"sync"
	"time"
)

// Presence records which connection represents each user. The hub is
// authoritative for its own connections; Presence lets other instances see
// them. *cache.PresenceStore satisfies it.
type Presence interface {
	SetOnline(ctx context.Context, userID, connID string) error
	Refresh(ctx context.Context, userID, connID string) error
	SetOffline(ctx context.Context, userID, connID string) error
	Connection(ctx context.Context, userID string) (string, error)
}

type presenceEntry struct {
	connID  string
	expires time.Time
}

// MemoryPresence is a single-process Presence with the same TTL and
// owner-only release semantics as the Redis store.
type MemoryPresence struct {
	mu      sync.Mutex
	entries map[string]presenceEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryPresence returns a MemoryPresence whose entries expire after ttl.
func NewMemoryPresence(ttl time.Duration) *MemoryPresence {
	return &MemoryPresence{entries: make(map[string]presenceEntry), ttl: ttl, now: time.Now}
}

func (p *MemoryPresence) SetOnline(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[userID] = presenceEntry{connID: connID, expires: p.now().Add(p.ttl)}
	return nil
}

func (p *MemoryPresence) Refresh(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[userID]; ok && e.connID == connID {
		e.expires = p.now().Add(p.ttl)
		p.entries[userID] = e
	}
	return nil
}

func (p *MemoryPresence) SetOffline(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[userID]; ok && e.connID == connID {
		delete(p.entries, userID)
	}
	return nil
}

func (p *MemoryPresence) Connection(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return "", nil
	}
	if !p.now().Before(e.expires) {
		delete(p.entries, userID)
		return "", nil
	}
	return e.connID, nil
}
