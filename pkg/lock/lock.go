// Package lock provides short-lived exclusive leases keyed by string, backed
// by process memory or Redis.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrHeld = errors.New("lock is held by another owner")

// Lease is proof of a successful TryLock. Token distinguishes this holder
// from later holders of the same key.
type Lease struct {
	Key   string
	Token string
}

// Locker hands out non-blocking leases that expire after a TTL.
type Locker interface {
	TryLock(ctx context.Context, key string) (*Lease, error)
	Unlock(ctx context.Context, lease *Lease) error
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker serializes holders inside one process.
type MemoryLocker struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	held map[string]memoryEntry
}

func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	return &MemoryLocker{
		ttl:  ttl,
		now:  time.Now,
		held: make(map[string]memoryEntry),
	}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}

	lease := &Lease{Key: key, Token: uuid.NewString()}
	l.held[key] = memoryEntry{token: lease.Token, expires: now.Add(l.ttl)}
	return lease, nil
}

// Unlock releases the lease if it is still the current holder.
func (l *MemoryLocker) Unlock(_ context.Context, lease *Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.held[lease.Key]; ok && e.token == lease.Token {
		delete(l.held, lease.Key)
	}
	return nil
}
