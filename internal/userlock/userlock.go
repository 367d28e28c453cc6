package userlock

import (
	"sync"

	"github.com/google/uuid"
)

// Locker serializes mutations per user identity. Margin checks, interest
// accrual, trades and forced liquidations for the same user take the same
// lock; operations on different users proceed in parallel.
// Uses per-user locks instead of a global lock.
type Locker struct {
	mapMutex sync.RWMutex
	locks    map[uuid.UUID]*sync.Mutex
}

// New creates an empty locker.
func New() *Locker {
	return &Locker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock locks the given user's mutex, creating it on first use.
func (l *Locker) Lock(user uuid.UUID) {
	l.mapMutex.Lock()
	mu, ok := l.locks[user]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[user] = mu
	}
	l.mapMutex.Unlock()

	mu.Lock()
}

// Unlock releases the given user's mutex.
func (l *Locker) Unlock(user uuid.UUID) {
	l.mapMutex.RLock()
	mu := l.locks[user]
	l.mapMutex.RUnlock()

	if mu != nil {
		mu.Unlock()
	}
}
