package memory

import (
	"context"
	"sync"
)

// DispatchLatch is an in-memory one-shot guard keyed by room session.
type DispatchLatch struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewDispatchLatch() *DispatchLatch {
	return &DispatchLatch{
		held: make(map[string]struct{}),
	}
}

// TryAcquire returns true only for the first call per key.
func (l *DispatchLatch) TryAcquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

// Release forgets key so a later session with the same key may dispatch again.
func (l *DispatchLatch) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
