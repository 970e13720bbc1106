// Package signal carries scheduler wake-ups between the API and the scheduler loop,
// in process or across processes through Valkey pub/sub or Postgres LISTEN/NOTIFY.
package signal

import (
	"context"
	"sync"
)

// Local fans wake-ups out to subscribers in the same process.
type Local struct {
	mu   sync.RWMutex
	subs []func()
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Publish(context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.subs {
		fn()
	}
	return nil
}

func (l *Local) Subscribe(_ context.Context, onWake func()) error {
	l.mu.Lock()
	l.subs = append(l.subs, onWake)
	l.mu.Unlock()
	return nil
}
