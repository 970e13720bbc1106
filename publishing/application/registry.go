package application

import (
	"sort"
	"sync"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
)

// PublisherRegistry maps each platform to its adapter.
type PublisherRegistry struct {
	mu         sync.RWMutex
	publishers map[platform.Platform]platform.Publisher
}

func NewPublisherRegistry(publishers ...platform.Publisher) *PublisherRegistry {
	r := &PublisherRegistry{publishers: make(map[platform.Platform]platform.Publisher)}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the adapter for its platform.
func (r *PublisherRegistry) Register(p platform.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Platform()] = p
}

func (r *PublisherRegistry) Get(p platform.Platform) (platform.Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.publishers[p]
	return pub, ok
}

func (r *PublisherRegistry) Platforms() []platform.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]platform.Platform, 0, len(r.publishers))
	for p := range r.publishers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
