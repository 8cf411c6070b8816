package exchange

import (
	"fmt"
	"sync"
)

// Registry holds the single exchange slot. New acquires it and Close
// releases it.
type Registry struct {
	mu     sync.Mutex
	active *Exchange
}

// DefaultRegistry is the process-wide slot used when Config.Registry is nil.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) acquire(e *Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return fmt.Errorf("%w: exchange %#04x", ErrExchangeAlreadyActive, r.active.id)
	}
	r.active = e
	return nil
}

func (r *Registry) release(e *Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == e {
		r.active = nil
	}
}

// Active returns the ID of the exchange holding the slot.
func (r *Registry) Active() (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return 0, false
	}
	return r.active.id, true
}
