package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/starford/synapse/internal/apperr"
)

// Registry maps intent names to handlers. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry holding handlers.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds h under h.Name(). The name must be non-empty, unique, and
// not the reserved question intent.
func (r *Registry) Register(h Handler) error {
	name := strings.TrimSpace(h.Name())
	if name == "" {
		return fmt.Errorf("agent: register: empty handler name")
	}
	if name == IntentQuestion {
		return fmt.Errorf("agent: register %q: name is reserved", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[name]; dup {
		return fmt.Errorf("agent: register %q: %w", name, apperr.ErrAlreadyExists)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Handlers returns the registered handlers sorted by name.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered intent names, sorted.
func (r *Registry) Names() []string {
	hs := r.Handlers()
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Name()
	}
	return out
}
