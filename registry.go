package chcommon

import (
	"slices"
	"sync"
	"time"
)

// Registry holds named retry policies, usually loaded by [LoadConfig]. It is
// safe for concurrent use.
type Registry struct {
	policies map[string]*RetryPolicy
	timeouts map[string]time.Duration
	render   RenderConfig
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]*RetryPolicy),
		timeouts: make(map[string]time.Duration),
	}
}

// Register stores policy under name, replacing any previous entry. A zero
// timeout means the calls are unbounded.
func (r *Registry) Register(name string, policy *RetryPolicy, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[name] = policy

	if timeout > 0 {
		r.timeouts[name] = timeout
	} else {
		delete(r.timeouts, name)
	}
}

// Policy returns the named policy.
func (r *Registry) Policy(name string) (*RetryPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[name]

	return p, ok
}

// PolicyOr returns the named policy, or fallback when it is not registered.
func (r *Registry) PolicyOr(name string, fallback *RetryPolicy) *RetryPolicy {
	if p, ok := r.Policy(name); ok {
		return p
	}

	return fallback
}

// Timeout returns the whole-call timeout configured for name, zero if none.
func (r *Registry) Timeout(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.timeouts[name]
}

// ExecuteOptions returns the [Execute] options implied by the named entry's
// configuration.
func (r *Registry) ExecuteOptions(name string) []ExecuteOption {
	if d := r.Timeout(name); d > 0 {
		return []ExecuteOption{WithTimeout(d)}
	}

	return nil
}

// Names returns the registered policy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Render returns the render section of the loaded configuration.
func (r *Registry) Render() RenderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.render
}
