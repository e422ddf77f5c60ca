// Package handlers provides the command-handler registry the engine
// resolves tasks against, plus the built-in service handlers.
package handlers

import (
	"sync"

	"taskloom/internal/orchestrator"
)

// Registry maps (service, command) pairs to handlers.
type Registry struct {
	mu       sync.RWMutex
	services map[string]map[string]orchestrator.HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]map[string]orchestrator.HandlerFunc)}
}

// Default returns a registry with all built-in handlers registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register("core", "noop", Noop)
	r.Register("core", "fanout", Fanout)
	r.Register("http", "request", HTTPRequest)
	r.Register("shell", "run", ShellRun)
	return r
}

// Register adds or replaces a handler for the given service and command.
func (r *Registry) Register(service, command string, h orchestrator.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services[service] == nil {
		r.services[service] = make(map[string]orchestrator.HandlerFunc)
	}
	r.services[service][command] = h
}

// Lookup resolves a handler by service and command. Satisfies
// orchestrator.HandlerLookup.
func (r *Registry) Lookup(service, command string) (orchestrator.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.services[service][command]
	return h, ok
}

// Services returns the registered service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}
