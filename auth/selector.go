package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/auth-gateway/services"
)

// Factory builds a backend. It is called at most once per Selector.
type Factory func(ctx context.Context) (Module, error)

// Selector holds the registered backend factories and the single live
// backend chosen by configuration.
type Selector struct {
	name string

	mu        sync.RWMutex
	factories map[string]Factory

	once   sync.Once
	module Module
	err    error
}

// NewSelector creates a selector for the backend with the given name.
func NewSelector(name string) *Selector {
	return &Selector{
		name:      name,
		factories: make(map[string]Factory),
	}
}

// Register adds a backend factory under name. Registering the same name
// twice replaces the earlier factory.
func (s *Selector) Register(name string, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[name] = factory
}

// Selected returns the configured backend name.
func (s *Selector) Selected() string {
	return s.name
}

// Available returns the registered backend names in sorted order.
func (s *Selector) Available() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Module returns the selected backend, constructing it on first use.
// Concurrent first calls share one construction; every later call returns
// the same instance or the same construction error.
func (s *Selector) Module(ctx context.Context) (Module, error) {
	s.once.Do(func() {
		s.mu.RLock()
		factory, ok := s.factories[s.name]
		s.mu.RUnlock()

		if !ok {
			s.err = services.WrapConfiguration(
				"unknown authentication service",
				fmt.Errorf("%q is not one of %v", s.name, s.Available()),
			)
			return
		}

		module, err := factory(ctx)
		if err != nil {
			if !services.IsConfigurationError(err) {
				err = services.WrapConfiguration("failed to construct authentication service", err)
			}
			s.err = err
			return
		}
		s.module = module
	})
	return s.module, s.err
}
