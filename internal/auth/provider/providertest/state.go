// Package providertest has helpers for exercising providers without a
// browser.
package providertest

import (
	"sync"
	"time"
)

// State is an in-memory provider.StateStore.
type State struct {
	mu     sync.Mutex
	values map[string]string
}

func NewState() *State {
	return &State{values: make(map[string]string)}
}

func (s *State) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *State) Set(name, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}

func (s *State) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Snapshot copies the current values, e.g. to replay an old cookie set.
func (s *State) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := NewState()
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
