package cradle

import (
	"sync"

	"github.com/cradleio/cradle/internal/descriptor"
)

// Scope names understood natively by the container.
const (
	ScopeSingleton = descriptor.ScopeSingleton
	ScopePrototype = descriptor.ScopePrototype
)

// ComponentDescriptor is the declarative configuration for one constructible
// unit: its type or producer, scope, declared arguments and lifecycle
// method names.
type ComponentDescriptor = descriptor.Component

// ArgumentValues holds declared constructor or factory-method argument
// values, split into position-indexed and generic (unordered) values.
type ArgumentValues = descriptor.ArgumentValues

// ArgumentValue is a single declared argument value.
type ArgumentValue = descriptor.ArgumentValue

// NewArgumentValues creates an empty argument value set.
func NewArgumentValues() *ArgumentValues {
	return descriptor.NewArgumentValues()
}

// DescriptorSource is the descriptor store the container reads raw
// descriptors from. Parsing and loading descriptors from external formats
// happens behind this interface.
type DescriptorSource interface {
	// Descriptor returns the raw descriptor registered under name.
	Descriptor(name string) (*ComponentDescriptor, error)

	// Contains reports whether a descriptor is registered under name.
	Contains(name string) bool
}

// Store is an in-memory DescriptorSource for embedders and tests.
type Store struct {
	mu          sync.RWMutex
	descriptors map[string]*ComponentDescriptor
}

// NewStore creates an empty in-memory descriptor store.
func NewStore() *Store {
	return &Store{descriptors: make(map[string]*ComponentDescriptor)}
}

// Register adds or replaces the descriptor for name.
func (s *Store) Register(name string, d *ComponentDescriptor) error {
	if name == "" {
		return ErrComponentNameEmpty
	}
	if d == nil {
		return ErrDescriptorNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors[name] = d
	return nil
}

// Remove drops the descriptor for name.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.descriptors, name)
}

// Descriptor implements DescriptorSource.
func (s *Store) Descriptor(name string) (*ComponentDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[name]
	if !ok {
		return nil, &ComponentNotFoundError{Name: name}
	}
	return d, nil
}

// Contains implements DescriptorSource.
func (s *Store) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.descriptors[name]
	return ok
}

// Names returns all registered descriptor names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.descriptors))
	for name := range s.descriptors {
		names = append(names, name)
	}
	return names
}
