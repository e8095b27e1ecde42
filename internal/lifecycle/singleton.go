// Package lifecycle implements the scope-aware get-or-create protocol:
// the singleton registry with early-reference exposure, the producer-output
// cache that shares its lock, and context-scoped creation tracking.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// EarlyFactory produces an early reference to a singleton that is still
// mid-creation, allowing the layer above to break reference cycles.
type EarlyFactory func() any

// SingletonRegistry owns singleton instances and the bookkeeping around
// their creation. Creation is serialized by one coarse lock shared by all
// names; fully-created singletons are read lock-free.
type SingletonRegistry struct {
	// singletons holds fully-created instances. Publish-once, read-many.
	singletons sync.Map // name -> any

	// creationMu serializes all singleton creation chains. It is held for
	// the whole creation of a chain, not per name, so the in-creation set
	// is always observed consistently.
	creationMu sync.Mutex

	// mu guards the mutable bookkeeping maps below.
	mu          sync.Mutex
	early       map[string]any
	factories   map[string]EarlyFactory
	inCreation  map[string]struct{}
	products    map[string]any // producer-output cache, same lock domain
	disposers   []namedDisposer
	disposersMu sync.Mutex
}

type namedDisposer struct {
	name    string
	dispose func() error
}

// NewSingletonRegistry creates an empty singleton registry.
func NewSingletonRegistry() *SingletonRegistry {
	return &SingletonRegistry{
		early:      make(map[string]any),
		factories:  make(map[string]EarlyFactory),
		inCreation: make(map[string]struct{}),
		products:   make(map[string]any),
	}
}

// Register adds a fully-created singleton under name. It fails when an
// instance is already present.
func (r *SingletonRegistry) Register(name string, instance any) error {
	if _, loaded := r.singletons.LoadOrStore(name, instance); loaded {
		return fmt.Errorf("singleton %q already registered", name)
	}
	r.mu.Lock()
	delete(r.early, name)
	delete(r.factories, name)
	r.mu.Unlock()
	return nil
}

// Get returns the singleton registered under name. While the name is
// mid-creation, allowEarly additionally consults the early-reference cache
// and, on miss, materializes a registered early factory.
func (r *SingletonRegistry) Get(name string, allowEarly bool) (any, bool) {
	if v, ok := r.singletons.Load(name); ok {
		return v, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, creating := r.inCreation[name]; !creating {
		return nil, false
	}
	if v, ok := r.early[name]; ok {
		return v, true
	}
	if !allowEarly {
		return nil, false
	}
	if factory, ok := r.factories[name]; ok {
		v := factory()
		r.early[name] = v
		delete(r.factories, name)
		return v, true
	}
	return nil, false
}

// Contains reports whether a fully-created singleton exists for name.
func (r *SingletonRegistry) Contains(name string) bool {
	_, ok := r.singletons.Load(name)
	return ok
}

// IsCurrentlyInCreation reports whether name is mid-creation.
func (r *SingletonRegistry) IsCurrentlyInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, creating := r.inCreation[name]
	return creating
}

// RegisterEarlyFactory exposes an early reference supplier for a singleton
// that is mid-creation. Ignored once the singleton is fully present.
func (r *SingletonRegistry) RegisterEarlyFactory(name string, factory EarlyFactory) {
	if _, ok := r.singletons.Load(name); ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.early[name]; !ok {
		r.factories[name] = factory
	}
}

// GetOrCreate returns the singleton for name, creating it via supplier if
// absent. Creation for the whole call chain holds the coarse creation lock;
// nested creation within the same chain (tracked by creation) reuses the
// already-held lock instead of deadlocking on re-entry.
//
// On supplier failure the entry is fully purged, so a later request may
// retry. The in-creation mark is always cleared, even on panic.
func (r *SingletonRegistry) GetOrCreate(creation *Creation, name string, supplier func() (any, error)) (any, error) {
	if v, ok := r.singletons.Load(name); ok {
		return v, nil
	}

	defer r.LockCreation(creation)()

	// Re-check: another chain may have created it while we waited.
	if v, ok := r.singletons.Load(name); ok {
		return v, nil
	}

	if err := r.beforeCreation(name); err != nil {
		return nil, err
	}
	defer r.afterCreation(name)

	instance, err := supplier()
	if err != nil {
		r.purge(name)
		return nil, err
	}

	r.addSingleton(name, instance)
	return instance, nil
}

// beforeCreation marks name as in-creation; a name already marked means the
// chain re-entered creation for the same singleton without an early
// reference, which cannot complete.
func (r *SingletonRegistry) beforeCreation(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, creating := r.inCreation[name]; creating {
		return &CurrentlyInCreationError{Name: name}
	}
	r.inCreation[name] = struct{}{}
	return nil
}

func (r *SingletonRegistry) afterCreation(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inCreation, name)
}

func (r *SingletonRegistry) addSingleton(name string, instance any) {
	r.singletons.Store(name, instance)
	r.mu.Lock()
	delete(r.early, name)
	delete(r.factories, name)
	r.mu.Unlock()
}

// purge removes every trace of a failed creation attempt.
func (r *SingletonRegistry) purge(name string) {
	r.singletons.Delete(name)
	r.mu.Lock()
	delete(r.early, name)
	delete(r.factories, name)
	delete(r.products, name)
	r.mu.Unlock()
}

// Remove drops the singleton and its caches for name.
func (r *SingletonRegistry) Remove(name string) {
	r.purge(name)
}

// LockCreation acquires the singleton creation lock unless the calling
// chain already holds it, and returns the matching release. The release is
// a no-op for a chain that was already inside the lock.
func (r *SingletonRegistry) LockCreation(creation *Creation) func() {
	if creation.holdsSingletonLock {
		return func() {}
	}
	r.creationMu.Lock()
	creation.holdsSingletonLock = true
	return func() {
		creation.holdsSingletonLock = false
		r.creationMu.Unlock()
	}
}

// Product returns the cached producer output for name.
func (r *SingletonRegistry) Product(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.products[name]
	return v, ok
}

// StoreProduct caches a producer output for name.
func (r *SingletonRegistry) StoreProduct(name string, product any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[name] = product
}

// RemoveProduct drops the cached producer output for name.
func (r *SingletonRegistry) RemoveProduct(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, name)
}

// TrackDisposer records a destruction callback for a created singleton.
// Callbacks run LIFO on Close.
func (r *SingletonRegistry) TrackDisposer(name string, dispose func() error) {
	r.disposersMu.Lock()
	defer r.disposersMu.Unlock()
	r.disposers = append(r.disposers, namedDisposer{name: name, dispose: dispose})
}

// Close disposes all tracked singletons in reverse creation order and
// clears the registry. Disposal errors are aggregated.
func (r *SingletonRegistry) Close() error {
	r.disposersMu.Lock()
	toDispose := r.disposers
	r.disposers = nil
	r.disposersMu.Unlock()

	var errs []error
	for i := len(toDispose) - 1; i >= 0; i-- {
		if err := toDispose[i].dispose(); err != nil {
			errs = append(errs, fmt.Errorf("disposing %q: %w", toDispose[i].name, err))
		}
	}

	r.singletons.Range(func(key, _ any) bool {
		r.singletons.Delete(key)
		return true
	})
	r.mu.Lock()
	r.early = make(map[string]any)
	r.factories = make(map[string]EarlyFactory)
	r.inCreation = make(map[string]struct{})
	r.products = make(map[string]any)
	r.mu.Unlock()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CurrentlyInCreationError indicates a singleton was requested for creation
// while already mid-creation in the same chain, without an early reference
// to satisfy the request.
type CurrentlyInCreationError struct {
	Name string
}

func (e *CurrentlyInCreationError) Error() string {
	return fmt.Sprintf("singleton %q is currently in creation: unresolvable circular reference", e.Name)
}
