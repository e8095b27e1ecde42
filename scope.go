package cradle

import (
	"sync"

	"github.com/google/uuid"
)

// ObjectSupplier creates the underlying object when a scope has no stored
// instance for a name.
type ObjectSupplier func() (any, error)

// ScopeStrategy is the contract for externally supplied scopes. The
// container wraps Get and Remove with the same in-creation bookkeeping it
// applies to prototypes: a scoped instance is conceptually a prototype with
// an external eviction policy.
type ScopeStrategy interface {
	// Get returns the object stored under name, creating it via supplier
	// if the scope holds none.
	Get(name string, supplier ObjectSupplier) (any, error)

	// Remove evicts and returns the object stored under name, or nil when
	// absent. Destruction callbacks for the name are dropped unexecuted.
	Remove(name string) (any, error)

	// RegisterDestructionCallback registers a callback to run when the
	// named object (or the whole scope) is destroyed.
	RegisterDestructionCallback(name string, callback func())
}

// SessionScope is a bundled ScopeStrategy holding one instance per name for
// the lifetime of a session. Sessions are identified for diagnostics with
// unique IDs; Clear ends the session, running destruction callbacks LIFO.
type SessionScope struct {
	mu        sync.Mutex
	sessionID string
	instances map[string]any
	callbacks []namedCallback
}

type namedCallback struct {
	name     string
	callback func()
}

// NewSessionScope creates an empty session scope.
func NewSessionScope() *SessionScope {
	return &SessionScope{
		sessionID: uuid.NewString(),
		instances: make(map[string]any),
	}
}

// SessionID returns the current session's unique ID.
func (s *SessionScope) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Get implements ScopeStrategy.
func (s *SessionScope) Get(name string, supplier ObjectSupplier) (any, error) {
	s.mu.Lock()
	if instance, ok := s.instances[name]; ok {
		s.mu.Unlock()
		return instance, nil
	}
	s.mu.Unlock()

	// The supplier may re-enter this scope for a dependency, so it runs
	// unlocked; first store wins on a race.
	instance, err := supplier()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.instances[name]; ok {
		return existing, nil
	}
	s.instances[name] = instance
	return instance, nil
}

// Remove implements ScopeStrategy.
func (s *SessionScope) Remove(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, ok := s.instances[name]
	if !ok {
		return nil, nil
	}
	delete(s.instances, name)

	kept := s.callbacks[:0]
	for _, cb := range s.callbacks {
		if cb.name != name {
			kept = append(kept, cb)
		}
	}
	s.callbacks = kept
	return instance, nil
}

// RegisterDestructionCallback implements ScopeStrategy.
func (s *SessionScope) RegisterDestructionCallback(name string, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, namedCallback{name: name, callback: callback})
}

// Clear ends the session: destruction callbacks run LIFO, stored instances
// are dropped, and a fresh session ID is assigned.
func (s *SessionScope) Clear() {
	s.mu.Lock()
	callbacks := s.callbacks
	s.callbacks = nil
	s.instances = make(map[string]any)
	s.sessionID = uuid.NewString()
	s.mu.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i].callback()
	}
}
