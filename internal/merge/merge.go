// Package merge computes flattened component descriptors: a descriptor and
// its ancestor chain collapsed into one fully-resolved descriptor, cached by
// name with explicit staleness invalidation.
package merge

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cradleio/cradle/internal/descriptor"
	"github.com/cradleio/cradle/internal/introspect"
)

// Source is the descriptor store the engine reads raw descriptors from.
type Source interface {
	Descriptor(name string) (*descriptor.Component, error)
	Contains(name string) bool
}

// Argument cache states on a flattened descriptor.
const (
	// ArgsUnresolved means no construction plan has been cached yet.
	ArgsUnresolved = iota

	// ArgsResolved means literal argument values were cached and can be
	// replayed directly.
	ArgsResolved

	// ArgsPrepared means a template with dynamic values was cached; the
	// dynamic values must be re-derived on every reuse.
	ArgsPrepared
)

// Flattened is a component descriptor with all parent-chain overrides
// applied, plus the mutable cross-call resolution caches. The caches are
// guarded by CacheMu so concurrent readers observe either a fully-updated
// cache or none of it.
type Flattened struct {
	*descriptor.Component

	// Name of the component this flattened descriptor belongs to.
	Name string

	stale      bool
	generation uint64

	// CacheMu guards the resolution caches below.
	CacheMu sync.Mutex

	// ResolvedType is the discovered concrete type, nil until known.
	ResolvedType reflect.Type

	// IsProducerKnown/IsProducer form the three-state factory-bean flag.
	IsProducerKnown bool
	IsProducer      bool

	// ResolvedExecutable is the winning constructor or factory method.
	ResolvedExecutable *introspect.Executable

	// ArgState, ResolvedArgs and RawArgs form the cached construction
	// plan. In ArgsPrepared state RawArgs holds the pre-conversion source
	// template and dynamic positions must be re-derived on reuse.
	ArgState     int
	ResolvedArgs []any
	RawArgs      []any
}

// Generation returns the merge generation this flattened descriptor was
// computed at. Recomputation after MarkStale yields a higher generation.
func (f *Flattened) Generation() uint64 {
	return f.generation
}

// InvalidatePlan drops the cached construction plan and type discovery.
func (f *Flattened) InvalidatePlan() {
	f.CacheMu.Lock()
	defer f.CacheMu.Unlock()
	f.ResolvedType = nil
	f.IsProducerKnown = false
	f.IsProducer = false
	f.ResolvedExecutable = nil
	f.ArgState = ArgsUnresolved
	f.ResolvedArgs = nil
	f.RawArgs = nil
}

// Engine flattens descriptors and caches the results by name.
type Engine struct {
	// mu guards the cache map and the whole merge computation: parent
	// chains must not be flattened by two generations concurrently.
	mu    sync.Mutex
	cache map[string]*Flattened

	source Source

	// ancestor resolves a parent name equal to the descriptor's own name,
	// mirroring a parent container holding the template definition.
	ancestor Source

	cachingDisabled bool
	generation      uint64
}

// New creates a merge engine over the given descriptor source.
func New(source Source) *Engine {
	return &Engine{
		cache:  make(map[string]*Flattened),
		source: source,
	}
}

// SetAncestor configures the ancestor source consulted for self-referential
// parent names.
func (e *Engine) SetAncestor(ancestor Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ancestor = ancestor
}

// DisableCaching turns off storing of top-level merge results.
func (e *Engine) DisableCaching() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cachingDisabled = true
}

// Resolve returns the flattened descriptor for name, recomputing on cache
// miss or staleness.
func (e *Engine) Resolve(name string) (*Flattened, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(name, nil)
}

// ResolveNested flattens a nested (inner) descriptor against its enclosing
// flattened descriptor. Nested results are never cached globally. An inner
// descriptor that would default to singleton inherits the enclosing scope
// when the enclosing scope is non-singleton: an inner singleton cannot
// outlive a non-singleton outer.
func (e *Engine) ResolveNested(name string, raw *descriptor.Component, enclosing *Flattened) (*Flattened, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	flat, err := e.mergeLocked(name, raw, nil)
	if err != nil {
		return nil, err
	}
	if enclosing != nil && !enclosing.IsSingleton() && flat.Scope == "" {
		flat.Scope = enclosing.EffectiveScope()
	}
	return flat, nil
}

// MarkStale flips the staleness flag on the cached entry for name without
// removing it, forcing recomputation on next access while already-created
// instances stay untouched. Unknown names are ignored.
func (e *Engine) MarkStale(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.cache[name]; ok {
		f.stale = true
	}
}

// ClearCache drops all cached flattened descriptors. Plans cached on the
// dropped entries are invalidated too, so a holder of an old reference
// re-resolves instead of replaying a retired plan.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.cache {
		f.InvalidatePlan()
	}
	e.cache = make(map[string]*Flattened)
}

// Generation returns the merge generation of the cached entry for name.
func (e *Engine) Generation(name string) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.cache[name]
	if !ok {
		return 0, false
	}
	return f.generation, true
}

// resolveLocked implements Resolve with e.mu held. visiting tracks the
// parent chain being flattened to turn inheritance cycles into errors
// instead of unbounded recursion.
func (e *Engine) resolveLocked(name string, visiting []string) (*Flattened, error) {
	if prev, ok := e.cache[name]; ok && !prev.stale {
		return prev, nil
	}

	raw, err := e.source.Descriptor(name)
	if err != nil {
		return nil, err
	}

	flat, err := e.mergeLocked(name, raw, visiting)
	if err != nil {
		return nil, err
	}

	if prev, ok := e.cache[name]; ok {
		carryForward(prev, flat)
	}
	if !e.cachingDisabled {
		e.cache[name] = flat
	}
	return flat, nil
}

// mergeLocked flattens raw against its ancestor chain.
func (e *Engine) mergeLocked(name string, raw *descriptor.Component, visiting []string) (*Flattened, error) {
	for _, seen := range visiting {
		if seen == name {
			return nil, &ParentCycleError{Name: name, Chain: append(visiting, name)}
		}
	}

	e.generation++
	generation := e.generation

	if raw.Parent == "" {
		return &Flattened{
			Component:  raw.Clone(),
			Name:       name,
			generation: generation,
		}, nil
	}

	parent, err := e.resolveParent(name, raw.Parent, append(visiting, name))
	if err != nil {
		return nil, fmt.Errorf("resolving parent %q of %q: %w", raw.Parent, name, err)
	}

	merged := parent.Component.Clone()
	merged.Parent = ""
	merged.OverrideFrom(raw)

	return &Flattened{
		Component:  merged,
		Name:       name,
		generation: generation,
	}, nil
}

// resolveParent follows a parent name, consulting the ancestor source when
// the parent name refers back to the descriptor itself.
func (e *Engine) resolveParent(name, parentName string, visiting []string) (*Flattened, error) {
	if parentName != name {
		return e.resolveLocked(parentName, visiting)
	}

	if e.ancestor == nil {
		return nil, &ParentCycleError{Name: name, Chain: append(visiting, parentName)}
	}
	raw, err := e.ancestor.Descriptor(parentName)
	if err != nil {
		return nil, err
	}
	// The ancestor definition merges under a distinguished name: one hop to
	// the ancestor source is legal, but a chain that loops back is still a
	// cycle.
	return e.mergeLocked(parentName+" (ancestor)", raw, visiting)
}

// carryForward copies expensive discovery caches from the previous cached
// entry when the declared type name, factory-owner name and factory-method
// name are unchanged, so metadata-only edits do not re-pay type and
// executable discovery.
func carryForward(prev, next *Flattened) {
	if prev.TypeName != next.TypeName ||
		prev.FactoryComponent != next.FactoryComponent ||
		prev.FactoryMethod != next.FactoryMethod {
		return
	}

	prev.CacheMu.Lock()
	defer prev.CacheMu.Unlock()
	next.CacheMu.Lock()
	defer next.CacheMu.Unlock()

	next.ResolvedType = prev.ResolvedType
	next.IsProducerKnown = prev.IsProducerKnown
	next.IsProducer = prev.IsProducer
	next.ResolvedExecutable = prev.ResolvedExecutable
}

// ParentCycleError indicates a descriptor inheritance chain that never
// reaches a root descriptor.
type ParentCycleError struct {
	Name  string
	Chain []string
}

func (e *ParentCycleError) Error() string {
	return fmt.Sprintf("descriptor %q has a cyclic parent chain: %s",
		e.Name, strings.Join(e.Chain, " -> "))
}
