// Package resolver selects the best-matching executable for a component,
// binds its arguments, and caches the winning construction plan on the
// flattened descriptor.
package resolver

import (
	"context"
	"reflect"

	"github.com/cradleio/cradle/internal/descriptor"
	"github.com/cradleio/cradle/internal/introspect"
	"github.com/cradleio/cradle/internal/merge"
)

// ParameterSite identifies one parameter position of a candidate executable
// for dependency lookup.
type ParameterSite struct {
	Executable *introspect.Executable
	Index      int
	Type       reflect.Type
	Name       string
}

// DependencyResolver looks up a value for a parameter site by dependency
// resolution. The context carries creation-in-progress tracking for the
// requesting call chain. Implementations report misses with
// ErrDependencyNotFound and ambiguous matches with ErrDependencyNotUnique.
type DependencyResolver interface {
	ResolveDependency(ctx context.Context, site ParameterSite, requesting string) (any, error)
}

// TypeConverter converts a raw declared value to a target parameter type.
type TypeConverter interface {
	Convert(raw any, target reflect.Type) (any, error)
}

// Plan is the output of executable resolution: the chosen executable and
// its bound argument arrays.
type Plan struct {
	Executable *introspect.Executable

	// Args are the post-conversion argument values, ready to invoke.
	Args []any

	// RawArgs are the pre-conversion values. Dynamic positions hold a
	// *DynamicSlot in the cached template.
	RawArgs []any

	// Replayed reports that the plan was served from the descriptor cache
	// rather than a fresh candidate search.
	Replayed bool
}

// DynamicSlot marks an argument position whose value came from dependency
// lookup or another dynamic source. Cached templates store the slot, not
// the value, so reuse re-fetches the dependency fresh.
type DynamicSlot struct {
	Site ParameterSite
}

// Request carries one resolution request.
type Request struct {
	// Ctx carries the creation-tracking state of the call chain for
	// dependency lookups.
	Ctx context.Context

	// Flattened is the descriptor being resolved; the winning plan is
	// cached on it when CachePlan is set and no explicit args were given.
	Flattened *merge.Flattened

	// Name is the requesting component name, for diagnostics.
	Name string

	// Declared overrides the flattened descriptor's argument values; the
	// container substitutes instantiated inner descriptors here. Nil means
	// use the descriptor's declared values.
	Declared *descriptor.ArgumentValues

	// Candidates is the pinned executable set to select among.
	Candidates []*introspect.Executable

	// ExplicitArgs are caller-supplied arguments; they bypass declared
	// values and disable plan caching.
	ExplicitArgs []any

	// Autowire enables dependency lookup for unbound parameters.
	Autowire bool

	// CachePlan permits storing the winning plan on the descriptor.
	CachePlan bool
}

// Options configures resolver behavior.
type Options struct {
	// Strict requires full assignability of both converted and raw values
	// and turns score ties into ambiguity errors.
	Strict bool
}

// Resolver drives executable selection.
type Resolver struct {
	deps      DependencyResolver
	converter TypeConverter
	options   Options
}

// New creates a resolver. deps may be nil when autowiring is never used.
func New(deps DependencyResolver, converter TypeConverter, options Options) *Resolver {
	if converter == nil {
		panic("resolver: converter cannot be nil")
	}
	return &Resolver{deps: deps, converter: converter, options: options}
}
