package cradle

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cradleio/cradle/internal/graph"
	"github.com/cradleio/cradle/internal/lifecycle"
	"github.com/cradleio/cradle/internal/resolver"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Base errors wrapped into typed errors when returned. Never returned bare
// to callers without context.

var (
	ErrContainerClosed    = errors.New("container has been closed")
	ErrComponentNameEmpty = errors.New("component name cannot be empty")
	ErrDescriptorNil      = errors.New("descriptor cannot be nil")
	ErrScopeStrategyNil   = errors.New("scope strategy cannot be nil")

	// Dependency-lookup sentinels reported by DependencyResolver
	// implementations.
	ErrDependencyNotFound  = resolver.ErrDependencyNotFound
	ErrDependencyNotUnique = resolver.ErrDependencyNotUnique
)

var (
	_ error = (*ComponentNotFoundError)(nil)
	_ error = (*ConfigurationError)(nil)
	_ error = (*CreationError)(nil)
	_ error = (*CircularCreationError)(nil)
	_ error = (*UnknownScopeError)(nil)
	_ error = (*ProducerError)(nil)
	_ error = (*ProducerNotReadyError)(nil)
	_ error = (*NotProducerError)(nil)
	_ error = (*ConversionError)(nil)
)

// Type aliases for internal error types exposed at the container surface.
type (
	// DependsOnCycleError reports a cycle between declared depends-on
	// names, with the full cycle path.
	DependsOnCycleError = graph.CycleError

	// CurrentlyInCreationError reports a singleton requested for creation
	// while already mid-creation without an early reference.
	CurrentlyInCreationError = lifecycle.CurrentlyInCreationError

	// AmbiguityError reports multiple equally-good executables in strict
	// mode.
	AmbiguityError = resolver.AmbiguityError

	// BindingError reports that no candidate executable's parameters
	// could all be satisfied.
	BindingError = resolver.BindingError
)

// ComponentNotFoundError indicates no descriptor is registered under the
// requested name.
type ComponentNotFoundError struct {
	Name string
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("no component descriptor registered for %q", e.Name)
}

// ConfigurationError indicates fatal misconfiguration: unresolved parent
// names, abstract components requested directly, and similar. Never
// retried.
type ConfigurationError struct {
	Name   string
	Origin string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("component %q: %s", e.Name, e.Reason))
	if e.Origin != "" {
		b.WriteString(fmt.Sprintf(" (defined in %s)", e.Origin))
	}
	return b.String()
}

// CreationError wraps a failure while materializing a component instance,
// carrying descriptor provenance.
type CreationError struct {
	Name   string
	Origin string
	Cause  error
}

func (e *CreationError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("failed to create component %q", e.Name))
	if e.Origin != "" {
		b.WriteString(fmt.Sprintf(" (defined in %s)", e.Origin))
	}
	b.WriteString(fmt.Sprintf(": %v", e.Cause))
	return b.String()
}

func (e *CreationError) Unwrap() error {
	return e.Cause
}

// CircularCreationError indicates a prototype or custom-scoped component
// requested itself, directly or transitively, within one call chain. Unlike
// singleton circularity, this has no resolution path and is always fatal.
type CircularCreationError struct {
	Name string
}

func (e *CircularCreationError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("circular creation of non-singleton component %q\n\n", e.Name))
	b.WriteString("Prototype-scoped components cannot participate in reference cycles:\n")
	b.WriteString("every request creates a new instance, so the cycle would never close.\n\n")
	b.WriteString("To resolve this:\n")
	b.WriteString("  • Make one side of the cycle singleton-scoped\n")
	b.WriteString("  • Break the cycle with a producer component resolved lazily\n")
	return b.String()
}

// UnknownScopeError indicates a descriptor names a scope with no registered
// strategy.
type UnknownScopeError struct {
	Name  string
	Scope string
	Known []string
}

func (e *UnknownScopeError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("component %q: no scope strategy registered for %q", e.Name, e.Scope)
	}
	return fmt.Sprintf("component %q: no scope strategy registered for %q (registered scopes: %s)",
		e.Name, e.Scope, strings.Join(e.Known, ", "))
}

// ProducerError wraps a failure inside a producer's Produce call. Not
// retryable without fixing the producer.
type ProducerError struct {
	Name  string
	Cause error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer %q failed to produce: %v", e.Name, e.Cause)
}

func (e *ProducerError) Unwrap() error {
	return e.Cause
}

// ProducerNotReadyError indicates the producer component exists but is not
// yet initialized far enough to produce. Retryable by the caller.
type ProducerNotReadyError struct {
	Name string
}

func (e *ProducerNotReadyError) Error() string {
	return fmt.Sprintf("producer %q is not yet initialized; retry after its creation completes", e.Name)
}

// NotProducerError indicates the producer-dereference marker was used on a
// component that is not a producer.
type NotProducerError struct {
	Name string
	Type reflect.Type
}

func (e *NotProducerError) Error() string {
	return fmt.Sprintf("component %q (%s) is not a producer; remove the %q prefix",
		e.Name, formatType(e.Type), ProducerPrefix)
}

// ConversionError indicates a declared or supplied value could not be
// converted to the target parameter type.
type ConversionError struct {
	Value  any
	Target reflect.Type
	Cause  error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot convert %v (%T) to %s: %v", e.Value, e.Value, formatType(e.Target), e.Cause)
	}
	return fmt.Sprintf("cannot convert %v (%T) to %s", e.Value, e.Value, formatType(e.Target))
}

func (e *ConversionError) Unwrap() error {
	return e.Cause
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
