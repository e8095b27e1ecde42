package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cradleio/cradle/internal/introspect"
)

// Sentinel errors reported by DependencyResolver implementations.
var (
	// ErrDependencyNotFound means no registered component satisfies the
	// parameter site.
	ErrDependencyNotFound = errors.New("no matching dependency found")

	// ErrDependencyNotUnique means more than one registered component
	// satisfies the parameter site equally well.
	ErrDependencyNotUnique = errors.New("multiple equally-good dependency candidates")
)

// NoCandidateError indicates the candidate set was empty.
type NoCandidateError struct {
	Name string
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("component %q: no candidate executables to resolve", e.Name)
}

// AmbiguityError indicates multiple equally-well-matching executables under
// strict mode. The competing candidates are listed for diagnosability.
type AmbiguityError struct {
	Name       string
	Candidates []*introspect.Executable
}

func (e *AmbiguityError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("component %q: ambiguous executable candidates (equal match score):\n", e.Name))
	for _, c := range e.Candidates {
		b.WriteString(fmt.Sprintf("  • %s\n", c))
	}
	b.WriteString("Disambiguate by declaring argument types or indexes, or disable strict matching.")
	return b.String()
}

// BindingError indicates no candidate's parameters could all be satisfied.
// Cause carries the most specific underlying failure; Suppressed records
// the remaining per-candidate failures as context.
type BindingError struct {
	Name       string
	Cause      error
	Suppressed error
}

func (e *BindingError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("component %q: could not bind arguments for any candidate executable", e.Name))
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	if e.Suppressed != nil {
		b.WriteString(fmt.Sprintf("\nsuppressed candidate failures:\n  %v", e.Suppressed))
	}
	return b.String()
}

func (e *BindingError) Unwrap() error {
	return e.Cause
}

// candidateError wraps one candidate's binding failure with its signature.
type candidateError struct {
	executable *introspect.Executable
	cause      error
}

func (e *candidateError) Error() string {
	return fmt.Sprintf("%s: %v", e.executable, e.cause)
}

func (e *candidateError) Unwrap() error {
	return e.cause
}
