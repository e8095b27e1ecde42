package resolver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/cradleio/cradle/internal/descriptor"
	"github.com/cradleio/cradle/internal/introspect"
	"github.com/cradleio/cradle/internal/merge"
)

// testConverter mirrors the container's default conversion rules far enough
// for resolution tests: identity, assignability, and string-to-int.
type testConverter struct{}

func (testConverter) Convert(raw any, target reflect.Type) (any, error) {
	if raw == nil {
		return nil, nil
	}
	vt := reflect.TypeOf(raw)
	if vt.AssignableTo(target) {
		return raw, nil
	}
	if s, ok := raw.(string); ok && target.Kind() == reflect.Int {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to int: %w", s, err)
		}
		return n, nil
	}
	if vt.ConvertibleTo(target) {
		return reflect.ValueOf(raw).Convert(target).Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", raw, target)
}

// mapDeps resolves dependencies by parameter type name.
type mapDeps struct {
	values map[string]any
	calls  int
}

func (d *mapDeps) ResolveDependency(_ context.Context, site ParameterSite, _ string) (any, error) {
	d.calls++
	if v, ok := d.values[site.Type.String()]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("type %s: %w", site.Type, ErrDependencyNotFound)
}

func analyzeAll(t *testing.T, fns ...any) []*introspect.Executable {
	t.Helper()
	a := introspect.New()
	out := make([]*introspect.Executable, 0, len(fns))
	for _, fn := range fns {
		exec, err := a.AnalyzeFunc(fn)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		out = append(out, exec)
	}
	return out
}

func newFlattened(name string, args *descriptor.ArgumentValues) *merge.Flattened {
	return &merge.Flattened{
		Component: &descriptor.Component{Args: args},
		Name:      name,
	}
}

type widget struct {
	label string
	size  int
}

func TestResolveZeroParamShortCircuit(t *testing.T) {
	r := New(nil, testConverter{}, Options{})
	flt := newFlattened("w", nil)

	plan, err := r.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  flt,
		Name:       "w",
		Candidates: analyzeAll(t, func() *widget { return &widget{} }),
		CachePlan:  true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Args) != 0 {
		t.Errorf("Args = %v, want empty", plan.Args)
	}

	// The zero-param plan is cached and replays.
	plan, err = r.Resolve(&Request{Ctx: context.Background(), Flattened: flt, Name: "w"})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Replayed {
		t.Error("second resolution did not replay the cached plan")
	}
}

func TestResolveGreedySelection(t *testing.T) {
	// Candidates with 3, 2 and 1 parameters; two explicit arguments pin the
	// two-parameter overload.
	candidates := analyzeAll(t,
		func(label string, size int, scale float64) *widget { return &widget{label: label, size: size} },
		func(label string, size int) *widget { return &widget{label: label, size: size} },
		func(label string) *widget { return &widget{label: label} },
	)

	r := New(nil, testConverter{}, Options{})
	plan, err := r.Resolve(&Request{
		Ctx:          context.Background(),
		Flattened:    newFlattened("w", nil),
		Name:         "w",
		Candidates:   candidates,
		ExplicitArgs: []any{"big", 7},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Executable.ParamCount() != 2 {
		t.Fatalf("selected %s, want the two-parameter overload", plan.Executable)
	}

	got, err := plan.Executable.Invoke(plan.Args)
	if err != nil {
		t.Fatal(err)
	}
	w := got.(*widget)
	if w.label != "big" || w.size != 7 {
		t.Errorf("widget = %+v", w)
	}
}

func TestResolveDeclaredValuesWithConversion(t *testing.T) {
	// The declared "5" converts to int for the richer overload; the
	// zero-param overload loses on greedy ordering.
	args := descriptor.NewArgumentValues()
	args.AddIndexed(0, &descriptor.ArgumentValue{Value: "5"})

	candidates := analyzeAll(t,
		func() *widget { return &widget{} },
		func(size int) *widget { return &widget{size: size} },
	)

	r := New(nil, testConverter{}, Options{})
	flt := newFlattened("w", args)
	plan, err := r.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  flt,
		Name:       "w",
		Candidates: candidates,
		CachePlan:  true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Executable.ParamCount() != 1 {
		t.Fatalf("selected %s, want the int overload", plan.Executable)
	}
	if plan.Args[0] != 5 {
		t.Errorf("converted arg = %v (%T), want int 5", plan.Args[0], plan.Args[0])
	}
	if plan.RawArgs[0] != "5" {
		t.Errorf("raw arg = %v, want the declared string", plan.RawArgs[0])
	}

	// Literal plan replays without re-conversion.
	plan, err = r.Resolve(&Request{Ctx: context.Background(), Flattened: flt, Name: "w"})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Replayed || plan.Args[0] != 5 {
		t.Errorf("replay = %+v", plan)
	}
}

func TestResolveRawExactMatchBeatsConverted(t *testing.T) {
	// Both one-param overloads bind the declared value: int directly,
	// float64 via conversion. The raw exact match must win deterministically.
	args := descriptor.NewArgumentValues()
	args.AddGeneric(&descriptor.ArgumentValue{Value: 7})

	candidates := analyzeAll(t,
		func(scale float64) *widget { return &widget{size: int(scale) * 100} },
		func(size int) *widget { return &widget{size: size} },
	)

	r := New(nil, testConverter{}, Options{})
	plan, err := r.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  newFlattened("w", args),
		Name:       "w",
		Candidates: candidates,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Executable.ParamTypes[0].Kind() != reflect.Int {
		t.Errorf("selected %s, want the int overload", plan.Executable)
	}
}

func TestResolveStrictAmbiguity(t *testing.T) {
	// Two overloads at identical distance for the same declared value.
	args := descriptor.NewArgumentValues()
	args.AddGeneric(&descriptor.ArgumentValue{Value: 7})

	candidates := analyzeAll(t,
		func(n int) *widget { return &widget{size: n} },
		func(m int) *widget { return &widget{size: -m} },
	)

	strict := New(nil, testConverter{}, Options{Strict: true})
	_, err := strict.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  newFlattened("w", args),
		Name:       "w",
		Candidates: candidates,
	})
	var ambErr *AmbiguityError
	if !errors.As(err, &ambErr) {
		t.Fatalf("strict tie: err = %v, want *AmbiguityError", err)
	}
	if len(ambErr.Candidates) != 2 {
		t.Errorf("ambiguity lists %d candidates, want 2", len(ambErr.Candidates))
	}

	// Lenient mode picks the first probe winner deterministically.
	lenient := New(nil, testConverter{}, Options{})
	plan, err := lenient.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  newFlattened("w", args),
		Name:       "w",
		Candidates: candidates,
	})
	if err != nil {
		t.Fatalf("lenient tie: %v", err)
	}
	if plan.Executable != candidates[0] {
		t.Errorf("lenient tie selected %s, want the first candidate", plan.Executable)
	}
}

func TestResolveAutowiredDependency(t *testing.T) {
	deps := &mapDeps{values: map[string]any{"*resolver.widget": &widget{label: "dep"}}}
	r := New(deps, testConverter{}, Options{})

	candidates := analyzeAll(t, func(w *widget) string { return "uses-" + w.label })
	flt := newFlattened("svc", nil)

	plan, err := r.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  flt,
		Name:       "svc",
		Candidates: candidates,
		Autowire:   true,
		CachePlan:  true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, err := plan.Executable.Invoke(plan.Args)
	if err != nil {
		t.Fatal(err)
	}
	if got != "uses-dep" {
		t.Errorf("Invoke = %v", got)
	}

	// The dynamic position is re-fetched on replay, not frozen.
	callsBefore := deps.calls
	plan, err = r.Resolve(&Request{Ctx: context.Background(), Flattened: flt, Name: "svc"})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Replayed {
		t.Fatal("prepared plan was not replayed")
	}
	if deps.calls != callsBefore+1 {
		t.Errorf("dependency fetched %d times on replay, want exactly once more", deps.calls-callsBefore)
	}
}

func TestResolveNilDeclaredValues(t *testing.T) {
	// A descriptor with no declared argument values at all must still probe
	// parameterized candidates instead of panicking.
	deps := &mapDeps{values: map[string]any{"*resolver.widget": &widget{label: "w"}}}
	r := New(deps, testConverter{}, Options{})

	candidates := analyzeAll(t,
		func(w *widget, extra int) string { return "two" },
		func(w *widget) string { return "one-" + w.label },
	)

	plan, err := r.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  &merge.Flattened{Component: &descriptor.Component{}, Name: "svc"},
		Name:       "svc",
		Candidates: candidates,
		Autowire:   true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, err := plan.Executable.Invoke(plan.Args)
	if err != nil {
		t.Fatal(err)
	}
	if got != "one-w" {
		t.Errorf("Invoke = %v, want the satisfiable one-parameter overload", got)
	}
}

func TestResolveLastResortEmptyCollection(t *testing.T) {
	// Single candidate, unresolvable slice parameter: degrade to empty.
	deps := &mapDeps{values: map[string]any{}}
	r := New(deps, testConverter{}, Options{})

	candidates := analyzeAll(t, func(ws []*widget) int { return len(ws) })
	plan, err := r.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  newFlattened("svc", nil),
		Name:       "svc",
		Candidates: candidates,
		Autowire:   true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, err := plan.Executable.Invoke(plan.Args)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Invoke = %v, want empty slice bound", got)
	}
}

func TestResolveNoCandidates(t *testing.T) {
	r := New(nil, testConverter{}, Options{})
	_, err := r.Resolve(&Request{
		Ctx:       context.Background(),
		Flattened: newFlattened("w", nil),
		Name:      "w",
	})
	var ncErr *NoCandidateError
	if !errors.As(err, &ncErr) {
		t.Errorf("err = %v, want *NoCandidateError", err)
	}
}

func TestResolveBindingFailureReportsDeepestCandidate(t *testing.T) {
	// Both candidates fail; the one that bound further supplies the cause.
	args := descriptor.NewArgumentValues()
	args.AddIndexed(0, &descriptor.ArgumentValue{Value: "label"})

	candidates := analyzeAll(t,
		func(label string, size int) *widget { return nil },
		func(ch chan int) *widget { return nil },
	)

	r := New(nil, testConverter{}, Options{})
	_, err := r.Resolve(&Request{
		Ctx:        context.Background(),
		Flattened:  newFlattened("w", args),
		Name:       "w",
		Candidates: candidates,
	})
	var bindErr *BindingError
	if !errors.As(err, &bindErr) {
		t.Fatalf("err = %v, want *BindingError", err)
	}
	if bindErr.Cause == nil {
		t.Fatal("binding error carries no cause")
	}
	// The two-parameter candidate bound its first parameter before failing
	// on the second; its failure is the primary cause.
	if got := bindErr.Cause.Error(); !strings.Contains(got, "parameter 1") {
		t.Errorf("cause = %q, want the deepest candidate's failure", got)
	}
}

func TestResolveExplicitArgsSkipCache(t *testing.T) {
	candidates := analyzeAll(t, func(size int) *widget { return &widget{size: size} })
	r := New(nil, testConverter{}, Options{})
	flt := newFlattened("w", nil)

	plan, err := r.Resolve(&Request{
		Ctx:          context.Background(),
		Flattened:    flt,
		Name:         "w",
		Candidates:   candidates,
		ExplicitArgs: []any{3},
		CachePlan:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Replayed {
		t.Error("explicit-arg resolution claims replay")
	}

	// Nothing was cached: a follow-up without candidates cannot resolve.
	if _, err := r.Resolve(&Request{Ctx: context.Background(), Flattened: flt, Name: "w"}); err == nil {
		t.Error("explicit-arg plan leaked into the descriptor cache")
	}
}
