package introspect

import (
	"errors"
	"strings"
	"testing"
)

type widget struct {
	label string
	size  int
}

func newWidget() *widget { return &widget{} }

func newSizedWidget(size int) *widget { return &widget{size: size} }

func badNoReturn() {}

func badOnlyError() error { return nil }

func withError(s string) (*widget, error) {
	if s == "" {
		return nil, errors.New("empty label")
	}
	return &widget{label: s}, nil
}

func TestAnalyzeFunc(t *testing.T) {
	a := New()

	exec, err := a.AnalyzeFunc(newSizedWidget)
	if err != nil {
		t.Fatalf("AnalyzeFunc: %v", err)
	}
	if exec.ParamCount() != 1 {
		t.Errorf("ParamCount = %d, want 1", exec.ParamCount())
	}
	if exec.HasErrorReturn {
		t.Error("HasErrorReturn = true for single-return constructor")
	}
	if !strings.Contains(exec.Name, "newSizedWidget") {
		t.Errorf("Name = %q, want the function symbol", exec.Name)
	}
}

func TestAnalyzeFuncRejectsInvalidShapes(t *testing.T) {
	a := New()
	for _, fn := range []any{nil, 42, badNoReturn, badOnlyError} {
		if _, err := a.AnalyzeFunc(fn); err == nil {
			t.Errorf("AnalyzeFunc(%T) accepted an invalid constructor", fn)
		}
	}
}

func TestAnalyzeFuncCaches(t *testing.T) {
	a := New()
	first, err := a.AnalyzeFunc(newWidget)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.AnalyzeFunc(newWidget)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("repeated analysis of the same function returned distinct descriptors")
	}
}

func TestInvokeUnwrapsError(t *testing.T) {
	a := New()
	exec, err := a.AnalyzeFunc(withError)
	if err != nil {
		t.Fatal(err)
	}

	got, err := exec.Invoke([]any{"ok"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.(*widget).label != "ok" {
		t.Errorf("label = %q, want %q", got.(*widget).label, "ok")
	}

	if _, err := exec.Invoke([]any{""}); err == nil {
		t.Error("Invoke did not surface the constructor error")
	}
}

func TestInvokeVariadic(t *testing.T) {
	a := New()
	exec, err := a.AnalyzeFunc(func(prefix string, parts ...int) string {
		total := 0
		for _, p := range parts {
			total += p
		}
		if total == 6 {
			return prefix + "-6"
		}
		return prefix
	})
	if err != nil {
		t.Fatal(err)
	}
	if !exec.Variadic {
		t.Fatal("Variadic = false")
	}

	got, err := exec.Invoke([]any{"sum", 1, 2, 3})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "sum-6" {
		t.Errorf("Invoke = %v, want %q", got, "sum-6")
	}
}

func TestInvokeNilArgumentBecomesZeroValue(t *testing.T) {
	a := New()
	exec, err := a.AnalyzeFunc(func(w *widget) bool { return w == nil })
	if err != nil {
		t.Fatal(err)
	}
	got, err := exec.Invoke([]any{nil})
	if err != nil {
		t.Fatal(err)
	}
	if got != true {
		t.Error("nil argument was not passed as a typed nil")
	}
}

type widgetFactory struct{ made int }

func (f *widgetFactory) Make() *widget { f.made++; return &widget{} }

func (f *widgetFactory) Other() *widget { return nil }

func TestMethodCandidates(t *testing.T) {
	f := &widgetFactory{}
	a := New()

	candidates, err := a.MethodCandidates(f, "Make")
	if err != nil {
		t.Fatalf("MethodCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Name != "*introspect.widgetFactory.Make" {
		t.Errorf("Name = %q", candidates[0].Name)
	}

	if _, err := a.MethodCandidates(f, "Missing"); err == nil {
		t.Error("unknown method name did not error")
	}

	// The receiver is bound: invoking mutates the owner.
	if _, err := candidates[0].Invoke(nil); err != nil {
		t.Fatal(err)
	}
	if f.made != 1 {
		t.Errorf("made = %d, want 1", f.made)
	}
}
