package descriptor

import (
	"reflect"
	"testing"
)

func TestEffectiveScopeDefaultsToSingleton(t *testing.T) {
	d := &Component{}
	if got := d.EffectiveScope(); got != ScopeSingleton {
		t.Errorf("EffectiveScope() = %q, want %q", got, ScopeSingleton)
	}
	if !d.IsSingleton() {
		t.Error("IsSingleton() = false for empty scope")
	}
	if d.IsPrototype() {
		t.Error("IsPrototype() = true for empty scope")
	}
}

func TestOverrideFromChildWins(t *testing.T) {
	parent := &Component{
		TypeName:      "base.Widget",
		Scope:         ScopeSingleton,
		Lazy:          true,
		InitMethod:    "Start",
		DestroyMethod: "Stop",
		DependsOn:     []string{"config"},
		Origin:        "base.yaml",
	}
	child := &Component{
		TypeName:  "app.Widget",
		Scope:     ScopePrototype,
		DependsOn: []string{"logger"},
		Origin:    "app.yaml",
	}

	merged := parent.Clone()
	merged.OverrideFrom(child)

	if merged.TypeName != "app.Widget" {
		t.Errorf("TypeName = %q, want %q", merged.TypeName, "app.Widget")
	}
	if merged.Scope != ScopePrototype {
		t.Errorf("Scope = %q, want %q", merged.Scope, ScopePrototype)
	}
	if merged.Lazy {
		t.Error("Lazy not taken from child")
	}
	if merged.InitMethod != "Start" || merged.DestroyMethod != "Stop" {
		t.Errorf("lifecycle methods = %q/%q, want inherited Start/Stop",
			merged.InitMethod, merged.DestroyMethod)
	}
	if !reflect.DeepEqual(merged.DependsOn, []string{"logger"}) {
		t.Errorf("DependsOn = %v, want child's [logger]", merged.DependsOn)
	}
	if merged.Origin != "app.yaml" {
		t.Errorf("Origin = %q, want child's", merged.Origin)
	}
}

func TestOverrideFromChildTypeClearsInheritedPin(t *testing.T) {
	parent := &Component{
		TypeName: "base.Widget",
		Type:     reflect.TypeOf(struct{}{}),
	}
	child := &Component{TypeName: "app.Widget"}

	merged := parent.Clone()
	merged.OverrideFrom(child)

	if merged.Type != nil {
		t.Error("inherited pinned Type must be cleared when child declares a type name")
	}
	if merged.TypeName != "app.Widget" {
		t.Errorf("TypeName = %q, want %q", merged.TypeName, "app.Widget")
	}
}

func TestOverrideFromMergesArguments(t *testing.T) {
	parent := &Component{Args: NewArgumentValues()}
	parent.Args.AddIndexed(0, &ArgumentValue{Value: "host"})
	parent.Args.AddIndexed(1, &ArgumentValue{Value: 8080})

	child := &Component{Args: NewArgumentValues()}
	child.Args.AddIndexed(1, &ArgumentValue{Value: 9090})

	merged := parent.Clone()
	merged.OverrideFrom(child)

	if got := merged.Args.Indexed[0].Value; got != "host" {
		t.Errorf("Indexed[0] = %v, want inherited %q", got, "host")
	}
	if got := merged.Args.Indexed[1].Value; got != 9090 {
		t.Errorf("Indexed[1] = %v, want child's 9090", got)
	}
}

func TestMinParams(t *testing.T) {
	args := NewArgumentValues()
	if got := args.MinParams(); got != 0 {
		t.Errorf("MinParams() of empty = %d, want 0", got)
	}

	args.AddIndexed(2, &ArgumentValue{Value: "x"})
	if got := args.MinParams(); got != 3 {
		t.Errorf("MinParams() with index 2 = %d, want 3", got)
	}

	args.AddGeneric(&ArgumentValue{Value: "y"})
	args.AddGeneric(&ArgumentValue{Value: "z"})
	if got := args.MinParams(); got != 3 {
		t.Errorf("MinParams() = %d, want 3 (total count)", got)
	}
}

func TestArgumentValueConversionCache(t *testing.T) {
	av := &ArgumentValue{Value: "5"}
	if _, ok := av.Converted(); ok {
		t.Fatal("fresh value reports a cached conversion")
	}
	av.SetConverted(5)
	got, ok := av.Converted()
	if !ok || got != 5 {
		t.Errorf("Converted() = %v, %v; want 5, true", got, ok)
	}
}

func TestCloneIsDeep(t *testing.T) {
	inner := &Component{TypeName: "inner"}
	d := &Component{
		DependsOn: []string{"a"},
		Args:      NewArgumentValues(),
	}
	d.Args.AddIndexed(0, &ArgumentValue{Value: inner})

	c := d.Clone()
	c.DependsOn[0] = "b"
	c.Args.Indexed[0].Value.(*Component).TypeName = "changed"

	if d.DependsOn[0] != "a" {
		t.Error("Clone shares DependsOn backing array")
	}
	if inner.TypeName != "inner" {
		t.Error("Clone shares nested descriptor")
	}
}
