package descriptor

import "reflect"

// Scope names understood natively by the container. Any other non-empty
// scope name refers to a registered custom scope strategy.
const (
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
)

// Component is the declarative configuration for one constructible unit.
// Instances are produced by the descriptor source and flattened by the
// merge engine before the container acts on them.
type Component struct {
	// TypeName is the declared type name. It is resolved lazily; Type, when
	// non-nil, pins the concrete type directly and wins over TypeName.
	TypeName string
	Type     reflect.Type

	// Parent is the name of the descriptor this one inherits from.
	// Empty for root descriptors.
	Parent string

	// Scope determines instance caching behavior. Empty means singleton.
	Scope string

	// Abstract descriptors act only as templates for inheritance and
	// cannot be requested directly.
	Abstract bool

	// Lazy delays singleton creation until first request.
	Lazy bool

	// Synthetic marks descriptors generated by the container itself rather
	// than declared by the user.
	Synthetic bool

	// DependsOn lists component names that must be fully created before
	// this one.
	DependsOn []string

	// Args holds declared constructor or factory-method argument values.
	Args *ArgumentValues

	// Constructors is the candidate executable set for direct construction:
	// one or more functions returning the component (optionally with a
	// trailing error). Overload resolution selects among them.
	Constructors []any

	// FactoryComponent names another component whose method named
	// FactoryMethod produces this component (factory indirection at the
	// descriptor level, distinct from the Producer protocol).
	FactoryComponent string
	FactoryMethod    string

	// InitMethod and DestroyMethod name lifecycle methods on the produced
	// instance. Overridden by a child only when the child declares them.
	InitMethod    string
	DestroyMethod string

	// Autowire enables dependency lookup for constructor parameters that
	// no declared value matches.
	Autowire bool

	// Origin describes where this descriptor came from, for diagnostics.
	Origin string
}

// ArgumentValues holds declared argument values for a component, split into
// position-indexed and generic (unordered) values.
type ArgumentValues struct {
	Indexed map[int]*ArgumentValue
	Generic []*ArgumentValue
}

// ArgumentValue is a single declared argument.
type ArgumentValue struct {
	// Value is the declared raw value. May be a nested *Component for
	// inner descriptors.
	Value any

	// Name optionally binds the value to a parameter by name.
	Name string

	// TypeName optionally constrains the target parameter type by name.
	TypeName string

	// Dynamic marks values whose resolution must not be frozen into a
	// cached plan (autowired lookups, expression results).
	Dynamic bool

	converted      bool
	convertedValue any
}

// SetConverted records the post-conversion value for reuse.
func (v *ArgumentValue) SetConverted(value any) {
	v.converted = true
	v.convertedValue = value
}

// Converted reports the cached post-conversion value, if any.
func (v *ArgumentValue) Converted() (any, bool) {
	return v.convertedValue, v.converted
}

// NewArgumentValues creates an empty argument value set.
func NewArgumentValues() *ArgumentValues {
	return &ArgumentValues{Indexed: make(map[int]*ArgumentValue)}
}

// IsEmpty reports whether no argument values are declared.
func (a *ArgumentValues) IsEmpty() bool {
	return a == nil || (len(a.Indexed) == 0 && len(a.Generic) == 0)
}

// Count returns the number of declared argument values.
func (a *ArgumentValues) Count() int {
	if a == nil {
		return 0
	}
	return len(a.Indexed) + len(a.Generic)
}

// MinParams derives the minimum parameter count a candidate executable must
// accept to satisfy the declared values: an indexed value at position k
// implies at least k+1 parameters.
func (a *ArgumentValues) MinParams() int {
	if a == nil {
		return 0
	}
	min := len(a.Generic)
	for i := range a.Indexed {
		if i+1 > min {
			min = i + 1
		}
	}
	if total := a.Count(); total > min {
		min = total
	}
	return min
}

// AddIndexed declares a value at an explicit parameter position.
func (a *ArgumentValues) AddIndexed(index int, value *ArgumentValue) {
	if a.Indexed == nil {
		a.Indexed = make(map[int]*ArgumentValue)
	}
	a.Indexed[index] = value
}

// AddGeneric declares an unordered value.
func (a *ArgumentValues) AddGeneric(value *ArgumentValue) {
	a.Generic = append(a.Generic, value)
}

// MergeFrom copies values from parent that the receiver does not already
// declare. Child values win on index collision; generic values are appended.
func (a *ArgumentValues) MergeFrom(parent *ArgumentValues) {
	if parent == nil {
		return
	}
	for i, v := range parent.Indexed {
		if _, ok := a.Indexed[i]; !ok {
			a.AddIndexed(i, v.Clone())
		}
	}
	merged := make([]*ArgumentValue, 0, len(parent.Generic)+len(a.Generic))
	for _, v := range parent.Generic {
		merged = append(merged, v.Clone())
	}
	a.Generic = append(merged, a.Generic...)
}

// Clone returns a deep copy of the argument value. The conversion cache is
// carried over: conversion is deterministic for a given declared value.
func (v *ArgumentValue) Clone() *ArgumentValue {
	if v == nil {
		return nil
	}
	c := *v
	if nested, ok := v.Value.(*Component); ok {
		c.Value = nested.Clone()
	}
	return &c
}

// Clone returns a deep copy of the argument value set.
func (a *ArgumentValues) Clone() *ArgumentValues {
	if a == nil {
		return nil
	}
	c := NewArgumentValues()
	for i, v := range a.Indexed {
		c.Indexed[i] = v.Clone()
	}
	for _, v := range a.Generic {
		c.Generic = append(c.Generic, v.Clone())
	}
	return c
}

// Clone returns a deep copy of the component descriptor.
func (d *Component) Clone() *Component {
	if d == nil {
		return nil
	}
	c := *d
	c.DependsOn = append([]string(nil), d.DependsOn...)
	c.Constructors = append([]any(nil), d.Constructors...)
	c.Args = d.Args.Clone()
	return &c
}

// EffectiveScope returns the descriptor's scope, defaulting to singleton.
func (d *Component) EffectiveScope() string {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}

// IsSingleton reports whether the descriptor uses singleton scope.
func (d *Component) IsSingleton() bool {
	return d.EffectiveScope() == ScopeSingleton
}

// IsPrototype reports whether the descriptor uses prototype scope.
func (d *Component) IsPrototype() bool {
	return d.EffectiveScope() == ScopePrototype
}

// UsesFactory reports whether construction goes through a factory component
// method instead of the candidate constructor set.
func (d *Component) UsesFactory() bool {
	return d.FactoryComponent != "" && d.FactoryMethod != ""
}

// OverrideFrom applies child-descriptor overrides onto the receiver, which
// is expected to be a deep copy of the parent's flattened form. Declared
// type wins if present; scope, lazy, abstract and depends-on always come
// from the child; argument values are merged; factory and lifecycle method
// names are overridden only when the child declares them.
func (d *Component) OverrideFrom(child *Component) {
	if child.Type != nil {
		d.Type = child.Type
		d.TypeName = child.TypeName
	} else if child.TypeName != "" {
		d.Type = nil
		d.TypeName = child.TypeName
	}

	d.Scope = child.Scope
	d.Lazy = child.Lazy
	d.Abstract = child.Abstract
	d.Synthetic = child.Synthetic
	d.DependsOn = append([]string(nil), child.DependsOn...)
	d.Autowire = child.Autowire
	if child.Origin != "" {
		d.Origin = child.Origin
	}

	if len(child.Constructors) > 0 {
		d.Constructors = append([]any(nil), child.Constructors...)
	}

	if !child.Args.IsEmpty() {
		merged := child.Args.Clone()
		merged.MergeFrom(d.Args)
		d.Args = merged
	}

	if child.FactoryComponent != "" {
		d.FactoryComponent = child.FactoryComponent
	}
	if child.FactoryMethod != "" {
		d.FactoryMethod = child.FactoryMethod
	}
	if child.InitMethod != "" {
		d.InitMethod = child.InitMethod
	}
	if child.DestroyMethod != "" {
		d.DestroyMethod = child.DestroyMethod
	}
}
