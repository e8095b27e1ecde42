package cradle

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/cradleio/cradle/internal/introspect"
	"github.com/cradleio/cradle/internal/resolver"
)

// Executable describes one candidate constructor function or factory
// method: parameter types, optional parameter names, accessibility and an
// invocation shim.
type Executable = introspect.Executable

// ParameterSite identifies one parameter position of a candidate executable
// during dependency lookup.
type ParameterSite = resolver.ParameterSite

// DependencyResolver resolves a constructor parameter by dependency lookup
// when autowiring is enabled and no declared value matches.
type DependencyResolver = resolver.DependencyResolver

// TypeConverter converts raw declared values to target parameter types.
// The generic type-conversion subsystem lives behind this interface; the
// bundled converter covers assignability, numeric conversion and string
// literal parsing.
type TypeConverter = resolver.TypeConverter

// Instantiator turns a resolved execution plan into a raw instance. The
// default implementation invokes the chosen executable reflectively;
// embedders may substitute instrumented strategies.
type Instantiator interface {
	Instantiate(d *ComponentDescriptor, name string, exec *Executable, args []any) (any, error)
}

// Disposable is implemented by components that need cleanup when their
// owning container or scope is closed.
type Disposable interface {
	Close() error
}

// reflectInstantiator is the default Instantiator.
type reflectInstantiator struct{}

func (reflectInstantiator) Instantiate(d *ComponentDescriptor, name string, exec *Executable, args []any) (any, error) {
	instance, err := exec.Invoke(args)
	if err != nil {
		return nil, &CreationError{Name: name, Origin: d.Origin, Cause: err}
	}
	return instance, nil
}

// defaultConverter is the bundled TypeConverter. It is deliberately
// conservative: identity and assignability pass through, numeric kinds
// convert between each other, and string literals parse into numerics and
// bools. Everything else is a ConversionError.
type defaultConverter struct{}

func (defaultConverter) Convert(raw any, target reflect.Type) (any, error) {
	if raw == nil {
		switch target.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map,
			reflect.Chan, reflect.Func:
			return nil, nil
		}
		return nil, &ConversionError{Value: raw, Target: target}
	}

	rt := reflect.TypeOf(raw)
	if rt == target || rt.AssignableTo(target) {
		return raw, nil
	}

	rv := reflect.ValueOf(raw)

	if s, ok := raw.(string); ok {
		return convertString(s, target)
	}

	if isNumericKind(rt.Kind()) && isNumericKind(target.Kind()) && rt.ConvertibleTo(target) {
		return rv.Convert(target).Interface(), nil
	}

	return nil, &ConversionError{Value: raw, Target: target}
}

// convertString parses a string literal into the target kind.
func convertString(s string, target reflect.Type) (any, error) {
	switch target.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(target).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, target.Bits())
		if err != nil {
			return nil, &ConversionError{Value: s, Target: target, Cause: err}
		}
		return reflect.ValueOf(n).Convert(target).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, target.Bits())
		if err != nil {
			return nil, &ConversionError{Value: s, Target: target, Cause: err}
		}
		return reflect.ValueOf(n).Convert(target).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, target.Bits())
		if err != nil {
			return nil, &ConversionError{Value: s, Target: target, Cause: err}
		}
		return reflect.ValueOf(f).Convert(target).Interface(), nil
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, &ConversionError{Value: s, Target: target, Cause: err}
		}
		return b, nil
	}
	return nil, &ConversionError{Value: s, Target: target, Cause: fmt.Errorf("unsupported target kind %s", target.Kind())}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
