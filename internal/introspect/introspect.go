// Package introspect supplies the executable-descriptor capability the
// resolver depends on: parameter types, optional parameter names,
// accessibility and an invocation shim, without tying the resolution
// algorithm to a specific reflection surface.
package introspect

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// Executable describes one candidate constructor function or factory method.
type Executable struct {
	// Name is a human-readable identifier for diagnostics: the function
	// name for constructors, "Type.Method" for factory methods.
	Name string

	// Func is the callable value. For factory methods the receiver is
	// already bound.
	Func reflect.Value

	// ParamTypes are the parameter types in declaration order.
	ParamTypes []reflect.Type

	// ParamNames optionally names parameters. Go reflection does not carry
	// parameter names, so names are only present when declared on the
	// descriptor; the slice may be nil.
	ParamNames []string

	// Exported reports accessibility; unexported factory methods sort
	// after exported ones during candidate ordering.
	Exported bool

	// Variadic reports whether the final parameter is variadic.
	Variadic bool

	// ReturnType is the produced type (first non-error return).
	ReturnType reflect.Type

	// HasErrorReturn reports whether the trailing return is an error.
	HasErrorReturn bool
}

// ParamCount returns the number of declared parameters.
func (e *Executable) ParamCount() int {
	return len(e.ParamTypes)
}

// String returns the executable's signature for error messages.
func (e *Executable) String() string {
	params := make([]string, len(e.ParamTypes))
	for i, p := range e.ParamTypes {
		params[i] = p.String()
	}
	ret := "<none>"
	if e.ReturnType != nil {
		ret = e.ReturnType.String()
	}
	return fmt.Sprintf("%s(%s) %s", e.Name, strings.Join(params, ", "), ret)
}

// Invoke calls the executable with the given arguments and returns the
// produced value. A declared trailing error return is unwrapped.
func (e *Executable) Invoke(args []any) (any, error) {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(e.ParamTypes[i])
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}

	var out []reflect.Value
	if e.Variadic {
		out = e.Func.CallSlice(buildVariadicArgs(e, in))
	} else {
		out = e.Func.Call(in)
	}

	if e.HasErrorReturn {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	if e.ReturnType == nil {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// buildVariadicArgs packs trailing arguments into the variadic slice
// parameter expected by CallSlice.
func buildVariadicArgs(e *Executable, in []reflect.Value) []reflect.Value {
	fixed := len(e.ParamTypes) - 1
	sliceType := e.ParamTypes[fixed]
	packed := reflect.MakeSlice(sliceType, 0, len(in)-fixed)
	for _, v := range in[fixed:] {
		packed = reflect.Append(packed, v)
	}
	out := make([]reflect.Value, fixed+1)
	copy(out, in[:fixed])
	out[fixed] = packed
	return out
}

// Analyzer turns constructor functions and factory methods into Executable
// descriptors, caching per-function analysis.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[uintptr]*Executable
}

// New creates an analyzer with an empty cache.
func New() *Analyzer {
	return &Analyzer{cache: make(map[uintptr]*Executable)}
}

// AnalyzeFunc analyzes a constructor function value.
func (a *Analyzer) AnalyzeFunc(fn any) (*Executable, error) {
	if fn == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	val := reflect.ValueOf(fn)
	if !val.IsValid() || val.Kind() != reflect.Func || val.IsNil() {
		return nil, fmt.Errorf("constructor must be a non-nil function, got %T", fn)
	}

	key := val.Pointer()
	a.mu.RLock()
	cached, ok := a.cache[key]
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	exec, err := analyze(funcName(val), val, true)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[key] = exec
	a.mu.Unlock()
	return exec, nil
}

// MethodCandidates returns the executables for all methods on the owner
// whose name matches methodName. The owner's pointer method set is used so
// both value and pointer receivers are visible.
func (a *Analyzer) MethodCandidates(owner any, methodName string) ([]*Executable, error) {
	if owner == nil {
		return nil, fmt.Errorf("factory owner cannot be nil")
	}
	if methodName == "" {
		return nil, fmt.Errorf("factory method name cannot be empty")
	}

	ownerVal := reflect.ValueOf(owner)
	ownerType := ownerVal.Type()

	var candidates []*Executable
	for i := 0; i < ownerType.NumMethod(); i++ {
		m := ownerType.Method(i)
		if m.Name != methodName {
			continue
		}
		bound := ownerVal.Method(i)
		exec, err := analyze(ownerType.String()+"."+m.Name, bound, m.IsExported())
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, exec)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no method %q on factory owner %s", methodName, ownerType)
	}
	return candidates, nil
}

// analyze builds the executable descriptor for a bound callable.
func analyze(name string, fn reflect.Value, exported bool) (*Executable, error) {
	t := fn.Type()

	exec := &Executable{
		Name:     name,
		Func:     fn,
		Exported: exported,
		Variadic: t.IsVariadic(),
	}

	exec.ParamTypes = make([]reflect.Type, t.NumIn())
	for i := range exec.ParamTypes {
		exec.ParamTypes[i] = t.In(i)
	}

	switch t.NumOut() {
	case 0:
		return nil, fmt.Errorf("%s returns no values", name)
	case 1:
		if t.Out(0) == errType {
			return nil, fmt.Errorf("%s returns only an error", name)
		}
		exec.ReturnType = t.Out(0)
	case 2:
		if t.Out(1) != errType {
			return nil, fmt.Errorf("%s second return must be error, got %s", name, t.Out(1))
		}
		exec.ReturnType = t.Out(0)
		exec.HasErrorReturn = true
	default:
		return nil, fmt.Errorf("%s returns %d values; want (T) or (T, error)", name, t.NumOut())
	}

	return exec, nil
}

// funcName resolves the symbol name of a function value, trimmed to its
// base name for readable diagnostics.
func funcName(fn reflect.Value) string {
	pc := runtime.FuncForPC(fn.Pointer())
	if pc == nil {
		return fn.Type().String()
	}
	name := pc.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
