package cradle

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cradleio/cradle/internal/graph"
	"github.com/cradleio/cradle/internal/introspect"
	"github.com/cradleio/cradle/internal/lifecycle"
	"github.com/cradleio/cradle/internal/merge"
	"github.com/cradleio/cradle/internal/resolver"
)

// Container is the object-graph construction and lifecycle engine. It is a
// passive library: callers drive it from their own goroutines, and all
// operations are safe for concurrent use.
type Container struct {
	id     string
	source DescriptorSource

	merges     *merge.Engine
	singletons *lifecycle.SingletonRegistry
	analyzer   *introspect.Analyzer
	resolver   *resolver.Resolver
	dependsOn  *graph.DependsOnGraph

	scopesMu sync.RWMutex
	scopes   map[string]ScopeStrategy

	options *containerOptions
	logger  *zap.Logger

	autowire bool

	stats  Statistics
	closed int32
}

// Statistics is a snapshot of container metrics.
type Statistics struct {
	Resolutions int64
	Failures    int64
	PlanReplays int64
}

// New creates a container over the given descriptor source.
func New(source DescriptorSource, opts ...Option) *Container {
	if source == nil {
		panic("cradle: descriptor source cannot be nil")
	}

	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.applyOption(options)
		}
	}

	c := &Container{
		id:         uuid.NewString(),
		source:     source,
		merges:     merge.New(source),
		singletons: lifecycle.NewSingletonRegistry(),
		analyzer:   introspect.New(),
		dependsOn:  graph.New(),
		scopes:     make(map[string]ScopeStrategy),
		options:    options,
		logger:     options.logger,
	}

	deps := options.deps
	if deps == nil && options.autowire {
		deps = &typeMatchingResolver{container: c}
	}
	c.autowire = deps != nil
	c.resolver = resolver.New(deps, options.converter, resolver.Options{Strict: options.strict})

	if options.disableMergeCaching {
		c.merges.DisableCaching()
	}
	return c
}

// ID returns the container's unique ID, used in diagnostics.
func (c *Container) ID() string {
	return c.id
}

// SetAncestorSource configures the ancestor descriptor source consulted
// when a descriptor names itself as its parent.
func (c *Container) SetAncestorSource(source DescriptorSource) {
	c.merges.SetAncestor(source)
}

// RegisterScope registers a custom scope strategy under the given name.
// The built-in singleton and prototype scopes cannot be replaced.
func (c *Container) RegisterScope(name string, strategy ScopeStrategy) error {
	if name == "" {
		return ErrComponentNameEmpty
	}
	if strategy == nil {
		return ErrScopeStrategyNil
	}
	if name == ScopeSingleton || name == ScopePrototype {
		return &ConfigurationError{Name: name, Reason: "built-in scopes cannot be replaced"}
	}
	c.scopesMu.Lock()
	defer c.scopesMu.Unlock()
	c.scopes[name] = strategy
	return nil
}

// RegisterSingleton registers an existing instance as a fully-created
// singleton under name, bypassing descriptor resolution.
func (c *Container) RegisterSingleton(name string, instance any) error {
	if name == "" {
		return ErrComponentNameEmpty
	}
	if err := c.singletons.Register(name, instance); err != nil {
		return &ConfigurationError{Name: name, Reason: err.Error()}
	}
	if d, ok := instance.(Disposable); ok {
		c.singletons.TrackDisposer(name, d.Close)
	}
	return nil
}

// ContainsComponent reports whether name resolves to a registered
// descriptor or registered singleton.
func (c *Container) ContainsComponent(name string) bool {
	canonical, _ := splitProducerName(name)
	return c.singletons.Contains(canonical) || c.source.Contains(canonical)
}

// GetOrCreate returns the component registered under name, creating it
// according to its declared scope if absent. Explicit arguments bypass
// declared argument values and disable plan reuse. Producer components are
// unwrapped to their product unless name carries the ProducerPrefix.
func (c *Container) GetOrCreate(ctx context.Context, name string, explicitArgs ...any) (any, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, ErrContainerClosed
	}
	if name == "" {
		return nil, ErrComponentNameEmpty
	}

	ctx, creation := lifecycle.WithCreation(ctx)
	canonical, wantProducer := splitProducerName(name)

	start := time.Now()
	instance, err := c.doGetOrCreate(ctx, creation, canonical, wantProducer, explicitArgs)
	if err != nil {
		atomic.AddInt64(&c.stats.Failures, 1)
		if c.options.onError != nil {
			c.options.onError(name, err)
		}
		return nil, err
	}

	atomic.AddInt64(&c.stats.Resolutions, 1)
	if c.options.onResolved != nil {
		c.options.onResolved(name, instance, time.Since(start))
	}
	return instance, nil
}

func (c *Container) doGetOrCreate(ctx context.Context, creation *lifecycle.Creation, name string, wantProducer bool, explicitArgs []any) (any, error) {
	// Fully-created singletons are served lock-free; mid-creation names
	// may be satisfied by an early reference.
	if len(explicitArgs) == 0 {
		if instance, ok := c.singletons.Get(name, true); ok {
			return c.unwrapProducer(ctx, name, instance, wantProducer)
		}
	}

	flt, err := c.flattened(name)
	if err != nil {
		return nil, err
	}

	if flt.Abstract {
		return nil, &ConfigurationError{
			Name:   name,
			Origin: flt.Origin,
			Reason: "abstract component cannot be requested directly",
		}
	}

	// Depends-on is validated and materialized before any construction
	// side effect; cycles here are always fatal.
	for _, dep := range flt.DependsOn {
		if err := c.dependsOn.AddDependency(name, dep); err != nil {
			return nil, err
		}
		if _, err := c.GetOrCreate(ctx, dep); err != nil {
			return nil, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
		}
	}

	var instance any
	switch scope := flt.EffectiveScope(); scope {
	case ScopeSingleton:
		instance, err = c.singletons.GetOrCreate(creation, name, func() (any, error) {
			created, createErr := c.createInstance(ctx, creation, name, flt, explicitArgs)
			if createErr != nil {
				return nil, createErr
			}
			c.trackSingletonDisposal(name, flt, created)
			return created, nil
		})

	case ScopePrototype:
		instance, err = c.createTracked(ctx, creation, name, flt, explicitArgs)

	default:
		c.scopesMu.RLock()
		strategy, ok := c.scopes[scope]
		known := make([]string, 0, len(c.scopes))
		for s := range c.scopes {
			known = append(known, s)
		}
		c.scopesMu.RUnlock()
		if !ok {
			return nil, &UnknownScopeError{Name: name, Scope: scope, Known: known}
		}
		instance, err = c.getScoped(ctx, creation, name, flt, strategy, explicitArgs)
	}
	if err != nil {
		return nil, err
	}

	return c.unwrapProducer(ctx, name, instance, wantProducer)
}

// createTracked materializes a prototype instance with in-creation
// tracking: re-entrant requests for the same name in this call chain fail
// fast before any instantiation side effect.
func (c *Container) createTracked(ctx context.Context, creation *lifecycle.Creation, name string, flt *merge.Flattened, explicitArgs []any) (any, error) {
	if !creation.BeforePrototypeCreation(name) {
		return nil, &CircularCreationError{Name: name}
	}
	defer creation.AfterPrototypeCreation(name)
	return c.createInstance(ctx, creation, name, flt, explicitArgs)
}

// getScoped delegates to a custom scope strategy, wrapped with the same
// before/after creation bookkeeping as prototypes.
func (c *Container) getScoped(ctx context.Context, creation *lifecycle.Creation, name string, flt *merge.Flattened, strategy ScopeStrategy, explicitArgs []any) (any, error) {
	if !creation.BeforePrototypeCreation(name) {
		return nil, &CircularCreationError{Name: name}
	}
	defer creation.AfterPrototypeCreation(name)

	return strategy.Get(name, func() (any, error) {
		instance, err := c.createInstance(ctx, creation, name, flt, explicitArgs)
		if err != nil {
			return nil, err
		}
		if dispose := disposerFor(flt, instance); dispose != nil {
			strategy.RegisterDestructionCallback(name, func() { _ = dispose() })
		}
		return instance, nil
	})
}

// createInstance resolves the construction plan for a flattened descriptor
// and materializes one raw instance from it.
func (c *Container) createInstance(ctx context.Context, creation *lifecycle.Creation, name string, flt *merge.Flattened, explicitArgs []any) (any, error) {
	c.logger.Debug("creating component",
		zap.String("component", name),
		zap.String("scope", flt.EffectiveScope()))

	declared, hasNested, err := c.prepareDeclaredArgs(ctx, creation, name, flt)
	if err != nil {
		return nil, err
	}

	// Plans with instantiated inner descriptors are per-creation and must
	// not be frozen onto the flattened descriptor.
	cachePlan := !c.options.disablePlanCaching && !hasNested

	var candidates []*introspect.Executable
	if len(explicitArgs) > 0 || !hasCachedPlan(flt) {
		candidates, cachePlan, err = c.gatherCandidates(ctx, name, flt, cachePlan)
		if err != nil {
			return nil, err
		}
	}

	plan, err := c.resolver.Resolve(&resolver.Request{
		Ctx:          ctx,
		Flattened:    flt,
		Name:         name,
		Declared:     declared,
		Candidates:   candidates,
		ExplicitArgs: explicitArgs,
		Autowire:     flt.Autowire && c.autowire,
		CachePlan:    cachePlan,
	})
	if err != nil {
		return nil, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
	}
	if plan.Replayed {
		atomic.AddInt64(&c.stats.PlanReplays, 1)
	}

	instance, err := c.options.instantiator.Instantiate(flt.Component, name, plan.Executable, plan.Args)
	if err != nil {
		if _, ok := err.(*CreationError); ok {
			return nil, err
		}
		return nil, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
	}

	// Expose an early reference while the singleton is still mid-creation
	// so the layer above can break reference cycles.
	if flt.IsSingleton() && c.options.allowEarlyExposure && c.singletons.IsCurrentlyInCreation(name) {
		early := instance
		c.singletons.RegisterEarlyFactory(name, func() any { return early })
	}

	_, isProducer := instance.(Producer)
	flt.CacheMu.Lock()
	flt.ResolvedType = reflect.TypeOf(instance)
	flt.IsProducerKnown = true
	flt.IsProducer = isProducer
	flt.CacheMu.Unlock()

	if flt.InitMethod != "" {
		if err := invokeLifecycleMethod(instance, flt.InitMethod); err != nil {
			return nil, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
		}
	}

	// Producer outputs are post-processed at unwrap time instead.
	if c.options.postProcessor != nil && !isProducer {
		processed, err := c.options.postProcessor(name, instance)
		if err != nil {
			return nil, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
		}
		instance = processed
	}

	return instance, nil
}

// gatherCandidates enumerates the candidate executable set for a
// descriptor: its declared constructor functions, or the methods matching
// the declared factory-method name on the factory owner.
func (c *Container) gatherCandidates(ctx context.Context, name string, flt *merge.Flattened, cachePlan bool) ([]*introspect.Executable, bool, error) {
	if !flt.UsesFactory() {
		candidates := make([]*introspect.Executable, 0, len(flt.Constructors))
		for _, ctor := range flt.Constructors {
			exec, err := c.analyzer.AnalyzeFunc(ctor)
			if err != nil {
				return nil, false, &ConfigurationError{Name: name, Origin: flt.Origin, Reason: err.Error()}
			}
			candidates = append(candidates, exec)
		}
		return candidates, cachePlan, nil
	}

	owner, err := c.GetOrCreate(ctx, flt.FactoryComponent)
	if err != nil {
		return nil, false, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
	}
	candidates, err := c.analyzer.MethodCandidates(owner, flt.FactoryMethod)
	if err != nil {
		return nil, false, &ConfigurationError{Name: name, Origin: flt.Origin, Reason: err.Error()}
	}

	// Factory candidates carry a bound receiver; the plan is only
	// reusable when the owner itself is a singleton.
	if cachePlan {
		ownerFlt, err := c.flattened(flt.FactoryComponent)
		cachePlan = err == nil && ownerFlt.IsSingleton()
	}
	return candidates, cachePlan, nil
}

// prepareDeclaredArgs instantiates nested (inner) descriptors among the
// declared argument values, substituting the created instances into a
// working copy. Nested instances are created fresh for every outer
// creation and never cached globally.
func (c *Container) prepareDeclaredArgs(ctx context.Context, creation *lifecycle.Creation, name string, flt *merge.Flattened) (*ArgumentValues, bool, error) {
	if flt.Args.IsEmpty() || !hasNestedComponents(flt.Args) {
		return flt.Args, false, nil
	}

	prepared := flt.Args.Clone()
	substitute := func(av *ArgumentValue) error {
		nested, ok := av.Value.(*ComponentDescriptor)
		if !ok {
			return nil
		}
		innerName := name + "#inner"
		innerFlt, err := c.merges.ResolveNested(innerName, nested, flt)
		if err != nil {
			return err
		}
		instance, err := c.createTracked(ctx, creation, innerName, innerFlt, nil)
		if err != nil {
			return err
		}
		av.Value = instance
		return nil
	}

	for _, av := range prepared.Indexed {
		if err := substitute(av); err != nil {
			return nil, false, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
		}
	}
	for _, av := range prepared.Generic {
		if err := substitute(av); err != nil {
			return nil, false, &CreationError{Name: name, Origin: flt.Origin, Cause: err}
		}
	}
	return prepared, true, nil
}

func hasNestedComponents(args *ArgumentValues) bool {
	for _, av := range args.Indexed {
		if _, ok := av.Value.(*ComponentDescriptor); ok {
			return true
		}
	}
	for _, av := range args.Generic {
		if _, ok := av.Value.(*ComponentDescriptor); ok {
			return true
		}
	}
	return false
}

// IsSingleton reports whether the component registered under name is
// singleton-scoped. For a producer component requested without the marker,
// the producer's own report wins once the producer exists.
func (c *Container) IsSingleton(name string) (bool, error) {
	canonical, wantProducer := splitProducerName(name)
	flt, err := c.flattened(canonical)
	if err != nil {
		return false, err
	}
	if !flt.IsSingleton() {
		return false, nil
	}
	if !wantProducer {
		if instance, ok := c.singletons.Get(canonical, false); ok {
			if p, isProducer := instance.(Producer); isProducer {
				return producerIsSingleton(p), nil
			}
		}
	}
	return true, nil
}

// IsPrototype reports whether the component registered under name is
// prototype-scoped.
func (c *Container) IsPrototype(name string) (bool, error) {
	canonical, _ := splitProducerName(name)
	flt, err := c.flattened(canonical)
	if err != nil {
		return false, err
	}
	return flt.IsPrototype(), nil
}

// ResolveType determines the type the component registered under name
// exposes, without creating it where possible. For producer components the
// product type is reported; allowProducerInit permits instantiating the
// producer as a fallback when its metadata does not declare an output
// type. Returns nil without error when the type cannot be determined.
func (c *Container) ResolveType(ctx context.Context, name string, allowProducerInit bool) (reflect.Type, error) {
	canonical, wantProducer := splitProducerName(name)
	flt, err := c.flattened(canonical)
	if err != nil {
		return nil, err
	}

	flt.CacheMu.Lock()
	resolved := flt.ResolvedType
	producerKnown := flt.IsProducerKnown
	isProducer := flt.IsProducer
	flt.CacheMu.Unlock()

	if resolved == nil {
		resolved = c.predictType(flt)
	}
	if !producerKnown {
		isProducer = resolved != nil && resolved.Implements(producerType)
	}

	if wantProducer {
		if !isProducer {
			return nil, &NotProducerError{Name: canonical, Type: resolved}
		}
		return resolved, nil
	}
	if !isProducer {
		return resolved, nil
	}
	return c.producerOutputType(ctx, canonical, flt.Type, allowProducerInit)
}

// predictType derives a component's type from descriptor metadata alone:
// the pinned type if declared, otherwise the common return type of the
// candidate constructor set.
func (c *Container) predictType(flt *merge.Flattened) reflect.Type {
	if flt.Type != nil {
		return flt.Type
	}
	if flt.UsesFactory() {
		return nil
	}

	var common reflect.Type
	for _, ctor := range flt.Constructors {
		exec, err := c.analyzer.AnalyzeFunc(ctor)
		if err != nil {
			return nil
		}
		if common == nil {
			common = exec.ReturnType
		} else if common != exec.ReturnType {
			return nil
		}
	}
	return common
}

// MarkStale flips the staleness flag on the cached flattened descriptor
// for name, forcing recomputation on next access. Already-created
// instances are unaffected.
func (c *Container) MarkStale(name string) {
	canonical, _ := splitProducerName(name)
	c.merges.MarkStale(canonical)
	c.logger.Debug("marked descriptor stale", zap.String("component", canonical))
}

// ClearMetadataCache drops all cached flattened descriptors and their
// resolution caches. Created instances are unaffected.
func (c *Container) ClearMetadataCache() {
	c.merges.ClearCache()
	c.logger.Debug("cleared metadata cache")
}

// MergeGeneration returns the merge generation of the cached flattened
// descriptor for name. Recomputation after MarkStale yields a higher
// generation.
func (c *Container) MergeGeneration(name string) (uint64, bool) {
	canonical, _ := splitProducerName(name)
	return c.merges.Generation(canonical)
}

// IsEligibleForCaching reports whether flattened metadata for name may be
// cached by this container.
func (c *Container) IsEligibleForCaching(name string) bool {
	canonical, _ := splitProducerName(name)
	return !c.options.disableMergeCaching && c.source.Contains(canonical)
}

// WarmUp eagerly creates every non-lazy singleton the descriptor source can
// enumerate, so configuration faults surface at startup instead of on first
// request. Abstract, lazy and non-singleton descriptors are skipped;
// producer components are created without forcing production. Failures are
// aggregated and do not stop the walk.
func (c *Container) WarmUp(ctx context.Context) error {
	names, ok := c.source.(interface{ Names() []string })
	if !ok {
		return nil
	}

	var errs error
	for _, name := range names.Names() {
		flt, err := c.flattened(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if flt.Abstract || flt.Lazy || !flt.IsSingleton() {
			continue
		}

		request := name
		if t, err := c.ResolveType(ctx, ProducerPrefix+name, false); err == nil && t != nil {
			request = ProducerPrefix + name
		}
		if _, err := c.GetOrCreate(ctx, request); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Statistics returns a snapshot of container metrics.
func (c *Container) Statistics() Statistics {
	return Statistics{
		Resolutions: atomic.LoadInt64(&c.stats.Resolutions),
		Failures:    atomic.LoadInt64(&c.stats.Failures),
		PlanReplays: atomic.LoadInt64(&c.stats.PlanReplays),
	}
}

// Close disposes tracked singletons in reverse creation order and clears
// all caches. Further operations fail with ErrContainerClosed.
func (c *Container) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	err := c.singletons.Close()
	c.dependsOn.Clear()
	c.merges.ClearCache()
	c.logger.Debug("container closed", zap.String("container", c.id))
	return err
}

// flattened returns the flattened descriptor for name.
func (c *Container) flattened(name string) (*merge.Flattened, error) {
	if !c.source.Contains(name) {
		return nil, &ComponentNotFoundError{Name: name}
	}
	return c.merges.Resolve(name)
}

func (c *Container) trackSingletonDisposal(name string, flt *merge.Flattened, instance any) {
	dispose := disposerFor(flt, instance)
	if dispose == nil {
		return
	}
	if cb := c.options.onDispose; cb != nil {
		inner := dispose
		dispose = func() error {
			err := inner()
			cb(name, err)
			return err
		}
	}
	c.singletons.TrackDisposer(name, dispose)
}

// disposerFor builds the destruction callback for an instance: the
// declared destroy method wins over the Disposable interface.
func disposerFor(flt *merge.Flattened, instance any) func() error {
	if flt.DestroyMethod != "" {
		method := flt.DestroyMethod
		return func() error {
			return invokeLifecycleMethod(instance, method)
		}
	}
	if d, ok := instance.(Disposable); ok {
		return d.Close
	}
	return nil
}

// invokeLifecycleMethod calls a declared init or destroy method on an
// instance. Supported signatures are func() and func() error.
func invokeLifecycleMethod(instance any, methodName string) error {
	m := reflect.ValueOf(instance).MethodByName(methodName)
	if !m.IsValid() {
		return fmt.Errorf("no method %q on %T", methodName, instance)
	}
	t := m.Type()
	if t.NumIn() != 0 {
		return fmt.Errorf("lifecycle method %q on %T must take no arguments", methodName, instance)
	}
	out := m.Call(nil)
	if len(out) == 1 && t.Out(0) == errorType {
		if !out[0].IsNil() {
			return out[0].Interface().(error)
		}
	}
	return nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func hasCachedPlan(flt *merge.Flattened) bool {
	flt.CacheMu.Lock()
	defer flt.CacheMu.Unlock()
	return flt.ResolvedExecutable != nil && flt.ArgState != merge.ArgsUnresolved
}

// typeMatchingResolver is the built-in autowiring collaborator: it scans
// the descriptor source for components whose exposed type satisfies the
// parameter site and resolves the unique match through the container.
type typeMatchingResolver struct {
	container *Container
}

func (r *typeMatchingResolver) ResolveDependency(ctx context.Context, site ParameterSite, requesting string) (any, error) {
	names, ok := r.container.source.(interface{ Names() []string })
	if !ok {
		return nil, fmt.Errorf("descriptor source does not support enumeration: %w", ErrDependencyNotFound)
	}

	var matches []string
	for _, name := range names.Names() {
		if name == requesting {
			continue
		}
		t, err := r.container.ResolveType(ctx, name, false)
		if err != nil || t == nil {
			continue
		}
		if t.AssignableTo(site.Type) {
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("parameter type %s: %w", site.Type, ErrDependencyNotFound)
	case 1:
		return r.container.GetOrCreate(ctx, matches[0])
	default:
		return nil, fmt.Errorf("parameter type %s matches %v: %w", site.Type, matches, ErrDependencyNotUnique)
	}
}
