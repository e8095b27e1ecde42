package cradle

import (
	"time"

	"go.uber.org/zap"
)

// PostProcessor adjusts or replaces an instance after construction (and
// after producer output, unless deferred by in-flight cycle resolution).
type PostProcessor func(name string, instance any) (any, error)

// Option configures a Container.
type Option interface {
	applyOption(*containerOptions)
}

type containerOptions struct {
	logger *zap.Logger

	strict              bool
	disableMergeCaching bool
	disablePlanCaching  bool
	allowEarlyExposure  bool

	instantiator Instantiator
	converter    TypeConverter
	deps         DependencyResolver
	autowire     bool

	postProcessor PostProcessor

	onResolved func(name string, instance any, duration time.Duration)
	onError    func(name string, err error)
	onDispose  func(name string, err error)
}

func defaultOptions() *containerOptions {
	return &containerOptions{
		logger:             zap.NewNop(),
		allowEarlyExposure: true,
		instantiator:       reflectInstantiator{},
		converter:          defaultConverter{},
	}
}

type optionFunc func(*containerOptions)

func (f optionFunc) applyOption(o *containerOptions) { f(o) }

// WithLogger sets the logger for container lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithStrictMatching makes executable selection require full assignability
// of raw and converted values and turns score ties into ambiguity errors.
func WithStrictMatching() Option {
	return optionFunc(func(o *containerOptions) { o.strict = true })
}

// WithoutMergeCaching disables caching of flattened descriptors.
func WithoutMergeCaching() Option {
	return optionFunc(func(o *containerOptions) { o.disableMergeCaching = true })
}

// WithoutPlanCaching disables caching of winning construction plans.
func WithoutPlanCaching() Option {
	return optionFunc(func(o *containerOptions) { o.disablePlanCaching = true })
}

// WithoutEarlyExposure disables early-reference registration for singletons
// mid-creation.
func WithoutEarlyExposure() Option {
	return optionFunc(func(o *containerOptions) { o.allowEarlyExposure = false })
}

// WithInstantiator replaces the default reflective instantiation strategy.
func WithInstantiator(i Instantiator) Option {
	return optionFunc(func(o *containerOptions) {
		if i != nil {
			o.instantiator = i
		}
	})
}

// WithTypeConverter replaces the bundled type converter.
func WithTypeConverter(c TypeConverter) Option {
	return optionFunc(func(o *containerOptions) {
		if c != nil {
			o.converter = c
		}
	})
}

// WithDependencyResolver plugs in a custom dependency-lookup collaborator
// and enables autowiring for descriptors that request it.
func WithDependencyResolver(d DependencyResolver) Option {
	return optionFunc(func(o *containerOptions) {
		if d != nil {
			o.deps = d
			o.autowire = true
		}
	})
}

// WithAutowiring enables the built-in by-type dependency lookup against the
// container's own registry.
func WithAutowiring() Option {
	return optionFunc(func(o *containerOptions) { o.autowire = true })
}

// WithPostProcessor registers a post-processing hook applied after
// construction and to producer outputs.
func WithPostProcessor(p PostProcessor) Option {
	return optionFunc(func(o *containerOptions) { o.postProcessor = p })
}

// WithResolvedCallback registers a callback invoked after each successful
// resolution.
func WithResolvedCallback(fn func(name string, instance any, duration time.Duration)) Option {
	return optionFunc(func(o *containerOptions) { o.onResolved = fn })
}

// WithErrorCallback registers a callback invoked when resolution fails.
func WithErrorCallback(fn func(name string, err error)) Option {
	return optionFunc(func(o *containerOptions) { o.onError = fn })
}

// WithDisposeCallback registers a callback invoked after each tracked
// singleton's destruction callback runs during Close, with its error.
func WithDisposeCallback(fn func(name string, err error)) Option {
	return optionFunc(func(o *containerOptions) { o.onDispose = fn })
}
