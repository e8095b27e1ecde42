package cradle

import (
	"context"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/cradleio/cradle/internal/lifecycle"
)

// ProducerPrefix, when prefixed to a component name, requests the producer
// component itself instead of the object it produces.
const ProducerPrefix = "&"

// Producer is implemented by components that are not the end value
// themselves but producers of it. Requesting the component's name yields
// the produced object; requesting the name with ProducerPrefix yields the
// producer.
type Producer interface {
	Produce() (any, error)
}

// TypedProducer optionally declares the produced type without producing,
// allowing type-matching queries that do not force production.
type TypedProducer interface {
	Producer
	OutputType() reflect.Type
}

// SingletonReporter optionally reports whether the producer yields one
// shared object. Producers that do not implement it are treated as
// singleton producers.
type SingletonReporter interface {
	SingletonProduct() bool
}

// NilProduct is the placeholder stored when a producer legitimately yields
// nil, so downstream identity checks can distinguish "no value yet" from
// "legitimately absent value". Never handed to callers as a raw nil.
var NilProduct = &nilProduct{}

type nilProduct struct{}

func (*nilProduct) String() string { return "<nil product>" }

// producerIsSingleton reports whether the producer yields a shared object.
func producerIsSingleton(p Producer) bool {
	if r, ok := p.(SingletonReporter); ok {
		return r.SingletonProduct()
	}
	return true
}

// splitProducerName strips the producer-dereference marker.
func splitProducerName(name string) (canonical string, wantProducer bool) {
	if strings.HasPrefix(name, ProducerPrefix) {
		return strings.TrimPrefix(name, ProducerPrefix), true
	}
	return name, false
}

// unwrapProducer implements the double hop for producer components: given
// the registered instance for name, it returns either the producer itself
// (marker request), the cached product, or a freshly produced object.
func (c *Container) unwrapProducer(ctx context.Context, name string, instance any, wantProducer bool) (any, error) {
	p, isProducer := instance.(Producer)
	if !isProducer {
		if wantProducer {
			return nil, &NotProducerError{Name: name, Type: reflect.TypeOf(instance)}
		}
		return instance, nil
	}
	if wantProducer {
		return instance, nil
	}

	if producerIsSingleton(p) && c.singletons.Contains(name) {
		_, creation := lifecycle.WithCreation(ctx)
		return c.productForSingleton(creation, name, p)
	}

	// Non-singleton producers produce on every call, uncached.
	product, err := p.Produce()
	if err != nil {
		return nil, &ProducerError{Name: name, Cause: err}
	}
	if product == nil {
		if c.singletons.IsCurrentlyInCreation(name) {
			return nil, &ProducerNotReadyError{Name: name}
		}
		product = NilProduct
	}
	return c.postProcessProduct(name, product)
}

// productForSingleton serves the producer-output cache for a singleton
// producer. Production runs under the singleton creation lock, so at most
// one goroutine produces; everyone else waits and gets the cached value.
func (c *Container) productForSingleton(creation *lifecycle.Creation, name string, p Producer) (any, error) {
	if product, ok := c.singletons.Product(name); ok {
		return product, nil
	}

	defer c.singletons.LockCreation(creation)()

	// Re-check under the lock: a concurrent caller may have produced and
	// cached while we waited.
	if product, ok := c.singletons.Product(name); ok {
		return product, nil
	}

	product, err := p.Produce()
	if err != nil {
		return nil, &ProducerError{Name: name, Cause: err}
	}

	if product == nil {
		if c.singletons.IsCurrentlyInCreation(name) {
			return nil, &ProducerNotReadyError{Name: name}
		}
		product = NilProduct
	}

	// While the target is mid-creation, post-processing is deferred and
	// the unprocessed object is returned uncached, so in-flight circular
	// reference resolution is not disturbed.
	if c.singletons.IsCurrentlyInCreation(name) {
		return product, nil
	}

	processed, err := c.postProcessProduct(name, product)
	if err != nil {
		return nil, err
	}
	c.singletons.StoreProduct(name, processed)
	c.logger.Debug("cached producer output", zap.String("component", name))
	return processed, nil
}

// postProcessProduct applies the configured post-processor to a produced
// object. The nil placeholder is never post-processed.
func (c *Container) postProcessProduct(name string, product any) (any, error) {
	if c.options.postProcessor == nil || product == NilProduct {
		return product, nil
	}
	processed, err := c.options.postProcessor(name, product)
	if err != nil {
		return nil, &ProducerError{Name: name, Cause: err}
	}
	return processed, nil
}

// producerOutputType determines the type a producer component yields.
// Descriptor-attached metadata (a declared type) is consulted first; the
// producer is only instantiated as a fallback when initialization is
// permitted.
func (c *Container) producerOutputType(ctx context.Context, name string, declared reflect.Type, allowInit bool) (reflect.Type, error) {
	if declared != nil && !declared.Implements(producerType) {
		return declared, nil
	}

	// An already-created producer can declare its output without producing.
	if instance, ok := c.singletons.Get(name, false); ok {
		if tp, ok := instance.(TypedProducer); ok {
			return tp.OutputType(), nil
		}
	}

	if !allowInit {
		return nil, nil
	}

	instance, err := c.GetOrCreate(ctx, ProducerPrefix+name)
	if err != nil {
		return nil, err
	}
	p, ok := instance.(Producer)
	if !ok {
		return reflect.TypeOf(instance), nil
	}
	if tp, ok := p.(TypedProducer); ok {
		return tp.OutputType(), nil
	}

	product, err := c.unwrapProducer(ctx, name, instance, false)
	if err != nil {
		return nil, err
	}
	if product == nil || product == NilProduct {
		return nil, nil
	}
	return reflect.TypeOf(product), nil
}

var producerType = reflect.TypeOf((*Producer)(nil)).Elem()
