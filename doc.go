// Package cradle is an object-graph construction and lifecycle container:
// given declarative component descriptors and their dependencies, it decides
// how to instantiate each component, manages lifetimes according to declared
// scopes, resolves circular dependency graphs safely during construction,
// and exposes components under stable names.
//
// The container is a passive library invoked by caller goroutines. The four
// cooperating engines are:
//
//   - the merge engine, which flattens descriptor inheritance chains into
//     cached flattened descriptors with explicit staleness invalidation;
//   - the instance registry, implementing the scope-aware get-or-create
//     protocol with early-reference exposure for singletons and
//     context-carried creation tracking for prototypes;
//   - the executable resolver, which selects the best constructor or
//     factory-method overload by weighted type-distance scoring and caches
//     the winning construction plan;
//   - the producer resolver, which unwraps components that are themselves
//     producers of other components.
//
// Descriptor parsing, property injection, proxying and type conversion are
// external collaborators consumed through narrow interfaces.
//
// Example:
//
//	store := cradle.NewStore()
//	store.Register("config", &cradle.ComponentDescriptor{
//		Constructors: []any{NewConfig},
//	})
//	c := cradle.New(store)
//	defer c.Close()
//
//	cfg, err := c.GetOrCreate(context.Background(), "config")
package cradle
