package lifecycle

import "context"

// Creation tracks construction-in-progress state for one logical call
// chain. The original design relied on thread-locals; here the state is
// carried explicitly on the context so it follows the call chain that
// initiated the request regardless of goroutine identity.
type Creation struct {
	// prototypes holds names currently being created with prototype or
	// custom scope in this call chain. A repeated entry is a fatal
	// circular-creation request.
	prototypes map[string]struct{}

	// holdsSingletonLock marks that this call chain already owns the
	// coarse singleton creation lock, so nested singleton creation must
	// not re-acquire it.
	holdsSingletonLock bool
}

type creationContextKey struct{}

// WithCreation returns a context carrying creation-tracking state, reusing
// the existing state when the context already carries one.
func WithCreation(ctx context.Context) (context.Context, *Creation) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c, ok := ctx.Value(creationContextKey{}).(*Creation); ok {
		return ctx, c
	}
	c := &Creation{prototypes: make(map[string]struct{})}
	return context.WithValue(ctx, creationContextKey{}, c), c
}

// FromContext returns the creation state carried by ctx, if any.
func FromContext(ctx context.Context) (*Creation, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(creationContextKey{}).(*Creation)
	return c, ok
}

// BeforePrototypeCreation marks name as being created in this call chain.
// It returns false when the name is already mid-creation here, which is
// always a fatal circular prototype request.
func (c *Creation) BeforePrototypeCreation(name string) bool {
	if _, creating := c.prototypes[name]; creating {
		return false
	}
	c.prototypes[name] = struct{}{}
	return true
}

// AfterPrototypeCreation clears the in-creation mark for name.
func (c *Creation) AfterPrototypeCreation(name string) {
	delete(c.prototypes, name)
}

// IsPrototypeInCreation reports whether name is mid-creation in this call
// chain.
func (c *Creation) IsPrototypeInCreation(name string) bool {
	_, creating := c.prototypes[name]
	return creating
}
