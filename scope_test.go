package cradle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cradleio/cradle"
)

func TestSessionScope(t *testing.T) {
	t.Run("caches per name until cleared", func(t *testing.T) {
		t.Parallel()

		s := cradle.NewSessionScope()
		calls := 0
		supplier := func() (any, error) {
			calls++
			return &database{dsn: "scoped"}, nil
		}

		first, err := s.Get("db", supplier)
		require.NoError(t, err)
		second, err := s.Get("db", supplier)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)

		oldSession := s.SessionID()
		s.Clear()
		assert.NotEqual(t, oldSession, s.SessionID(), "clear starts a new session")

		third, err := s.Get("db", supplier)
		require.NoError(t, err)
		assert.NotSame(t, first, third)
		assert.Equal(t, 2, calls)
	})

	t.Run("clear runs destruction callbacks LIFO", func(t *testing.T) {
		t.Parallel()

		s := cradle.NewSessionScope()
		var order []string
		s.RegisterDestructionCallback("a", func() { order = append(order, "a") })
		s.RegisterDestructionCallback("b", func() { order = append(order, "b") })

		s.Clear()
		assert.Equal(t, []string{"b", "a"}, order)
	})

	t.Run("remove drops the instance and its callbacks", func(t *testing.T) {
		t.Parallel()

		s := cradle.NewSessionScope()
		db := &database{}
		_, err := s.Get("db", func() (any, error) { return db, nil })
		require.NoError(t, err)
		s.RegisterDestructionCallback("db", func() { t.Error("dropped callback ran") })

		removed, err := s.Remove("db")
		require.NoError(t, err)
		assert.Same(t, db, removed)

		removed, err = s.Remove("db")
		require.NoError(t, err)
		assert.Nil(t, removed)

		s.Clear()
	})
}

func TestContainer_CustomScope(t *testing.T) {
	t.Parallel()

	session := cradle.NewSessionScope()
	store := newStore(t, map[string]*cradle.ComponentDescriptor{
		"db": {Scope: "session", Constructors: []any{newDatabase}},
	})
	c := cradle.New(store)
	defer c.Close()
	require.NoError(t, c.RegisterScope("session", session))

	first, err := c.GetOrCreate(context.Background(), "db")
	require.NoError(t, err)
	second, err := c.GetOrCreate(context.Background(), "db")
	require.NoError(t, err)
	assert.Same(t, first, second, "one instance per session")

	session.Clear()
	assert.True(t, first.(*database).closed,
		"Disposable scoped instance closed when the session ended")

	third, err := c.GetOrCreate(context.Background(), "db")
	require.NoError(t, err)
	assert.NotSame(t, first, third, "new session gets a new instance")
}

func TestContainer_RegisterScopeValidation(t *testing.T) {
	t.Parallel()

	c := cradle.New(cradle.NewStore())
	defer c.Close()

	assert.ErrorIs(t, c.RegisterScope("", cradle.NewSessionScope()), cradle.ErrComponentNameEmpty)
	assert.ErrorIs(t, c.RegisterScope("session", nil), cradle.ErrScopeStrategyNil)

	var cfgErr *cradle.ConfigurationError
	assert.ErrorAs(t, c.RegisterScope(cradle.ScopeSingleton, cradle.NewSessionScope()), &cfgErr)
	assert.ErrorAs(t, c.RegisterScope(cradle.ScopePrototype, cradle.NewSessionScope()), &cfgErr)
}
