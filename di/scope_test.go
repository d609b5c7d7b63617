package di

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	id        int
	destroyed bool
}

func (s *session) Destroy() error {
	s.destroyed = true
	return nil
}

func sessionCounter() (func() *session, *int) {
	n := 0
	return func() *session {
		n++
		return &session{id: n}
	}, &n
}

func TestThreadScope(t *testing.T) {
	ctor, _ := sessionCounter()
	c := NewContainer()
	require.NoError(t, c.Provide("session", ctor, WithScope(ScopeThread)))

	ctx1 := WithThreadScope(context.Background())
	ctx2 := WithThreadScope(context.Background())

	a1, err := c.GetBeanContext(ctx1, "session")
	require.NoError(t, err)
	a2, err := c.GetBeanContext(ctx1, "session")
	require.NoError(t, err)
	b1, err := c.GetBeanContext(ctx2, "session")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b1)

	require.NoError(t, c.ReleaseThreadScope(ctx1))
	assert.True(t, a1.(*session).destroyed)
	assert.False(t, b1.(*session).destroyed)

	a3, err := c.GetBeanContext(ctx1, "session")
	require.NoError(t, err)
	assert.NotSame(t, a1, a3)

	_, err = c.GetBean("session")
	assert.ErrorContains(t, err, "WithThreadScope")
}

func TestRefreshScope(t *testing.T) {
	ctor, created := sessionCounter()
	c := NewContainer()
	require.NoError(t, c.Provide("cfg", ctor, WithScope(ScopeRefresh)))

	first, err := c.GetBean("cfg")
	require.NoError(t, err)
	again, err := c.GetBean("cfg")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, []string{"cfg"}, c.RefreshScope().Names())

	require.NoError(t, c.RefreshScope().Refresh())
	assert.True(t, first.(*session).destroyed)
	assert.Empty(t, c.RefreshScope().Names())

	second, err := c.GetBean("cfg")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, *created)

	require.NoError(t, c.RefreshScope().RefreshBean("cfg"))
	assert.True(t, second.(*session).destroyed)
	require.NoError(t, c.RefreshScope().RefreshBean("cfg"))

	third, err := c.GetBean("cfg")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.True(t, third.(*session).destroyed)
}

// tenantScope 按名称计数的自定义作用域
type tenantScope struct {
	mu    sync.Mutex
	beans map[string]any
	gets  int
}

func (s *tenantScope) Get(_ context.Context, name string, factory ObjectFactory) (any, error) {
	s.mu.Lock()
	s.gets++
	if bean, ok := s.beans[name]; ok {
		s.mu.Unlock()
		return bean, nil
	}
	s.mu.Unlock()
	bean, err := factory()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beans[name] = bean
	return bean, nil
}

func (s *tenantScope) Remove(_ context.Context, name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bean, ok := s.beans[name]
	delete(s.beans, name)
	return bean, ok
}

func TestCustomScope(t *testing.T) {
	scope := &tenantScope{beans: make(map[string]any)}
	ctor, created := sessionCounter()
	c := NewContainer()
	require.NoError(t, c.RegisterScope("tenant", scope))
	require.NoError(t, c.Provide("tenantSession", ctor, WithScope("tenant")))

	a, err := c.GetBean("tenantSession")
	require.NoError(t, err)
	b, err := c.GetBean("tenantSession")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 2, scope.gets)
	assert.Equal(t, 1, *created)

	registered, ok := c.Scope("tenant")
	require.True(t, ok)
	removed, ok := registered.Remove(context.Background(), "tenantSession")
	assert.True(t, ok)
	assert.Same(t, a, removed)

	fresh, err := c.GetBean("tenantSession")
	require.NoError(t, err)
	assert.NotSame(t, a, fresh)
}

func TestBuiltinScopesCannotBeReplaced(t *testing.T) {
	c := NewContainer()
	scope := &tenantScope{beans: make(map[string]any)}
	assert.Error(t, c.RegisterScope(ScopeSingleton, scope))
	assert.Error(t, c.RegisterScope(ScopePrototype, scope))
	assert.Error(t, c.RegisterScope("tenant", nil))
}

func TestUnknownScope(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("bean", func() *session { return &session{} }, WithScope("request")))

	_, err := c.GetBean("bean")
	var creation *CreationError
	require.ErrorAs(t, err, &creation)
	assert.Equal(t, "bean", creation.Name)
}
