package di

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"
)

// ObjectFactory 由容器传给作用域，执行一次完整的创建流程。
type ObjectFactory func() (any, error)

// Scope 控制实例共享粒度。Get 在作用域内没有缓存实例时调用 factory。
type Scope interface {
	Get(ctx context.Context, name string, factory ObjectFactory) (any, error)
	Remove(ctx context.Context, name string) (any, bool)
}

// passthroughScope 直接委托给 factory，单例缓存由容器负责。
type passthroughScope struct{}

func (passthroughScope) Get(_ context.Context, _ string, factory ObjectFactory) (any, error) {
	return factory()
}

func (passthroughScope) Remove(context.Context, string) (any, bool) { return nil, false }

// scopeStore 作用域内的实例缓存
type scopeStore struct {
	mu    sync.Mutex
	beans map[string]any
	order []string
}

func newScopeStore() *scopeStore {
	return &scopeStore{beans: make(map[string]any)}
}

// get 创建时不持有锁，factory 可能递归进入同一作用域
func (s *scopeStore) get(name string, factory ObjectFactory) (any, error) {
	s.mu.Lock()
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
	if existing, ok := s.beans[name]; ok {
		return existing, nil
	}
	s.beans[name] = bean
	s.order = append(s.order, name)
	return bean, nil
}

func (s *scopeStore) remove(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bean, ok := s.beans[name]
	if ok {
		delete(s.beans, name)
		s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	}
	return bean, ok
}

// drain 按创建的逆序取出全部实例
func (s *scopeStore) drain() ([]string, []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := slices.Clone(s.order)
	slices.Reverse(names)
	beans := make([]any, len(names))
	for i, name := range names {
		beans[i] = s.beans[name]
	}
	s.beans = make(map[string]any)
	s.order = nil
	return names, beans
}

type threadScopeKey struct{}

// WithThreadScope 返回带有独立线程作用域存储的 context。
// 同一 context 链上获取的 thread 作用域 Bean 共享实例。
func WithThreadScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, threadScopeKey{}, newScopeStore())
}

// ThreadScope 每个逻辑执行流（由 WithThreadScope 标记的 context）一个实例。
type ThreadScope struct{}

func (ThreadScope) Get(ctx context.Context, name string, factory ObjectFactory) (any, error) {
	store, ok := ctx.Value(threadScopeKey{}).(*scopeStore)
	if !ok {
		return nil, fmt.Errorf("di: bean %q is thread scoped but the context has no thread scope, use di.WithThreadScope", name)
	}
	return store.get(name, factory)
}

func (ThreadScope) Remove(ctx context.Context, name string) (any, bool) {
	store, ok := ctx.Value(threadScopeKey{}).(*scopeStore)
	if !ok {
		return nil, false
	}
	return store.remove(name)
}

// RefreshScope 实例缓存到下一次 Refresh；被淘汰的实例交给 OnEvict 销毁。
type RefreshScope struct {
	store   *scopeStore
	onEvict func(name string, bean any) error
}

// NewRefreshScope 创建刷新作用域，onEvict 可以为 nil
func NewRefreshScope(onEvict func(name string, bean any) error) *RefreshScope {
	return &RefreshScope{store: newScopeStore(), onEvict: onEvict}
}

func (s *RefreshScope) Get(_ context.Context, name string, factory ObjectFactory) (any, error) {
	return s.store.get(name, factory)
}

func (s *RefreshScope) Remove(_ context.Context, name string) (any, bool) {
	return s.store.remove(name)
}

// Refresh 淘汰全部实例，下一次获取时重新创建
func (s *RefreshScope) Refresh() error {
	names, beans := s.store.drain()
	var errs error
	for i, name := range names {
		errs = multierr.Append(errs, s.evict(name, beans[i]))
	}
	return errs
}

// RefreshBean 只淘汰一个实例
func (s *RefreshScope) RefreshBean(name string) error {
	bean, ok := s.store.remove(name)
	if !ok {
		return nil
	}
	return s.evict(name, bean)
}

// Names 当前缓存的 Bean 名称
func (s *RefreshScope) Names() []string {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return slices.Clone(s.store.order)
}

// Close 容器关闭时调用
func (s *RefreshScope) Close() error {
	return s.Refresh()
}

func (s *RefreshScope) evict(name string, bean any) error {
	if s.onEvict == nil || bean == nil {
		return nil
	}
	if err := s.onEvict(name, bean); err != nil {
		return &DisposalError{Name: name, Cause: err}
	}
	return nil
}

// scopeRegistry 作用域名称到策略的映射
type scopeRegistry struct {
	mu     sync.RWMutex
	scopes map[string]Scope
}

func newScopeRegistry() *scopeRegistry {
	return &scopeRegistry{
		scopes: map[string]Scope{
			ScopeSingleton: passthroughScope{},
			ScopePrototype: passthroughScope{},
			ScopeThread:    ThreadScope{},
		},
	}
}

func (r *scopeRegistry) register(name string, scope Scope) error {
	if name == ScopeSingleton || name == ScopePrototype {
		return fmt.Errorf("di: scope %q cannot be replaced", name)
	}
	if scope == nil {
		return fmt.Errorf("di: scope %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes[name] = scope
	return nil
}

func (r *scopeRegistry) get(name string) (Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[name]
	return s, ok
}

func (r *scopeRegistry) all() []Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scopes := make([]Scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		scopes = append(scopes, s)
	}
	return scopes
}
