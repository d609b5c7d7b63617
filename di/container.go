package di

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/logging"
)

// Options 可从配置绑定的容器选项
type Options struct {
	AllowOverriding bool   `json:"allowOverriding" yaml:"allowOverriding"`
	DestroyPolicy   string `json:"destroyPolicy" yaml:"destroyPolicy"`
}

// ContainerOption 容器构造选项
type ContainerOption func(*Container)

// WithEnvironment 设置按值引用的解析服务
func WithEnvironment(env Environment) ContainerOption {
	return func(c *Container) {
		c.env = env
	}
}

// WithLogger 设置容器日志
func WithLogger(logger logging.Logger) ContainerOption {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// AllowDefinitionOverriding 允许同名定义覆盖
func AllowDefinitionOverriding(allow bool) ContainerOption {
	return func(c *Container) {
		c.allowOverride = allow
	}
}

// WithDestroyPolicy 设置遇到代理临时 Bean 时的销毁策略
func WithDestroyPolicy(policy DestroyPolicy) ContainerOption {
	return func(c *Container) {
		c.destroyPolicy = policy
	}
}

// WithOptions 应用绑定自配置的选项，策略名称无效时保持默认值
func WithOptions(o Options) ContainerOption {
	return func(c *Container) {
		c.allowOverride = o.AllowOverriding
		if policy, err := ParseDestroyPolicy(o.DestroyPolicy); err == nil {
			c.destroyPolicy = policy
		}
	}
}

// NamedBean 名称与实例
type NamedBean struct {
	Name string
	Bean any
}

// Container Bean 容器。
//
// 所有缓存由一把互斥锁保护；创建过程中的递归调用通过 resolution 重入，不会再次加锁。
// 工厂和 Aware Bean 拿到的 BeanFactory 同样绑定到当前 resolution。
type Container struct {
	mu            sync.Mutex
	registry      *registry
	scopes        *scopeRegistry
	refreshScope  *RefreshScope
	chain         processorChain
	env           Environment
	logger        logging.Logger
	allowOverride bool
	destroyPolicy DestroyPolicy

	full            map[string]any
	early           map[string]any
	pending         map[string]func() any
	creating        []string
	inCreation      map[string]int
	dependsResolved map[string]struct{}
	dependsWalking  []string
	processorBeans  map[string]struct{}
	closed          bool
}

var (
	_ BeanFactory = (*Container)(nil)
	_ BeanFactory = (*boundFactory)(nil)
)

// NewContainer 创建容器
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{
		logger:          logging.Nop(),
		scopes:          newScopeRegistry(),
		full:            make(map[string]any),
		early:           make(map[string]any),
		pending:         make(map[string]func() any),
		inCreation:      make(map[string]int),
		dependsResolved: make(map[string]struct{}),
		processorBeans:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = newRegistry(c, c.allowOverride)
	c.refreshScope = NewRefreshScope(c.disposeEvicted)
	_ = c.scopes.register(ScopeRefresh, c.refreshScope)
	return c
}

func (c *Container) begin(ctx context.Context) (*resolution, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrContainerClosed
	}
	return newResolution(c, ctx), nil
}

func (c *Container) end(res *resolution) {
	res.active.Store(false)
	c.mu.Unlock()
}

// Register 注册定义。覆盖已有定义时会丢弃其缓存的单例，不能在 Bean 创建过程中调用。
func (c *Container) Register(def *BeanDefinition) error {
	if def == nil || def.Name == "" {
		return errors.New("di: bean definition must have a name")
	}
	if def.Factory == nil {
		return fmt.Errorf("di: bean definition %q has no instance factory", def.Name)
	}
	if err := c.registry.register(def); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.full, def.Name)
	clear(c.dependsResolved)
	return nil
}

// MustRegister 注册失败时 panic
func (c *Container) MustRegister(def *BeanDefinition) {
	if err := c.Register(def); err != nil {
		panic(err)
	}
}

// Provide 以构造函数注册单例，参数按类型自动装配
func (c *Container) Provide(name string, ctor any, opts ...Option) error {
	return c.Register(NewDefinition(name, Constructor(ctor), opts...))
}

// RegisterSingleton 注册一个现成的实例
func (c *Container) RegisterSingleton(name string, instance any, opts ...Option) error {
	return c.Register(NewDefinition(name, Instance(instance), opts...))
}

// Remove 删除定义并丢弃已缓存的单例（不调用销毁钩子）。
// 不能在 Bean 创建过程中调用。
func (c *Container) Remove(name string) (*BeanDefinition, error) {
	def, err := c.registry.remove(name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.full, name)
	clear(c.dependsResolved)
	return def, nil
}

// Definition 获取定义
func (c *Container) Definition(name string) (*BeanDefinition, error) {
	return c.registry.get(name)
}

// DefinitionNames 按注册顺序返回全部名称
func (c *Container) DefinitionNames() []string {
	return c.registry.list()
}

// DefinitionCount 定义数量
func (c *Container) DefinitionCount() int {
	return c.registry.count()
}

// AddPostProcessor 追加处理器，按追加顺序执行
func (c *Container) AddPostProcessor(p BeanPostProcessor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chain.add(p)
}

// AddEarlyReferenceExposer 追加提前引用暴露器
func (c *Container) AddEarlyReferenceExposer(e EarlyReferenceExposer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chain.addExposer(e)
}

// RegisterScope 注册自定义作用域，singleton 和 prototype 不可替换
func (c *Container) RegisterScope(name string, scope Scope) error {
	return c.scopes.register(name, scope)
}

// Scope 按名称获取作用域
func (c *Container) Scope(name string) (Scope, bool) {
	return c.scopes.get(name)
}

// RefreshScope 内置的刷新作用域
func (c *Container) RefreshScope() *RefreshScope {
	return c.refreshScope
}

// GetBean 按名称获取
func (c *Container) GetBean(name string) (any, error) {
	return c.GetBeanContext(context.Background(), name)
}

// GetBeanContext 按名称获取，ctx 用于线程作用域等依赖上下文的作用域
func (c *Container) GetBeanContext(ctx context.Context, name string) (any, error) {
	res, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(res)
	return c.getBean(res, name)
}

// GetBeanAs 按名称获取并校验类型
func (c *Container) GetBeanAs(name string, t reflect.Type) (any, error) {
	bean, err := c.GetBean(name)
	if err != nil {
		return nil, err
	}
	return checkBeanType(name, bean, t)
}

// GetBeanOfType 按类型获取唯一 Bean
func (c *Container) GetBeanOfType(t reflect.Type) (any, error) {
	return c.GetBeanOfTypeContext(context.Background(), t)
}

// GetBeanOfTypeContext 按类型获取唯一 Bean
func (c *Container) GetBeanOfTypeContext(ctx context.Context, t reflect.Type) (any, error) {
	res, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(res)
	return c.getBeanOfType(res, t)
}

// GetBeanWithArgs 使用显式构造参数创建独立实例，不进入任何缓存
func (c *Container) GetBeanWithArgs(name string, args ...any) (any, error) {
	res, err := c.begin(context.Background())
	if err != nil {
		return nil, err
	}
	defer c.end(res)
	return c.getBeanWithArgs(res, name, args)
}

// ContainsBean 是否存在该名称的定义
func (c *Container) ContainsBean(name string) bool {
	return c.registry.contains(name)
}

// IsSingleton 定义是否为单例作用域
func (c *Container) IsSingleton(name string) (bool, error) {
	def, err := c.registry.get(name)
	if err != nil {
		return false, err
	}
	return def.IsSingleton(), nil
}

// GetType 定义声明的产物类型
func (c *Container) GetType(name string) (reflect.Type, error) {
	def, err := c.registry.get(name)
	if err != nil {
		return nil, err
	}
	return def.Factory.Type(c)
}

// NamesForType 可自动装配且类型兼容的名称，按注册顺序
func (c *Container) NamesForType(t reflect.Type) []string {
	return c.registry.namesForType(t)
}

// BeansOfType 获取类型兼容的全部 Bean，按优先级排序
func (c *Container) BeansOfType(t reflect.Type) ([]NamedBean, error) {
	res, err := c.begin(context.Background())
	if err != nil {
		return nil, err
	}
	defer c.end(res)

	names := c.registry.sortByPriority(c.registry.namesForType(t))
	beans := make([]NamedBean, 0, len(names))
	for _, name := range names {
		bean, err := c.getBean(res, name)
		if err != nil {
			return nil, err
		}
		if bean != nil {
			beans = append(beans, NamedBean{Name: name, Bean: bean})
		}
	}
	return beans, nil
}

// IsCreated 单例是否已在完整缓存中
func (c *Container) IsCreated(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.full[name]
	return ok
}

var postProcessorType = TypeOf[BeanPostProcessor]()

// Refresh 先实例化处理器 Bean，再按优先级预热全部非延迟单例。
func (c *Container) Refresh() error {
	start := time.Now()
	res, err := c.begin(context.Background())
	if err != nil {
		return err
	}
	defer c.end(res)

	if err := c.registerProcessorBeans(res); err != nil {
		return err
	}

	created := 0
	for _, name := range c.registry.prioritizedSingletons() {
		def, err := c.registry.get(name)
		if err != nil || def.LazyInit {
			continue
		}
		if _, err := c.getBean(res, name); err != nil {
			return err
		}
		created++
	}

	c.logger.Info("Container refreshed",
		logging.Field{Key: "definitions", Value: c.registry.count()},
		logging.Field{Key: "singletons", Value: created},
		logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	return nil
}

func (c *Container) registerProcessorBeans(res *resolution) error {
	var processors []BeanPostProcessor
	for _, name := range c.registry.namesForType(postProcessorType) {
		if _, done := c.processorBeans[name]; done {
			continue
		}
		bean, err := c.getBean(res, name)
		if err != nil {
			return err
		}
		if p, ok := bean.(BeanPostProcessor); ok {
			processors = append(processors, p)
		}
		c.processorBeans[name] = struct{}{}
	}
	for _, p := range SortProcessors(processors) {
		c.chain.add(p)
	}
	return nil
}

// Close 按优先级逆序销毁单例，单个 Bean 的失败不会中断其余 Bean。
// 返回的错误由 multierr 聚合，每一项都是 *DisposalError。
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs error
	names := c.registry.prioritizedSingletons()
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		bean, ok := c.full[name]
		if !ok {
			continue
		}
		def, _ := c.registry.get(name)
		if def != nil && def.Role == RoleProxyTemporary {
			if c.destroyPolicy == DestroyStopAtProxy {
				c.logger.Debug("Stopped destruction at proxy-temporary bean",
					logging.Field{Key: "bean", Value: name})
				break
			}
			continue
		}
		delete(c.full, name)
		bean = unwrapNull(bean)
		if sameInstance(bean, c) {
			continue
		}
		if err := destroyBean(def, bean); err != nil {
			c.logger.Error("Failed to destroy bean",
				logging.Field{Key: "bean", Value: name},
				logging.Field{Key: "error", Value: err.Error()})
			errs = multierr.Append(errs, &DisposalError{Name: name, Cause: err})
			continue
		}
		c.logger.Debug("Destroyed bean", logging.Field{Key: "bean", Value: name})
	}

	for _, scope := range c.scopes.all() {
		if closer, ok := scope.(interface{ Close() error }); ok {
			errs = multierr.Append(errs, closer.Close())
		}
	}

	clear(c.full)
	clear(c.early)
	clear(c.pending)
	clear(c.dependsResolved)
	return errs
}

// ReleaseThreadScope 销毁 ctx 上线程作用域中的全部实例
func (c *Container) ReleaseThreadScope(ctx context.Context) error {
	store, ok := ctx.Value(threadScopeKey{}).(*scopeStore)
	if !ok {
		return nil
	}
	names, beans := store.drain()
	var errs error
	for i, name := range names {
		if err := c.disposeEvicted(name, beans[i]); err != nil {
			errs = multierr.Append(errs, &DisposalError{Name: name, Cause: err})
		}
	}
	return errs
}

func (c *Container) disposeEvicted(name string, bean any) error {
	def, _ := c.registry.get(name)
	return destroyBean(def, unwrapNull(bean))
}
