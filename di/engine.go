package di

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gocrud/ioc/logging"
)

// nullBean 区分“解析结果为空”与“尚未解析”
type nullBean struct{}

var nullMarker = &nullBean{}

func wrapNull(bean any) any {
	if bean == nil {
		return nullMarker
	}
	return bean
}

func unwrapNull(bean any) any {
	if bean == nullMarker {
		return nil
	}
	return bean
}

// resolution 一次外部 GetBean 调用持有容器锁期间的上下文。
// 内部递归显式传递它，从而实现同一调用栈上的重入。
type resolution struct {
	c      *Container
	ctx    context.Context
	active atomic.Bool
	view   *boundFactory
}

func newResolution(c *Container, ctx context.Context) *resolution {
	if ctx == nil {
		ctx = context.Background()
	}
	res := &resolution{c: c, ctx: ctx}
	res.view = &boundFactory{res: res}
	res.active.Store(true)
	return res
}

// getBean 经由作用域获取 Bean，调用方持有容器锁
func (c *Container) getBean(res *resolution, name string) (any, error) {
	def, err := c.registry.get(name)
	if err != nil {
		return nil, err
	}
	scope, ok := c.scopes.get(def.scopeName())
	if !ok {
		return nil, &CreationError{Name: name, Cause: fmt.Errorf("no scope registered for name %q", def.Scope)}
	}
	return scope.Get(res.ctx, name, func() (any, error) {
		return c.doGetBean(res, def)
	})
}

func (c *Container) doGetBean(res *resolution, def *BeanDefinition) (any, error) {
	name := def.Name
	if err := c.resolveDependsOn(res, def); err != nil {
		return nil, err
	}

	if def.IsSingleton() {
		if bean, ok := c.cachedSingleton(name); ok {
			return unwrapNull(bean), nil
		}
	}

	if c.inCreation[name] > 0 {
		return nil, &CircularDependencyError{Chain: c.chainTo(name)}
	}
	return c.createBean(res, def, def.IsSingleton())
}

// resolveDependsOn 先创建 DependsOn 中声明的 Bean，每个名称只遍历一次
func (c *Container) resolveDependsOn(res *resolution, def *BeanDefinition) error {
	if len(def.DependsOn) == 0 {
		return nil
	}
	if _, ok := c.dependsResolved[def.Name]; ok {
		return nil
	}
	if i := slices.Index(c.dependsWalking, def.Name); i >= 0 {
		chain := append(slices.Clone(c.dependsWalking[i:]), def.Name)
		return &CircularDependencyError{Chain: chain}
	}

	c.dependsWalking = append(c.dependsWalking, def.Name)
	defer func() { c.dependsWalking = c.dependsWalking[:len(c.dependsWalking)-1] }()

	for _, dep := range def.DependsOn {
		if _, err := c.getBean(res, dep); err != nil {
			return wrapCreation(def.Name, fmt.Errorf("depends on %q: %w", dep, err))
		}
	}
	c.dependsResolved[def.Name] = struct{}{}
	return nil
}

// cachedSingleton 依次查找完整缓存、提前引用缓存和待执行的提前引用工厂
func (c *Container) cachedSingleton(name string) (any, bool) {
	if bean, ok := c.full[name]; ok {
		return bean, true
	}
	if bean, ok := c.early[name]; ok {
		return bean, true
	}
	if factory, ok := c.pending[name]; ok {
		bean := factory()
		c.early[name] = bean
		delete(c.pending, name)
		return bean, true
	}
	return nil, false
}

func (c *Container) chainTo(name string) []string {
	i := slices.Index(c.creating, name)
	if i < 0 {
		return []string{name, name}
	}
	return append(slices.Clone(c.creating[i:]), name)
}

func (c *Container) pushCreation(name string) {
	c.creating = append(c.creating, name)
	c.inCreation[name]++
}

func (c *Container) popCreation(name string) {
	for i := len(c.creating) - 1; i >= 0; i-- {
		if c.creating[i] == name {
			c.creating = slices.Delete(c.creating, i, i+1)
			break
		}
	}
	if c.inCreation[name]--; c.inCreation[name] <= 0 {
		delete(c.inCreation, name)
	}
}

// createBean 执行实例化、提前暴露、属性注入和初始化。cache 为 true 时写入单例缓存。
func (c *Container) createBean(res *resolution, def *BeanDefinition, cache bool) (any, error) {
	name := def.Name
	start := time.Now()

	c.pushCreation(name)
	defer c.popCreation(name)

	raw, err := def.Factory.Create(&argResolver{c: c, res: res})
	if err != nil {
		return nil, wrapCreation(name, err)
	}

	if cache && raw != nil {
		c.pending[name] = func() any {
			return c.chain.earlyReference(name, raw)
		}
	}

	bean, err := c.initializeBean(res, def, raw)
	if err != nil {
		if cache {
			delete(c.pending, name)
			delete(c.early, name)
		}
		return nil, wrapCreation(name, err)
	}

	if cache {
		if early, ok := c.early[name]; ok {
			if sameInstance(bean, raw) {
				bean = early
			} else {
				c.logger.Warn("Bean was wrapped after its early reference was exposed",
					logging.Field{Key: "bean", Value: name})
			}
		}
		delete(c.early, name)
		delete(c.pending, name)
		c.full[name] = wrapNull(bean)
	}

	c.logger.Debug("Created bean",
		logging.Field{Key: "bean", Value: name},
		logging.Field{Key: "scope", Value: def.scopeName()},
		logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	return bean, nil
}

// initializeBean 属性注入 -> Aware -> 初始化前处理 -> 初始化钩子 -> 初始化后处理
func (c *Container) initializeBean(res *resolution, def *BeanDefinition, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if err := c.populate(res, def, raw); err != nil {
		return nil, err
	}
	c.invokeAware(res, def.Name, raw)

	bean, err := c.chain.applyBefore(def.Name, def.Factory, raw)
	if err != nil {
		return nil, fmt.Errorf("before initialization: %w", err)
	}
	if bean == nil {
		return nil, nil
	}

	if err := invokeInit(def, bean); err != nil {
		return nil, err
	}

	bean, err = c.chain.applyAfter(def.Name, def.Factory, bean)
	if err != nil {
		return nil, fmt.Errorf("after initialization: %w", err)
	}
	return bean, nil
}

// populate 执行字段和 setter 注入
func (c *Container) populate(res *resolution, def *BeanDefinition, bean any) error {
	if len(def.Properties) == 0 {
		return nil
	}
	rv := reflect.ValueOf(bean)
	for _, p := range def.Properties {
		if p.Setter {
			if err := c.injectSetter(res, rv, p); err != nil {
				return err
			}
			continue
		}
		target := rv
		if target.Kind() == reflect.Pointer {
			target = target.Elem()
		}
		if target.Kind() != reflect.Struct {
			return fmt.Errorf("property %s: %T is not a struct", p.Target, bean)
		}
		field := target.FieldByName(p.Target)
		if !field.IsValid() {
			return fmt.Errorf("property %s: no such field on %T", p.Target, bean)
		}
		if !field.CanSet() {
			return fmt.Errorf("property %s: field on %T is not settable", p.Target, bean)
		}
		v, err := c.resolveInjection(res, p.Value, field.Type())
		if err != nil {
			return fmt.Errorf("property %s: %w", p.Target, err)
		}
		if v.IsValid() {
			field.Set(v)
		}
	}
	return nil
}

func (c *Container) injectSetter(res *resolution, rv reflect.Value, p PropertyAssignment) error {
	m := rv.MethodByName(p.Target)
	if !m.IsValid() {
		return fmt.Errorf("setter %s: no such method on %s", p.Target, rv.Type())
	}
	if m.Type().NumIn() != 1 {
		return fmt.Errorf("setter %s: must take exactly one argument", p.Target)
	}
	v, err := c.resolveInjection(res, p.Value, m.Type().In(0))
	if err != nil {
		return fmt.Errorf("setter %s: %w", p.Target, err)
	}
	if !v.IsValid() {
		return nil
	}
	for _, out := range m.Call([]reflect.Value{v}) {
		if out.Type().Implements(errorType) && !out.IsNil() {
			return fmt.Errorf("setter %s: %w", p.Target, out.Interface().(error))
		}
	}
	return nil
}

// sameInstance 比较两个实例是否为同一对象，不可比较的值视为不同
func sameInstance(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return va.Type().Comparable() && a == b
}

// argResolver 把创建过程中的参数解析绑定到当前 resolution
type argResolver struct {
	c   *Container
	res *resolution
}

func (a *argResolver) Resolve(arg any, target reflect.Type) (reflect.Value, error) {
	v, err := a.c.resolveInjection(a.res, arg, target)
	if err != nil {
		return reflect.Value{}, err
	}
	if !v.IsValid() {
		return reflect.Zero(target), nil
	}
	return v, nil
}

func (a *argResolver) Bean(name string) (any, error) {
	return a.c.getBean(a.res, name)
}

// boundFactory 在 resolution 活跃时直接走内部路径，否则走加锁的公共路径。
type boundFactory struct {
	res *resolution
}

func (b *boundFactory) GetBean(name string) (any, error) {
	if b.res.active.Load() {
		return b.res.c.getBean(b.res, name)
	}
	return b.res.c.GetBeanContext(b.res.ctx, name)
}

func (b *boundFactory) GetBeanAs(name string, t reflect.Type) (any, error) {
	bean, err := b.GetBean(name)
	if err != nil {
		return nil, err
	}
	return checkBeanType(name, bean, t)
}

func (b *boundFactory) GetBeanOfType(t reflect.Type) (any, error) {
	if b.res.active.Load() {
		return b.res.c.getBeanOfType(b.res, t)
	}
	return b.res.c.GetBeanOfTypeContext(b.res.ctx, t)
}

func (b *boundFactory) GetBeanWithArgs(name string, args ...any) (any, error) {
	if b.res.active.Load() {
		return b.res.c.getBeanWithArgs(b.res, name, args)
	}
	return b.res.c.GetBeanWithArgs(name, args...)
}

func (b *boundFactory) ContainsBean(name string) bool { return b.res.c.ContainsBean(name) }

func (b *boundFactory) IsSingleton(name string) (bool, error) { return b.res.c.IsSingleton(name) }

func (b *boundFactory) GetType(name string) (reflect.Type, error) { return b.res.c.GetType(name) }

func (b *boundFactory) resolveReference(ref *BeanReference) (any, error) {
	if b.res.active.Load() {
		v, _, err := b.res.c.resolveReference(b.res, ref)
		return v, err
	}
	c := b.res.c
	res, err := c.begin(b.res.ctx)
	if err != nil {
		return nil, err
	}
	defer c.end(res)
	v, _, err := c.resolveReference(res, ref)
	return v, err
}
