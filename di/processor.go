package di

import (
	"cmp"
	"slices"
)

// BeanPostProcessor 在初始化钩子前后拦截 Bean。
// 任一方法返回 nil 时链条终止，Bean 解析为 nil。
type BeanPostProcessor interface {
	PostProcessBeforeInitialization(name string, factory InstanceFactory, bean any) (any, error)
	PostProcessAfterInitialization(name string, factory InstanceFactory, bean any) (any, error)
}

// EarlyReferenceExposer 在单例被循环引用提前获取时调用，可以返回替换后的实例（如代理）。
// 只在提前暴露时调用，不参与常规的初始化前后链。
type EarlyReferenceExposer interface {
	EarlyReference(name string, bean any) any
}

// Ordered 处理器的排序值，越小越靠前
type Ordered interface {
	Order() int
}

// BeforeInitFunc 只处理初始化前阶段的函数适配器
type BeforeInitFunc func(name string, factory InstanceFactory, bean any) (any, error)

func (f BeforeInitFunc) PostProcessBeforeInitialization(name string, factory InstanceFactory, bean any) (any, error) {
	return f(name, factory, bean)
}

func (f BeforeInitFunc) PostProcessAfterInitialization(_ string, _ InstanceFactory, bean any) (any, error) {
	return bean, nil
}

// AfterInitFunc 只处理初始化后阶段的函数适配器
type AfterInitFunc func(name string, factory InstanceFactory, bean any) (any, error)

func (f AfterInitFunc) PostProcessBeforeInitialization(_ string, _ InstanceFactory, bean any) (any, error) {
	return bean, nil
}

func (f AfterInitFunc) PostProcessAfterInitialization(name string, factory InstanceFactory, bean any) (any, error) {
	return f(name, factory, bean)
}

// EarlyReferenceFunc 函数形式的 EarlyReferenceExposer
type EarlyReferenceFunc func(name string, bean any) any

func (f EarlyReferenceFunc) EarlyReference(name string, bean any) any {
	return f(name, bean)
}

// SortProcessors 按 Ordered 稳定排序，未实现 Ordered 的排在最后。
func SortProcessors[P any](ps []P) []P {
	sorted := slices.Clone(ps)
	slices.SortStableFunc(sorted, func(a, b P) int {
		return cmp.Compare(orderOf(a), orderOf(b))
	})
	return sorted
}

func orderOf(v any) int {
	if o, ok := v.(Ordered); ok {
		return o.Order()
	}
	return DefaultPriority
}

// processorChain 按注册顺序执行，容器锁保护。
type processorChain struct {
	processors []BeanPostProcessor
	exposers   []EarlyReferenceExposer
}

func (c *processorChain) add(p BeanPostProcessor) {
	c.processors = append(c.processors, p)
	if e, ok := p.(EarlyReferenceExposer); ok {
		c.exposers = append(c.exposers, e)
	}
}

func (c *processorChain) addExposer(e EarlyReferenceExposer) {
	c.exposers = append(c.exposers, e)
}

func (c *processorChain) applyBefore(name string, factory InstanceFactory, bean any) (any, error) {
	current := bean
	for _, p := range c.processors {
		next, err := p.PostProcessBeforeInitialization(name, factory, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

func (c *processorChain) applyAfter(name string, factory InstanceFactory, bean any) (any, error) {
	current := bean
	for _, p := range c.processors {
		next, err := p.PostProcessAfterInitialization(name, factory, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

func (c *processorChain) earlyReference(name string, bean any) any {
	current := bean
	for _, e := range c.exposers {
		current = e.EarlyReference(name, current)
	}
	return current
}
