package di

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

var beanFactoryType = TypeOf[BeanFactory]()

// resolveInjection 把引用或字面值解析为 target 类型的值。
// 返回无效的 reflect.Value 表示非必需依赖未找到。
func (c *Container) resolveInjection(res *resolution, arg any, target reflect.Type) (reflect.Value, error) {
	ref, ok := arg.(*BeanReference)
	if !ok {
		return convertValue(reflect.ValueOf(arg), target)
	}

	ref = c.withInjectionType(ref, target)
	if ref.Lazy {
		return c.lazyInjection(res, ref, target)
	}

	v, found, err := c.resolveReference(res, ref)
	if err != nil {
		return reflect.Value{}, err
	}
	if !found {
		return reflect.Value{}, nil
	}
	return convertValue(reflect.ValueOf(v), target)
}

// withInjectionType 引用未声明类型时使用注入点类型
func (c *Container) withInjectionType(ref *BeanReference, target reflect.Type) *BeanReference {
	if ref.Type != nil || target == nil {
		return ref
	}
	t := target
	if ref.Lazy {
		elem, ok := lazyTarget(target)
		if !ok || elem == nil {
			return ref
		}
		t = elem
	}
	if ref.Kind == RefCollectBeans {
		if t.Kind() != reflect.Slice {
			return ref
		}
		t = t.Elem()
	}
	if ref.Kind == RefCollectNames {
		return ref
	}
	return ref.OfType(t)
}

func (c *Container) lazyInjection(res *resolution, ref *BeanReference, target reflect.Type) (reflect.Value, error) {
	if _, ok := lazyTarget(target); !ok {
		return reflect.Value{}, fmt.Errorf("di: lazy reference %s needs a di.Deferred, any or *di.Lazy[T] target, got %s", ref, target)
	}
	eager := ref.clone()
	eager.Lazy = false
	view := res.view
	return wrapDeferred(target, &deferredFunc{resolve: func() (any, error) {
		return view.resolveReference(eager)
	}}), nil
}

// resolveReference 按引用策略解析。found 为 false 表示非必需依赖缺失。
func (c *Container) resolveReference(res *resolution, ref *BeanReference) (any, bool, error) {
	switch ref.Kind {
	case RefByName:
		return c.resolveByName(res, ref)
	case RefByType:
		return c.resolveByType(res, ref)
	case RefByValue:
		return c.resolveByValue(ref)
	case RefAutoNameFirst:
		if ref.Name != "" && c.registry.contains(ref.Name) {
			return c.resolveByName(res, ref)
		}
		return c.resolveByType(res, ref)
	case RefAutoTypeFirst:
		if ref.Type == nil || len(c.candidates(ref.Type)) == 0 {
			return c.resolveByName(res, ref)
		}
		return c.resolveByType(res, ref)
	case RefCollectNames:
		names, err := c.collect(ref)
		if err != nil || names == nil {
			return nil, names != nil, err
		}
		return names, true, nil
	case RefCollectBeans:
		names, err := c.collect(ref)
		if err != nil || names == nil {
			return nil, false, err
		}
		beans := make([]any, 0, len(names))
		for _, name := range names {
			bean, err := c.getBean(res, name)
			if err != nil {
				return nil, false, err
			}
			if bean != nil {
				beans = append(beans, bean)
			}
		}
		return beans, true, nil
	default:
		return nil, false, fmt.Errorf("di: unknown reference kind %d", ref.Kind)
	}
}

func (c *Container) resolveByName(res *resolution, ref *BeanReference) (any, bool, error) {
	if !c.registry.contains(ref.Name) {
		if !ref.Required {
			return nil, false, nil
		}
		return nil, false, &NoSuchDefinitionError{Name: ref.Name}
	}
	bean, err := c.getBean(res, ref.Name)
	return bean, err == nil, err
}

func (c *Container) resolveByType(res *resolution, ref *BeanReference) (any, bool, error) {
	if ref.Type == nil {
		return nil, false, fmt.Errorf("di: reference %s has no type", ref)
	}
	if ref.Type == beanFactoryType && len(c.candidates(ref.Type)) == 0 {
		return res.view, true, nil
	}
	name, err := c.uniqueNameForType(ref.Type)
	if err != nil {
		var missing *NoSuchDefinitionError
		if errors.As(err, &missing) && !ref.Required {
			return nil, false, nil
		}
		return nil, false, err
	}
	bean, err := c.getBean(res, name)
	return bean, err == nil, err
}

func (c *Container) resolveByValue(ref *BeanReference) (any, bool, error) {
	if c.env == nil {
		if !ref.Required {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("di: no environment configured to resolve %q", ref.Name)
	}
	v, err := c.env.Resolve(ref.Name, ref.Type)
	if err != nil {
		if errors.Is(err, ErrValueNotFound) && !ref.Required {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("value %q: %w", ref.Name, err)
	}
	return v, true, nil
}

// collect 收集型引用的候选名称，按优先级和注册顺序。
// 没有候选且非必需时返回 nil。
func (c *Container) collect(ref *BeanReference) ([]string, error) {
	if ref.Type == nil {
		return nil, fmt.Errorf("di: reference %s has no element type", ref)
	}
	names := slices.DeleteFunc(c.candidates(ref.Type), func(n string) bool {
		return slices.Contains(ref.Exclude, n)
	})
	if len(names) == 0 {
		if ref.Required {
			return nil, &NoSuchDefinitionError{Type: ref.Type}
		}
		return nil, nil
	}
	return c.registry.sortByPriority(names), nil
}

func (c *Container) candidates(t reflect.Type) []string {
	return c.registry.namesForType(t)
}

// uniqueNameForType 唯一候选直接返回；多个候选时取唯一的 primary。
func (c *Container) uniqueNameForType(t reflect.Type) (string, error) {
	names := c.candidates(t)
	switch len(names) {
	case 0:
		return "", &NoSuchDefinitionError{Type: t}
	case 1:
		return names[0], nil
	}

	var primary []string
	for _, name := range names {
		if def, err := c.registry.get(name); err == nil && def.Primary {
			primary = append(primary, name)
		}
	}
	if len(primary) == 1 {
		return primary[0], nil
	}
	return "", &AmbiguousDependencyError{Type: t, Candidates: names}
}

func (c *Container) getBeanOfType(res *resolution, t reflect.Type) (any, error) {
	name, err := c.uniqueNameForType(t)
	if err != nil {
		return nil, err
	}
	return c.getBean(res, name)
}

// getBeanWithArgs 基于定义副本创建新实例，不读写任何缓存
func (c *Container) getBeanWithArgs(res *resolution, name string, args []any) (any, error) {
	def, err := c.registry.get(name)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return c.getBean(res, name)
	}
	cp, err := def.withArgs(args)
	if err != nil {
		return nil, wrapCreation(name, err)
	}
	if err := c.resolveDependsOn(res, def); err != nil {
		return nil, err
	}
	return c.createBean(res, cp, false)
}

func checkBeanType(name string, bean any, t reflect.Type) (any, error) {
	if bean == nil || t == nil {
		return bean, nil
	}
	actual := reflect.TypeOf(bean)
	if !compatible(t, actual) {
		return nil, &BeanNotOfRequiredTypeError{Name: name, Required: t, Actual: actual}
	}
	v, err := convertValue(reflect.ValueOf(bean), t)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}
