package di

import (
	"fmt"
	"io"
	"reflect"
)

// Initializer 属性注入和 Aware 回调完成后调用
type Initializer interface {
	AfterPropertiesSet() error
}

// Disposable 容器关闭或作用域失效时调用
type Disposable interface {
	Destroy() error
}

// BeanNameAware 接收自身的 Bean 名称
type BeanNameAware interface {
	SetBeanName(name string)
}

// BeanFactoryAware 接收可在创建过程中安全重入的 BeanFactory
type BeanFactoryAware interface {
	SetBeanFactory(factory BeanFactory)
}

// EnvironmentAware 接收外部配置
type EnvironmentAware interface {
	SetEnvironment(env Environment)
}

// Environment 外部值解析服务，key 的语法由实现决定。
// 找不到时返回 ErrValueNotFound。
type Environment interface {
	Resolve(key string, target reflect.Type) (any, error)
}

// BeanFactory 容器对外的查找能力
type BeanFactory interface {
	GetBean(name string) (any, error)
	GetBeanAs(name string, t reflect.Type) (any, error)
	GetBeanOfType(t reflect.Type) (any, error)
	GetBeanWithArgs(name string, args ...any) (any, error)
	ContainsBean(name string) bool
	IsSingleton(name string) (bool, error)
	GetType(name string) (reflect.Type, error)
}

// DestroyPolicy 销毁过程遇到代理临时 Bean 时的处理方式
type DestroyPolicy int

const (
	// DestroyContinue 跳过代理临时 Bean，继续销毁其余 Bean
	DestroyContinue DestroyPolicy = iota
	// DestroyStopAtProxy 遇到第一个代理临时 Bean 即停止
	DestroyStopAtProxy
)

// ParseDestroyPolicy 解析配置中的策略名称
func ParseDestroyPolicy(s string) (DestroyPolicy, error) {
	switch s {
	case "", "continue":
		return DestroyContinue, nil
	case "stop-at-proxy":
		return DestroyStopAtProxy, nil
	default:
		return DestroyContinue, fmt.Errorf("di: unknown destroy policy %q", s)
	}
}

// invokeAware 调用 Aware 回调
func (c *Container) invokeAware(res *resolution, name string, bean any) {
	if a, ok := bean.(BeanNameAware); ok {
		a.SetBeanName(name)
	}
	if a, ok := bean.(BeanFactoryAware); ok {
		a.SetBeanFactory(res.view)
	}
	if a, ok := bean.(EnvironmentAware); ok && c.env != nil {
		a.SetEnvironment(c.env)
	}
}

// invokeInit 先调用 Initializer，再按顺序调用定义中的初始化方法
func invokeInit(def *BeanDefinition, bean any) error {
	if i, ok := bean.(Initializer); ok {
		if err := i.AfterPropertiesSet(); err != nil {
			return fmt.Errorf("AfterPropertiesSet: %w", err)
		}
	}
	for _, method := range def.InitMethods {
		if err := callHook(bean, method); err != nil {
			return fmt.Errorf("init method %s: %w", method, err)
		}
	}
	return nil
}

// destroyBean 依次调用 Disposable、io.Closer 与销毁方法，第一个失败即停止。
func destroyBean(def *BeanDefinition, bean any) error {
	if bean == nil {
		return nil
	}
	if d, ok := bean.(Disposable); ok {
		if err := d.Destroy(); err != nil {
			return err
		}
	}
	if cl, ok := bean.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			return err
		}
	}
	if def == nil {
		return nil
	}
	for _, method := range def.DestroyMethods {
		if err := callHook(bean, method); err != nil {
			return fmt.Errorf("destroy method %s: %w", method, err)
		}
	}
	return nil
}
