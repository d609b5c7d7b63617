package di

import (
	"fmt"
	"reflect"
)

// Get 按类型 T 获取唯一 Bean
func Get[T any](f BeanFactory) (T, error) {
	bean, err := f.GetBeanOfType(TypeOf[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](bean)
}

// GetNamed 按名称获取并转换为 T
func GetNamed[T any](f BeanFactory, name string) (T, error) {
	bean, err := f.GetBean(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](bean)
}

// MustGet 获取失败时 panic
func MustGet[T any](f BeanFactory) T {
	t, err := Get[T](f)
	if err != nil {
		panic(err)
	}
	return t
}

// BeansOf 获取全部与 T 兼容的 Bean，按优先级排序
func BeansOf[T any](c *Container) ([]T, error) {
	named, err := c.BeansOfType(TypeOf[T]())
	if err != nil {
		return nil, err
	}
	beans := make([]T, 0, len(named))
	for _, nb := range named {
		t, err := as[T](nb.Bean)
		if err != nil {
			return nil, err
		}
		beans = append(beans, t)
	}
	return beans, nil
}

func as[T any](bean any) (T, error) {
	var zero T
	if bean == nil {
		return zero, nil
	}
	if t, ok := bean.(T); ok {
		return t, nil
	}
	v, err := convertValue(reflect.ValueOf(bean), TypeOf[T]())
	if err != nil {
		return zero, fmt.Errorf("di: resolved value is %T, expected %s", bean, TypeOf[T]())
	}
	return v.Interface().(T), nil
}
