package di

import (
	"fmt"
	"reflect"
	"sync"
)

// Deferred 延迟解析的依赖句柄，首次 Get 时才真正解析。
type Deferred interface {
	Get() (any, error)
}

type deferredFunc struct {
	mu       sync.Mutex
	resolve  func() (any, error)
	value    any
	resolved bool
}

func (d *deferredFunc) Get() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved {
		return d.value, nil
	}
	v, err := d.resolve()
	if err != nil {
		return nil, err
	}
	d.value, d.resolved = v, true
	return v, nil
}

// Lazy 类型化的延迟依赖，作为字段或构造参数声明为 *di.Lazy[T]。
type Lazy[T any] struct {
	d Deferred
}

// Get 解析并返回依赖
func (l *Lazy[T]) Get() (T, error) {
	var zero T
	if l == nil || l.d == nil {
		return zero, fmt.Errorf("di: lazy %s is not bound", TypeOf[T]())
	}
	v, err := l.d.Get()
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("di: lazy value is %T, expected %s", v, TypeOf[T]())
	}
	return t, nil
}

// MustGet 解析失败时 panic
func (l *Lazy[T]) MustGet() T {
	t, err := l.Get()
	if err != nil {
		panic(err)
	}
	return t
}

func (l *Lazy[T]) bind(d Deferred)         { l.d = d }
func (l *Lazy[T]) elemType() reflect.Type { return TypeOf[T]() }

type lazyBinder interface {
	bind(Deferred)
	elemType() reflect.Type
}

var deferredType = TypeOf[Deferred]()

// lazyTarget 判断注入点能否接收延迟句柄，返回实际要解析的类型。
func lazyTarget(target reflect.Type) (reflect.Type, bool) {
	switch {
	case target == deferredType || target.Kind() == reflect.Interface && target.NumMethod() == 0:
		return nil, true
	case target.Kind() == reflect.Pointer:
		if b, ok := reflect.New(target.Elem()).Interface().(lazyBinder); ok {
			return b.elemType(), true
		}
	}
	return nil, false
}

// wrapDeferred 把 Deferred 适配为注入点类型的值。
func wrapDeferred(target reflect.Type, d Deferred) reflect.Value {
	if target.Kind() == reflect.Pointer {
		ptr := reflect.New(target.Elem())
		ptr.Interface().(lazyBinder).bind(d)
		return ptr
	}
	return reflect.ValueOf(d)
}
