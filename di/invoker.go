package di

import (
	"fmt"
	"reflect"
)

var errorType = TypeOf[error]()

// checkFunc 校验工厂函数签名：func(...) T 或 func(...) (T, error)。
func checkFunc(fn any) (reflect.Value, error) {
	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func || fnVal.IsNil() {
		return reflect.Value{}, fmt.Errorf("di: expected a function, got %T", fn)
	}
	fnType := fnVal.Type()
	switch fnType.NumOut() {
	case 1:
	case 2:
		if fnType.Out(1) != errorType {
			return reflect.Value{}, fmt.Errorf("di: second return value of %s must be error", fnType)
		}
	default:
		return reflect.Value{}, fmt.Errorf("di: %s must return (T) or (T, error)", fnType)
	}
	return fnVal, nil
}

// invoke 调用函数并拆出 (实例, error)。返回 nil 指针或 nil 接口视为“无值”。
func invoke(fnVal reflect.Value, args []reflect.Value) (any, error) {
	var results []reflect.Value
	if fnVal.Type().IsVariadic() {
		results = fnVal.CallSlice(args)
	} else {
		results = fnVal.Call(args)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("di: %s returned no values", fnVal.Type())
	}

	if len(results) > 1 {
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, last.Interface().(error)
		}
	}

	first := results[0]
	if isNilValue(first) {
		return nil, nil
	}
	return first.Interface(), nil
}

// resolveArgs 为 fnType 的每个参数解析实参。args 为 nil 时按参数类型自动装配。
func resolveArgs(r ArgumentResolver, fnType reflect.Type, args []any, explicit bool) ([]reflect.Value, error) {
	n := fnType.NumIn()
	if explicit && len(args) != n {
		return nil, fmt.Errorf("di: %s takes %d arguments, got %d", fnType, n, len(args))
	}

	values := make([]reflect.Value, n)
	for i := 0; i < n; i++ {
		target := fnType.In(i)
		var arg any
		if explicit {
			arg = args[i]
		} else {
			arg = RefType(target)
		}
		v, err := r.Resolve(arg, target)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, target, err)
		}
		values[i] = v
	}
	return values, nil
}

func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// callHook 按名称调用无参方法，方法可以返回 error。
func callHook(bean any, method string) error {
	m := reflect.ValueOf(bean).MethodByName(method)
	if !m.IsValid() {
		return fmt.Errorf("di: %T has no method %s", bean, method)
	}
	if m.Type().NumIn() != 0 {
		return fmt.Errorf("di: hook %s on %T must take no arguments", method, bean)
	}
	for _, out := range m.Call(nil) {
		if out.Type().Implements(errorType) && !out.IsNil() {
			return out.Interface().(error)
		}
	}
	return nil
}
