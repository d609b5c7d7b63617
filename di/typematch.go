package di

import (
	"fmt"
	"reflect"
)

// compatible 判断类型为 have 的 Bean 能否注入到类型为 want 的位置。
//
// 除可赋值外，还接受 *T 注入到 T，以及元素类型递归兼容的切片、数组和 map。
func compatible(want, have reflect.Type) bool {
	if want == nil || have == nil {
		return false
	}
	if have.AssignableTo(want) {
		return true
	}
	if have.Kind() == reflect.Pointer && want.Kind() != reflect.Interface && have.Elem().AssignableTo(want) {
		return true
	}
	switch {
	case want.Kind() == reflect.Slice && have.Kind() == reflect.Slice:
		return compatible(want.Elem(), have.Elem())
	case want.Kind() == reflect.Array && have.Kind() == reflect.Array:
		return want.Len() == have.Len() && compatible(want.Elem(), have.Elem())
	case want.Kind() == reflect.Map && have.Kind() == reflect.Map:
		return want.Key() == have.Key() && compatible(want.Elem(), have.Elem())
	}
	return false
}

// convertValue 把 v 转换为 target 类型，无效值转换为零值。
func convertValue(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	if v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Zero(target), nil
	}
	t := v.Type()
	if t.AssignableTo(target) {
		return v, nil
	}
	if t.Kind() == reflect.Pointer && target.Kind() != reflect.Interface && t.Elem().AssignableTo(target) {
		if v.IsNil() {
			return reflect.Zero(target), nil
		}
		return v.Elem(), nil
	}

	switch {
	case t.Kind() == reflect.Slice && target.Kind() == reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(target), nil
		}
		out := reflect.MakeSlice(target, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			e, err := convertValue(v.Index(i), target.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case t.Kind() == reflect.Array && target.Kind() == reflect.Array && t.Len() == target.Len():
		out := reflect.New(target).Elem()
		for i := 0; i < v.Len(); i++ {
			e, err := convertValue(v.Index(i), target.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case t.Kind() == reflect.Map && target.Kind() == reflect.Map && t.Key() == target.Key():
		if v.IsNil() {
			return reflect.Zero(target), nil
		}
		out := reflect.MakeMapWithSize(target, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			e, err := convertValue(iter.Value(), target.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key %v: %w", iter.Key(), err)
			}
			out.SetMapIndex(iter.Key(), e)
		}
		return out, nil
	case isNumeric(t) && isNumeric(target), t.Kind() == reflect.String && target.Kind() == reflect.String,
		t.Kind() == reflect.Bool && target.Kind() == reflect.Bool:
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("di: cannot convert %s to %s", t, target)
}

func isNumeric(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
