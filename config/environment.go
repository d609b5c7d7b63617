package config

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gocrud/ioc/di"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Environment 把 Configuration 适配为容器的值解析服务
type Environment struct {
	cfg Configuration
}

var _ di.Environment = (*Environment)(nil)

// NewEnvironment 创建值解析服务
func NewEnvironment(cfg Configuration) *Environment {
	return &Environment{cfg: cfg}
}

// Configuration 底层配置
func (e *Environment) Configuration() Configuration {
	return e.cfg
}

// Resolve 按路径取值并转换为 target。找不到时返回 di.ErrValueNotFound。
//
// 字符串会按目标类型解析（"30s" 可以注入 time.Duration）；
// 结构体、切片和 map 经过一次 YAML 编解码绑定。
func (e *Environment) Resolve(key string, target reflect.Type) (any, error) {
	raw, ok := e.cfg.Lookup(key)
	if !ok || raw == nil {
		return nil, di.ErrValueNotFound
	}
	if target == nil || reflect.TypeOf(raw).AssignableTo(target) {
		return raw, nil
	}

	if s, ok := raw.(string); ok {
		if v, handled, err := parseString(s, target); handled {
			return v, err
		}
	}

	switch target.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return rebind(raw, target)
	case reflect.Pointer:
		if target.Elem().Kind() == reflect.Struct {
			v, err := rebind(raw, target.Elem())
			if err != nil {
				return nil, err
			}
			ptr := reflect.New(target.Elem())
			ptr.Elem().Set(reflect.ValueOf(v))
			return ptr.Interface(), nil
		}
	}
	return raw, nil
}

// parseString 标量目标的字符串解析。handled 为 false 表示交给调用方处理
func parseString(s string, target reflect.Type) (any, bool, error) {
	if target == durationType {
		d, err := time.ParseDuration(s)
		return d, true, err
	}

	var (
		v   any
		err error
	)
	switch target.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(target).Interface(), true, nil
	case reflect.Bool:
		v, err = strconv.ParseBool(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err = strconv.ParseInt(s, 10, target.Bits())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err = strconv.ParseUint(s, 10, target.Bits())
	case reflect.Float32, reflect.Float64:
		v, err = strconv.ParseFloat(s, target.Bits())
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("cannot parse %q as %s: %w", s, target, err)
	}
	return reflect.ValueOf(v).Convert(target).Interface(), true, nil
}

func rebind(raw any, target reflect.Type) (any, error) {
	out, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	ptr := reflect.New(target)
	if err := yaml.Unmarshal(out, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("cannot bind value to %s: %w", target, err)
	}
	return ptr.Elem().Interface(), nil
}
