package di

import (
	"fmt"
	"reflect"
	"slices"
)

// ReferenceKind 依赖引用的解析策略
type ReferenceKind int

const (
	RefByName ReferenceKind = iota
	RefByType
	RefByValue
	RefAutoNameFirst
	RefAutoTypeFirst
	// RefCollectNames 注入匹配类型的全部 Bean 名称（[]string）
	RefCollectNames
	// RefCollectBeans 注入匹配类型的全部 Bean 实例（[]T）
	RefCollectBeans
)

func (k ReferenceKind) String() string {
	switch k {
	case RefByName:
		return "by-name"
	case RefByType:
		return "by-type"
	case RefByValue:
		return "by-value"
	case RefAutoNameFirst:
		return "auto-name-first"
	case RefAutoTypeFirst:
		return "auto-type-first"
	case RefCollectNames:
		return "collect-names"
	case RefCollectBeans:
		return "collect-beans"
	default:
		return "unknown"
	}
}

// BeanReference 一条依赖边。
//
// Type 为空时使用注入点的类型（构造参数类型、字段类型或 setter 参数类型）。
type BeanReference struct {
	Kind     ReferenceKind
	Name     string
	Type     reflect.Type
	Required bool
	Lazy     bool
	Exclude  []string
}

// Ref 按名称引用
func Ref(name string) *BeanReference {
	return &BeanReference{Kind: RefByName, Name: name, Required: true}
}

// RefType 按类型引用
func RefType(t reflect.Type) *BeanReference {
	return &BeanReference{Kind: RefByType, Type: t, Required: true}
}

// RefOf 按类型 T 引用
func RefOf[T any]() *BeanReference {
	return RefType(TypeOf[T]())
}

// ValueRef 引用外部配置值，key 的语法由 Environment 解释
func ValueRef(key string) *BeanReference {
	return &BeanReference{Kind: RefByValue, Name: key, Required: true}
}

// AutoNameFirst 先按名称，名称不存在时按类型
func AutoNameFirst(name string) *BeanReference {
	return &BeanReference{Kind: RefAutoNameFirst, Name: name, Required: true}
}

// AutoTypeFirst 先按类型，没有候选时按名称
func AutoTypeFirst(name string) *BeanReference {
	return &BeanReference{Kind: RefAutoTypeFirst, Name: name, Required: true}
}

// CollectNames 收集与 t 兼容的 Bean 名称
func CollectNames(t reflect.Type, exclude ...string) *BeanReference {
	return &BeanReference{Kind: RefCollectNames, Type: t, Required: true, Exclude: exclude}
}

// CollectBeans 收集与 t 兼容的 Bean 实例，t 为空时取注入点切片的元素类型
func CollectBeans(t reflect.Type, exclude ...string) *BeanReference {
	return &BeanReference{Kind: RefCollectBeans, Type: t, Required: true, Exclude: exclude}
}

// Optional 返回未找到时注入零值的副本
func (r *BeanReference) Optional() *BeanReference {
	cp := r.clone()
	cp.Required = false
	return cp
}

// AsLazy 返回首次访问时才解析的副本
func (r *BeanReference) AsLazy() *BeanReference {
	cp := r.clone()
	cp.Lazy = true
	return cp
}

// Excluding 返回追加排除名称的副本，仅对收集型引用有效
func (r *BeanReference) Excluding(names ...string) *BeanReference {
	cp := r.clone()
	cp.Exclude = append(cp.Exclude, names...)
	return cp
}

// OfType 返回指定类型的副本
func (r *BeanReference) OfType(t reflect.Type) *BeanReference {
	cp := r.clone()
	cp.Type = t
	return cp
}

func (r *BeanReference) clone() *BeanReference {
	cp := *r
	cp.Exclude = slices.Clone(r.Exclude)
	return &cp
}

func (r *BeanReference) String() string {
	switch r.Kind {
	case RefByType, RefCollectNames, RefCollectBeans:
		return fmt.Sprintf("%s(%v)", r.Kind, r.Type)
	default:
		return fmt.Sprintf("%s(%s)", r.Kind, r.Name)
	}
}
