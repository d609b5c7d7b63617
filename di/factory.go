package di

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// FactoryKind 实例工厂的变体
type FactoryKind int

const (
	FactoryConstructor FactoryKind = iota
	FactoryFunction
	FactoryMethod
	FactoryValue
)

func (k FactoryKind) String() string {
	switch k {
	case FactoryConstructor:
		return "constructor"
	case FactoryFunction:
		return "function"
	case FactoryMethod:
		return "method"
	case FactoryValue:
		return "value"
	default:
		return "unknown"
	}
}

// TypeLookup 按 Bean 名称查询产物类型
type TypeLookup interface {
	GetType(name string) (reflect.Type, error)
}

// ArgumentResolver 由容器在创建过程中提供，把引用或字面值解析为目标类型的值。
type ArgumentResolver interface {
	Resolve(arg any, target reflect.Type) (reflect.Value, error)
	Bean(name string) (any, error)
}

// InstanceFactory 产生原始实例的策略。
type InstanceFactory interface {
	Kind() FactoryKind
	// Type 产物类型，可能依赖其他 Bean 的类型（实例方法工厂）
	Type(lookup TypeLookup) (reflect.Type, error)
	Create(r ArgumentResolver) (any, error)
	// Dependencies 声明的依赖边，仅用于内省
	Dependencies() []*BeanReference
	// WithArgs 返回替换了构造参数的副本
	WithArgs(args []any) (InstanceFactory, error)
}

func referencesOf(args []any) []*BeanReference {
	var refs []*BeanReference
	for _, arg := range args {
		if ref, ok := arg.(*BeanReference); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func autowiredRefs(fnType reflect.Type) []*BeanReference {
	refs := make([]*BeanReference, fnType.NumIn())
	for i := range refs {
		refs[i] = RefType(fnType.In(i))
	}
	return refs
}

// ConstructorFactory 通过构造函数创建实例，产物类型为函数第一个返回值。
type ConstructorFactory struct {
	fn       reflect.Value
	args     []any
	explicit bool
}

// Constructor 构造函数工厂。不传 args 时按参数类型自动装配，
// 传入时每个参数可以是 *BeanReference 或字面值，数量必须与形参一致。
func Constructor(fn any, args ...any) *ConstructorFactory {
	fnVal, err := checkFunc(fn)
	if err != nil {
		panic(err)
	}
	f := &ConstructorFactory{fn: fnVal}
	if len(args) > 0 || fnVal.Type().NumIn() == 0 {
		if len(args) != fnVal.Type().NumIn() {
			panic(fmt.Sprintf("di: %s takes %d arguments, got %d", fnVal.Type(), fnVal.Type().NumIn(), len(args)))
		}
		f.args, f.explicit = args, true
	}
	return f
}

func (f *ConstructorFactory) Kind() FactoryKind { return FactoryConstructor }

func (f *ConstructorFactory) Type(TypeLookup) (reflect.Type, error) {
	return f.fn.Type().Out(0), nil
}

func (f *ConstructorFactory) Create(r ArgumentResolver) (any, error) {
	args, err := resolveArgs(r, f.fn.Type(), f.args, f.explicit)
	if err != nil {
		return nil, err
	}
	return invoke(f.fn, args)
}

func (f *ConstructorFactory) Dependencies() []*BeanReference {
	if !f.explicit {
		return autowiredRefs(f.fn.Type())
	}
	return referencesOf(f.args)
}

func (f *ConstructorFactory) WithArgs(args []any) (InstanceFactory, error) {
	if n := f.fn.Type().NumIn(); len(args) != n {
		return nil, fmt.Errorf("di: constructor %s takes %d arguments, got %d", f.fn.Type(), n, len(args))
	}
	return &ConstructorFactory{fn: f.fn, args: slices.Clone(args), explicit: true}, nil
}

// FunctionFactory 通过普通函数创建实例，产物类型由调用方声明，
// 常用于把具体实现暴露为接口。
type FunctionFactory struct {
	typ      reflect.Type
	fn       reflect.Value
	args     []any
	explicit bool
}

// Function 函数工厂，fn 的返回值必须可赋值给 t。
func Function(t reflect.Type, fn any, args ...any) *FunctionFactory {
	fnVal, err := checkFunc(fn)
	if err != nil {
		panic(err)
	}
	if out := fnVal.Type().Out(0); !out.AssignableTo(t) {
		panic(fmt.Sprintf("di: %s is not assignable to %s", out, t))
	}
	f := &FunctionFactory{typ: t, fn: fnVal}
	if len(args) > 0 || fnVal.Type().NumIn() == 0 {
		if len(args) != fnVal.Type().NumIn() {
			panic(fmt.Sprintf("di: %s takes %d arguments, got %d", fnVal.Type(), fnVal.Type().NumIn(), len(args)))
		}
		f.args, f.explicit = args, true
	}
	return f
}

// FunctionOf 以 T 为产物类型的函数工厂
func FunctionOf[T any](fn any, args ...any) *FunctionFactory {
	return Function(TypeOf[T](), fn, args...)
}

func (f *FunctionFactory) Kind() FactoryKind { return FactoryFunction }

func (f *FunctionFactory) Type(TypeLookup) (reflect.Type, error) { return f.typ, nil }

func (f *FunctionFactory) Create(r ArgumentResolver) (any, error) {
	args, err := resolveArgs(r, f.fn.Type(), f.args, f.explicit)
	if err != nil {
		return nil, err
	}
	return invoke(f.fn, args)
}

func (f *FunctionFactory) Dependencies() []*BeanReference {
	if !f.explicit {
		return autowiredRefs(f.fn.Type())
	}
	return referencesOf(f.args)
}

func (f *FunctionFactory) WithArgs(args []any) (InstanceFactory, error) {
	if n := f.fn.Type().NumIn(); len(args) != n {
		return nil, fmt.Errorf("di: function %s takes %d arguments, got %d", f.fn.Type(), n, len(args))
	}
	return &FunctionFactory{typ: f.typ, fn: f.fn, args: slices.Clone(args), explicit: true}, nil
}

// MethodFactory 调用另一个 Bean 的导出方法创建实例。
type MethodFactory struct {
	owner    string
	method   string
	args     []any
	explicit bool
}

// Method 实例方法工厂，owner 为持有方法的 Bean 名称。
func Method(owner, method string, args ...any) *MethodFactory {
	return &MethodFactory{owner: owner, method: method, args: args, explicit: len(args) > 0}
}

func (f *MethodFactory) Kind() FactoryKind { return FactoryMethod }

func (f *MethodFactory) Owner() string { return f.owner }

func (f *MethodFactory) Type(lookup TypeLookup) (reflect.Type, error) {
	ownerType, err := lookup.GetType(f.owner)
	if err != nil {
		return nil, err
	}
	if ownerType == nil {
		return nil, fmt.Errorf("di: type of bean %q is unknown", f.owner)
	}
	m, ok := ownerType.MethodByName(f.method)
	if !ok {
		return nil, fmt.Errorf("di: %s has no method %s", ownerType, f.method)
	}
	if n := m.Type.NumOut(); n == 0 || n > 2 {
		return nil, fmt.Errorf("di: method %s.%s must return (T) or (T, error)", ownerType, f.method)
	}
	return m.Type.Out(0), nil
}

func (f *MethodFactory) Create(r ArgumentResolver) (any, error) {
	owner, err := r.Bean(f.owner)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("di: factory bean %q resolved to nil", f.owner)
	}
	m := reflect.ValueOf(owner).MethodByName(f.method)
	if !m.IsValid() {
		return nil, fmt.Errorf("di: %T has no method %s", owner, f.method)
	}
	if _, err := checkFunc(m.Interface()); err != nil {
		return nil, err
	}
	args, err := resolveArgs(r, m.Type(), f.args, f.explicit || m.Type().NumIn() == 0)
	if err != nil {
		return nil, err
	}
	return invoke(m, args)
}

func (f *MethodFactory) Dependencies() []*BeanReference {
	return append([]*BeanReference{Ref(f.owner)}, referencesOf(f.args)...)
}

func (f *MethodFactory) WithArgs(args []any) (InstanceFactory, error) {
	return &MethodFactory{owner: f.owner, method: f.method, args: slices.Clone(args), explicit: true}, nil
}

// ValueFactory 返回预先计算好的值。
type ValueFactory struct {
	typ   reflect.Type
	value any
}

// Instance 值工厂，产物类型为 v 的动态类型
func Instance(v any) *ValueFactory {
	return &ValueFactory{typ: reflect.TypeOf(v), value: v}
}

// TypedInstance 显式声明产物类型，v 可以为 nil
func TypedInstance(t reflect.Type, v any) *ValueFactory {
	return &ValueFactory{typ: t, value: v}
}

func (f *ValueFactory) Kind() FactoryKind { return FactoryValue }

func (f *ValueFactory) Type(TypeLookup) (reflect.Type, error) { return f.typ, nil }

func (f *ValueFactory) Create(ArgumentResolver) (any, error) { return f.value, nil }

func (f *ValueFactory) Dependencies() []*BeanReference { return nil }

func (f *ValueFactory) WithArgs(args []any) (InstanceFactory, error) {
	if len(args) == 0 {
		return f, nil
	}
	return nil, fmt.Errorf("di: value factory does not accept arguments")
}

// StructFactory 分配结构体零值并返回指针，依赖通过属性注入完成。
type StructFactory struct {
	typ reflect.Type
}

// Struct 结构体工厂。带 `di` 标签的导出字段自动成为属性注入：
//
//	Repo  UserRepo        `di:""`             // 按类型
//	Cache Cache           `di:"cache"`        // 按名称
//	Mail  Mailer          `di:",optional"`    // 找不到时保持零值
//	Jobs  []Job           `di:",collect"`     // 收集全部实例
//	Audit *di.Lazy[Audit] `di:",lazy"`        // 延迟解析
//	Port  int             `value:"http.port"` // 配置值
func Struct[T any]() *StructFactory {
	t := TypeOf[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("di: Struct requires a struct type, got %s", t))
	}
	return &StructFactory{typ: t}
}

func (f *StructFactory) Kind() FactoryKind { return FactoryConstructor }

func (f *StructFactory) Type(TypeLookup) (reflect.Type, error) {
	return reflect.PointerTo(f.typ), nil
}

func (f *StructFactory) Create(ArgumentResolver) (any, error) {
	return reflect.New(f.typ).Interface(), nil
}

func (f *StructFactory) Dependencies() []*BeanReference {
	var refs []*BeanReference
	for _, p := range f.tagProperties() {
		if ref, ok := p.Value.(*BeanReference); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (f *StructFactory) WithArgs(args []any) (InstanceFactory, error) {
	if len(args) == 0 {
		return f, nil
	}
	return nil, fmt.Errorf("di: struct factory for %s does not accept arguments", f.typ)
}

// tagProperties 从字段标签推导属性注入
func (f *StructFactory) tagProperties() []PropertyAssignment {
	var props []PropertyAssignment
	for i := 0; i < f.typ.NumField(); i++ {
		field := f.typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if key, ok := field.Tag.Lookup("value"); ok {
			props = append(props, PropertyAssignment{Target: field.Name, Value: ValueRef(key)})
			continue
		}
		tag, ok := field.Tag.Lookup("di")
		if !ok {
			continue
		}
		parts := strings.Split(tag, ",")
		var ref *BeanReference
		if name := strings.TrimSpace(parts[0]); name != "" {
			ref = Ref(name)
		} else {
			ref = &BeanReference{Kind: RefByType, Required: true}
		}
		for _, opt := range parts[1:] {
			switch strings.TrimSpace(opt) {
			case "optional":
				ref.Required = false
			case "lazy":
				ref.Lazy = true
			case "collect":
				ref.Kind = RefCollectBeans
			}
		}
		props = append(props, PropertyAssignment{Target: field.Name, Value: ref})
	}
	return props
}
