package di

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// 内置作用域名称。自定义作用域通过 Container.RegisterScope 注册任意名称。
const (
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
	ScopeThread    = "thread"
	ScopeRefresh   = "refresh"
)

// ProxyMode 作用域代理提示，容器本身不生成代理，仅供作用域策略和处理器读取。
type ProxyMode int

const (
	ProxyModeDefault ProxyMode = iota
	ProxyModeNo
	ProxyModeInterfaces
	ProxyModeTargetType
)

// Role 定义的角色，影响可见性与销毁顺序，不影响创建过程。
type Role int

const (
	RoleOrdinary Role = iota
	RoleInfrastructure
	RoleConfiguration
	RoleConfigurationMethod
	// RoleProxyTemporary 作用域代理背后的临时目标，不参与按类型查找。
	RoleProxyTemporary
)

func (r Role) String() string {
	switch r {
	case RoleOrdinary:
		return "ordinary"
	case RoleInfrastructure:
		return "infrastructure"
	case RoleConfiguration:
		return "configuration"
	case RoleConfigurationMethod:
		return "configuration-method"
	case RoleProxyTemporary:
		return "proxy-temporary"
	default:
		return "unknown"
	}
}

// ParseRole 按 String 的输出解析角色
func ParseRole(s string) (Role, error) {
	for r := RoleOrdinary; r <= RoleProxyTemporary; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	if s == "" {
		return RoleOrdinary, nil
	}
	return RoleOrdinary, fmt.Errorf("di: unknown role %q", s)
}

// DefaultPriority 未指定优先级的定义排在最后。
const DefaultPriority = math.MaxInt32

// PropertyAssignment 实例化之后执行的一次属性注入。
// Value 可以是 *BeanReference，也可以是字面值。
type PropertyAssignment struct {
	// Target 为导出字段名，Setter 为 true 时为方法名
	Target string
	Setter bool
	Value  any
}

// BeanDefinition 描述如何创建、装配并管理一个命名组件。
//
// 定义在注册后按约定视为只读；需要不同构造参数时使用 Copy。
type BeanDefinition struct {
	Name              string
	Factory           InstanceFactory
	Scope             string
	ProxyMode         ProxyMode
	DependsOn         []string
	Properties        []PropertyAssignment
	InitMethods       []string
	DestroyMethods    []string
	Primary           bool
	AutowireCandidate bool
	LazyInit          bool
	Role              Role
	Priority          int
}

// NewDefinition 创建定义并应用选项。默认单例、可自动装配、最低优先级。
func NewDefinition(name string, factory InstanceFactory, opts ...Option) *BeanDefinition {
	def := &BeanDefinition{
		Name:              name,
		Factory:           factory,
		Scope:             ScopeSingleton,
		AutowireCandidate: true,
		Priority:          DefaultPriority,
	}
	if sf, ok := factory.(*StructFactory); ok {
		def.Properties = append(def.Properties, sf.tagProperties()...)
	}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// IsSingleton 是否单例作用域（空作用域视为单例）。
func (d *BeanDefinition) IsSingleton() bool {
	return d.Scope == "" || d.Scope == ScopeSingleton
}

// IsPrototype 是否原型作用域。
func (d *BeanDefinition) IsPrototype() bool {
	return d.Scope == ScopePrototype
}

// setProperty 同一目标只保留最后一次赋值，显式选项覆盖字段标签
func (d *BeanDefinition) setProperty(p PropertyAssignment) {
	for i, existing := range d.Properties {
		if existing.Target == p.Target && existing.Setter == p.Setter {
			d.Properties[i] = p
			return
		}
	}
	d.Properties = append(d.Properties, p)
}

func (d *BeanDefinition) scopeName() string {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}

// Copy 返回深拷贝，切片不与原定义共享。
func (d *BeanDefinition) Copy() *BeanDefinition {
	cp := *d
	cp.DependsOn = slices.Clone(d.DependsOn)
	cp.Properties = slices.Clone(d.Properties)
	cp.InitMethods = slices.Clone(d.InitMethods)
	cp.DestroyMethods = slices.Clone(d.DestroyMethods)
	return &cp
}

// withArgs 复制定义并替换构造参数。
func (d *BeanDefinition) withArgs(args []any) (*BeanDefinition, error) {
	factory, err := d.Factory.WithArgs(args)
	if err != nil {
		return nil, err
	}
	cp := d.Copy()
	cp.Factory = factory
	return cp, nil
}

// beanType 产物类型，无法确定时返回 nil。
func (d *BeanDefinition) beanType(lookup TypeLookup) reflect.Type {
	if d.Factory == nil {
		return nil
	}
	t, err := d.Factory.Type(lookup)
	if err != nil {
		return nil
	}
	return t
}
