package di

import "slices"

// Option 修改 BeanDefinition 的函数选项
type Option func(*BeanDefinition)

// WithScope 设置作用域
func WithScope(scope string) Option {
	return func(d *BeanDefinition) {
		d.Scope = scope
	}
}

// Prototype 每次获取都创建新实例
func Prototype() Option {
	return WithScope(ScopePrototype)
}

// WithProxyMode 设置作用域代理提示
func WithProxyMode(mode ProxyMode) Option {
	return func(d *BeanDefinition) {
		d.ProxyMode = mode
	}
}

// DependsOn 声明必须先于本 Bean 完成创建的 Bean
func DependsOn(names ...string) Option {
	return func(d *BeanDefinition) {
		for _, name := range names {
			if !slices.Contains(d.DependsOn, name) {
				d.DependsOn = append(d.DependsOn, name)
			}
		}
	}
}

// WithProperty 字段注入，value 为 *BeanReference 或字面值
func WithProperty(field string, value any) Option {
	return func(d *BeanDefinition) {
		d.setProperty(PropertyAssignment{Target: field, Value: value})
	}
}

// WithSetter 通过单参数方法注入
func WithSetter(method string, value any) Option {
	return func(d *BeanDefinition) {
		d.setProperty(PropertyAssignment{Target: method, Setter: true, Value: value})
	}
}

// InitMethod 追加初始化方法名，方法签名为 func() 或 func() error
func InitMethod(names ...string) Option {
	return func(d *BeanDefinition) {
		d.InitMethods = append(d.InitMethods, names...)
	}
}

// DestroyMethod 追加销毁方法名
func DestroyMethod(names ...string) Option {
	return func(d *BeanDefinition) {
		d.DestroyMethods = append(d.DestroyMethods, names...)
	}
}

// Primary 类型歧义时优先选择
func Primary() Option {
	return func(d *BeanDefinition) {
		d.Primary = true
	}
}

// NotAutowireCandidate 不参与按类型注入
func NotAutowireCandidate() Option {
	return func(d *BeanDefinition) {
		d.AutowireCandidate = false
	}
}

// LazyInit 不参与 Refresh 预热
func LazyInit() Option {
	return func(d *BeanDefinition) {
		d.LazyInit = true
	}
}

// WithRole 设置角色
func WithRole(role Role) Option {
	return func(d *BeanDefinition) {
		d.Role = role
	}
}

// WithPriority 设置优先级，数值越小越先创建、越晚销毁
func WithPriority(priority int) Option {
	return func(d *BeanDefinition) {
		d.Priority = priority
	}
}
