package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gocrud/ioc/di"
)

// Option 静态配置选项（应用生命周期内不变）
type Option[T any] interface {
	Value() T
}

// OptionMonitor 监听配置选项，总是返回最近一次重载后的值
type OptionMonitor[T any] interface {
	Value() T
}

// OptionsCache 配置缓存，用于存储和自动更新配置
type OptionsCache[T any] struct {
	config  Configuration
	section string
	current T
	mu      sync.RWMutex
}

// NewOptionsCache 创建配置缓存，配置节不存在时使用零值
func NewOptionsCache[T any](config Configuration, section string) *OptionsCache[T] {
	cache := &OptionsCache[T]{
		config:  config,
		section: section,
	}
	_ = cache.reload()

	if rc, ok := config.(interface{ OnReload(func()) }); ok {
		rc.OnReload(func() {
			_ = cache.reload()
		})
	}
	return cache
}

// reload 重新绑定，失败时保留旧值
func (c *OptionsCache[T]) reload() error {
	var newValue T
	if err := c.config.Bind(c.section, &newValue); err != nil {
		return fmt.Errorf("failed to bind config section %s: %w", c.section, err)
	}

	c.mu.Lock()
	c.current = newValue
	c.mu.Unlock()
	return nil
}

// Get 获取当前配置值
func (c *OptionsCache[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Snapshot 创建当前配置的深拷贝
func (c *OptionsCache[T]) Snapshot() T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var snapshot T
	data, err := json.Marshal(c.current)
	if err != nil {
		return c.current
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return c.current
	}
	return snapshot
}

type option[T any] struct {
	value T
}

func (o *option[T]) Value() T {
	return o.value
}

// NewOption 创建静态配置选项
func NewOption[T any](value T) Option[T] {
	return &option[T]{value: value}
}

type optionMonitor[T any] struct {
	cache *OptionsCache[T]
}

func (o *optionMonitor[T]) Value() T {
	return o.cache.Get()
}

// NewOptionMonitor 创建监听配置选项
func NewOptionMonitor[T any](cache *OptionsCache[T]) OptionMonitor[T] {
	return &optionMonitor[T]{cache: cache}
}

// BindDefinition 把配置节绑定为 *T 的定义，默认放在 refresh 作用域：
// 配置重载后刷新作用域，下一次获取即得到新值。依赖容器中类型为 Configuration 的 Bean。
func BindDefinition[T any](name, section string, opts ...di.Option) *di.BeanDefinition {
	factory := di.Constructor(func(cfg Configuration) (*T, error) {
		var v T
		if err := cfg.Bind(section, &v); err != nil {
			return nil, fmt.Errorf("config: failed to bind section '%s': %w", section, err)
		}
		return &v, nil
	})
	return di.NewDefinition(name, factory, append([]di.Option{di.WithScope(di.ScopeRefresh)}, opts...)...)
}

// OptionDefinition 注册 Option[T] 单例，值在首次创建时绑定
func OptionDefinition[T any](name, section string, opts ...di.Option) *di.BeanDefinition {
	factory := di.Function(di.TypeOf[Option[T]](), func(cfg Configuration) (Option[T], error) {
		var v T
		if err := cfg.Bind(section, &v); err != nil {
			return nil, fmt.Errorf("config: failed to bind section '%s': %w", section, err)
		}
		return NewOption(v), nil
	})
	return di.NewDefinition(name, factory, opts...)
}

// MonitorDefinition 注册 OptionMonitor[T] 单例，随配置重载自动更新
func MonitorDefinition[T any](name, section string, opts ...di.Option) *di.BeanDefinition {
	factory := di.Function(di.TypeOf[OptionMonitor[T]](), func(cfg Configuration) OptionMonitor[T] {
		return NewOptionMonitor(NewOptionsCache[T](cfg, section))
	})
	return di.NewDefinition(name, factory, opts...)
}
