package core

import (
	"fmt"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Configurator 构建阶段的配置函数，在容器 Refresh 之前执行
type Configurator func(*BuildContext) error

// BuildContext 构建上下文，提供容器、配置、日志与生命周期
type BuildContext struct {
	container     *di.Container
	configuration *config.ReloadableConfiguration
	loggerFactory logging.LoggerFactory
	lifecycle     *LifecycleEvents
	environment   Environment
}

// Container 底层容器
func (c *BuildContext) Container() *di.Container {
	return c.container
}

// Configuration 应用配置
func (c *BuildContext) Configuration() *config.ReloadableConfiguration {
	return c.configuration
}

// Logger 创建指定类别的 Logger
func (c *BuildContext) Logger(category string) logging.Logger {
	return c.loggerFactory.CreateLogger(category)
}

// Lifecycle 应用生命周期钩子
func (c *BuildContext) Lifecycle() *LifecycleEvents {
	return c.lifecycle
}

// Environment 运行环境
func (c *BuildContext) Environment() Environment {
	return c.environment
}

// Register 注册定义，任一失败即返回
func (c *BuildContext) Register(defs ...*di.BeanDefinition) error {
	for _, def := range defs {
		if err := c.container.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Extension 可复用的应用扩展，例如 cron、redis、web 等模块
type Extension interface {
	// Name 用于日志和错误信息
	Name() string
	Configure(ctx *BuildContext) error
}

// AddOptions 把配置节注册为两个 Bean：
// <section>Options 是 refresh 作用域下的 *T，<section>Monitor 是随重载更新的 OptionMonitor[T]。
func AddOptions[T any](b *ApplicationBuilder, section string) *ApplicationBuilder {
	return b.Configure(func(ctx *BuildContext) error {
		if err := ctx.Register(
			config.BindDefinition[T](section+"Options", section),
			config.MonitorDefinition[T](section+"Monitor", section),
		); err != nil {
			return fmt.Errorf("options '%s': %w", section, err)
		}
		return nil
	})
}
