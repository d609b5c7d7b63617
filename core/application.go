package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// 容器中基础设施 Bean 的名称
const (
	ConfigurationBeanName = "configuration"
	EnvironmentBeanName   = "environment"
	LoggerFactoryBeanName = "loggerFactory"
	LoggerBeanName        = "logger"
	LifecycleBeanName     = "lifecycle"
)

// ApplicationBuilder 应用程序构建器
type ApplicationBuilder struct {
	environment      string
	configBuilder    *config.ConfigurationBuilder
	loggingBuilder   *logging.LoggingBuilder
	containerOptions []di.ContainerOption
	configurators    []Configurator
	shutdownTimeout  time.Duration
	mu               sync.Mutex
}

// NewApplicationBuilder 创建应用程序构建器
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{
		environment:     "development",
		configBuilder:   config.NewConfigurationBuilder(),
		loggingBuilder:  logging.NewLoggingBuilder(),
		shutdownTimeout: 30 * time.Second,
	}
}

// UseEnvironment 设置环境
func (b *ApplicationBuilder) UseEnvironment(env string) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.environment = env
	return b
}

// ConfigureConfiguration 配置配置系统
func (b *ApplicationBuilder) ConfigureConfiguration(configure func(*config.ConfigurationBuilder)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.configBuilder)
	}
	return b
}

// ConfigureLogging 配置日志系统
func (b *ApplicationBuilder) ConfigureLogging(configure func(*logging.LoggingBuilder)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.loggingBuilder)
	}
	return b
}

// ConfigureContainer 追加容器选项，优先于配置节 container 中的值
func (b *ApplicationBuilder) ConfigureContainer(opts ...di.ContainerOption) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.containerOptions = append(b.containerOptions, opts...)
	return b
}

// ConfigureServices 注册 Bean 定义
func (b *ApplicationBuilder) ConfigureServices(configure func(*di.Container) error) *ApplicationBuilder {
	return b.Configure(func(ctx *BuildContext) error {
		return configure(ctx.Container())
	})
}

// Configure 添加配置器
func (b *ApplicationBuilder) Configure(configurators ...Configurator) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configurators = append(b.configurators, configurators...)
	return b
}

// AddExtension 添加应用扩展
func (b *ApplicationBuilder) AddExtension(exts ...Extension) *ApplicationBuilder {
	for _, ext := range exts {
		b.Configure(func(ctx *BuildContext) error {
			if err := ext.Configure(ctx); err != nil {
				return fmt.Errorf("extension '%s': %w", ext.Name(), err)
			}
			return nil
		})
	}
	return b
}

// AddHostedService 以构造函数注册托管服务
func (b *ApplicationBuilder) AddHostedService(name string, ctor any, opts ...di.Option) *ApplicationBuilder {
	return b.ConfigureServices(func(c *di.Container) error {
		return AddHostedService(c, name, ctor, opts...)
	})
}

// AddTask 添加一个简单的后台任务
func (b *ApplicationBuilder) AddTask(name string, task func(ctx context.Context) error) *ApplicationBuilder {
	return b.ConfigureServices(func(c *di.Container) error {
		return c.RegisterSingleton(name, &functionalService{task: task})
	})
}

// UseShutdownTimeout 设置关闭超时
func (b *ApplicationBuilder) UseShutdownTimeout(timeout time.Duration) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownTimeout = timeout
	return b
}

// Build 构建配置、日志和容器，执行全部配置器后预热单例
func (b *ApplicationBuilder) Build() (*Application, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cfg, err := b.configBuilder.BuildReloadable()
	if err != nil {
		return nil, fmt.Errorf("failed to build configuration: %w", err)
	}

	if len(b.loggingBuilder.Providers()) == 0 {
		b.loggingBuilder.AddConsole()
	}
	loggerFactory := b.loggingBuilder.Build()
	if level := cfg.Get("logging:level"); level != "" {
		parsed, err := logging.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		loggerFactory.SetMinimumLevel(parsed)
	}
	logger := loggerFactory.CreateLogger("Application")
	logger.Info("Building application", logging.Field{Key: "environment", Value: b.environment})

	env := config.NewEnvironment(cfg)
	opts := []di.ContainerOption{
		di.WithEnvironment(env),
		di.WithLogger(loggerFactory.CreateLogger("Container")),
	}
	if _, ok := cfg.Lookup("container"); ok {
		var containerOpts di.Options
		if err := cfg.Bind("container", &containerOpts); err != nil {
			return nil, fmt.Errorf("failed to bind container options: %w", err)
		}
		opts = append(opts, di.WithOptions(containerOpts))
	}
	container := di.NewContainer(append(opts, b.containerOptions...)...)

	lifecycle := NewLifecycle()
	infra := di.WithRole(di.RoleInfrastructure)
	for _, def := range []*di.BeanDefinition{
		di.NewDefinition(ConfigurationBeanName, di.TypedInstance(di.TypeOf[config.Configuration](), cfg), infra),
		di.NewDefinition(EnvironmentBeanName, di.Instance(env), infra),
		di.NewDefinition(LoggerFactoryBeanName, di.TypedInstance(di.TypeOf[logging.LoggerFactory](), loggerFactory), infra),
		di.NewDefinition(LoggerBeanName, di.TypedInstance(di.TypeOf[logging.Logger](), logger), infra),
		di.NewDefinition(LifecycleBeanName, di.Instance(lifecycle), infra),
	} {
		if err := container.Register(def); err != nil {
			return nil, err
		}
	}

	cfg.OnReload(func() {
		if err := container.RefreshScope().Refresh(); err != nil {
			logger.Error("Failed to refresh beans after configuration reload",
				logging.Field{Key: "error", Value: err.Error()})
			return
		}
		logger.Info("Configuration reloaded")
	})

	ctx := &BuildContext{
		container:     container,
		configuration: cfg,
		loggerFactory: loggerFactory,
		lifecycle:     lifecycle,
		environment:   NewEnvironment(b.environment),
	}
	for _, configurator := range b.configurators {
		if err := configurator(ctx); err != nil {
			return nil, multierr.Append(err, container.Close())
		}
	}

	if err := container.Refresh(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to refresh container: %w", err), container.Close())
	}

	return &Application{
		container:       container,
		configuration:   cfg,
		loggerFactory:   loggerFactory,
		providers:       b.loggingBuilder.Providers(),
		logger:          logger,
		environment:     ctx.environment,
		lifecycle:       lifecycle,
		shutdownTimeout: b.shutdownTimeout,
		stopCh:          make(chan struct{}),
	}, nil
}

// Application 已构建的应用程序
type Application struct {
	container       *di.Container
	configuration   *config.ReloadableConfiguration
	loggerFactory   logging.LoggerFactory
	providers       []logging.LoggerProvider
	logger          logging.Logger
	environment     Environment
	lifecycle       *LifecycleEvents
	shutdownTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	started  bool
}

// Run 启动托管服务并阻塞，直到收到信号、ctx 取消、调用 Stop 或某个服务失败。
// 返回前逆序停止服务、执行停止钩子并关闭容器。只能调用一次。
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("core: application has already been run")
	}
	a.started = true
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := NewHostedServiceManager(a.loggerFactory.CreateLogger("HostedServices"))
	services, err := a.container.BeansOfType(hostedServiceType)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to resolve hosted services: %w", err), a.container.Close())
	}
	for _, s := range services {
		manager.Add(s.Name, s.Bean.(HostedService))
	}

	errCh := manager.StartAll(runCtx)

	var runErr error
	if err := a.lifecycle.Start(runCtx); err != nil {
		a.logger.Error("Start hook failed", logging.Field{Key: "error", Value: err.Error()})
		runErr = err
	} else {
		a.logger.Info("Application started",
			logging.Field{Key: "environment", Value: a.environment.Name()},
			logging.Field{Key: "services", Value: manager.Len()})
		runErr = a.wait(ctx, errCh)
	}

	cancel()
	return multierr.Append(runErr, a.shutdown(manager))
}

func (a *Application) wait(ctx context.Context, errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("Received shutdown signal", logging.Field{Key: "signal", Value: sig.String()})
	case <-a.stopCh:
		a.logger.Info("Application stop requested")
	case <-ctx.Done():
		a.logger.Info("Context cancelled")
	case err := <-errCh:
		a.logger.Error("Hosted service failed, stopping application",
			logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}

func (a *Application) shutdown(manager *HostedServiceManager) error {
	a.logger.Info("Shutting down application",
		logging.Field{Key: "timeout", Value: a.shutdownTimeout.String()})

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	errs := manager.StopAll(ctx)
	if err := manager.Wait(ctx); err != nil {
		a.logger.Warn("Hosted services did not finish before timeout")
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, a.lifecycle.Stop(ctx))
	errs = multierr.Append(errs, a.container.Close())

	a.logger.Info("Application stopped")
	for _, p := range a.providers {
		if closer, ok := p.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	return errs
}

// Stop 请求停止正在运行的应用程序
func (a *Application) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Container 应用的 Bean 容器
func (a *Application) Container() *di.Container {
	return a.container
}

// Configuration 应用配置
func (a *Application) Configuration() *config.ReloadableConfiguration {
	return a.configuration
}

// Logger 应用日志
func (a *Application) Logger() logging.Logger {
	return a.logger
}

// Lifecycle 生命周期钩子
func (a *Application) Lifecycle() *LifecycleEvents {
	return a.lifecycle
}

// Environment 运行环境
func (a *Application) Environment() Environment {
	return a.environment
}

// Environment 环境接口
type Environment interface {
	Name() string
	IsDevelopment() bool
	IsProduction() bool
	IsStaging() bool
}

type environment struct {
	name string
}

// NewEnvironment 创建环境
func NewEnvironment(name string) Environment {
	return &environment{name: name}
}

func (e *environment) Name() string        { return e.name }
func (e *environment) IsDevelopment() bool { return e.name == "development" }
func (e *environment) IsProduction() bool  { return e.name == "production" }
func (e *environment) IsStaging() bool     { return e.name == "staging" }
