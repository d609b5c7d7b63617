package web

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// ServerBeanName Web 服务在容器中的名称
const ServerBeanName = "webServer"

// ExtensionOption 配置 Web 扩展
type ExtensionOption func(*Extension)

// WithPort 设置端口，0 表示随机端口
func WithPort(port int) ExtensionOption {
	return func(e *Extension) { e.configure = append(e.configure, func(o *Options) { o.Port = port }) }
}

// WithMode 设置 gin 运行模式
func WithMode(mode string) ExtensionOption {
	return func(e *Extension) { e.configure = append(e.configure, func(o *Options) { o.Mode = mode }) }
}

// WithBasePath 控制器路由的公共前缀
func WithBasePath(path string) ExtensionOption {
	return func(e *Extension) { e.configure = append(e.configure, func(o *Options) { o.BasePath = path }) }
}

// WithIntrospection 在 path 下暴露容器查询接口
func WithIntrospection(path string) ExtensionOption {
	return func(e *Extension) { e.configure = append(e.configure, func(o *Options) { o.Introspection = path }) }
}

// WithAccessLog 记录每个请求
func WithAccessLog() ExtensionOption {
	return func(e *Extension) { e.configure = append(e.configure, func(o *Options) { o.AccessLog = true }) }
}

// FromSection 先读取配置节，再应用其余选项
//
//	web:
//	  port: 8080
//	  basePath: /api
func FromSection(section string) ExtensionOption {
	return func(e *Extension) { e.section = section }
}

// WithController 以构造函数注册控制器，构造函数的参数按类型注入
func WithController(name string, ctor any, opts ...di.Option) ExtensionOption {
	return func(e *Extension) {
		e.controllers = append(e.controllers, di.NewDefinition(name, di.Constructor(ctor), opts...))
	}
}

// Extension 注册 Web 服务，容器中所有 Controller 都会被挂载
type Extension struct {
	section     string
	configure   []func(*Options)
	controllers []*di.BeanDefinition
}

var _ core.Extension = (*Extension)(nil)

// New 创建 Web 扩展
func New(opts ...ExtensionOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) Name() string { return "web" }

func (e *Extension) Configure(ctx *core.BuildContext) error {
	opts, err := e.options(ctx.Configuration())
	if err != nil {
		return err
	}

	for _, def := range e.controllers {
		t, err := def.Factory.Type(ctx.Container())
		if err != nil {
			return err
		}
		if t == nil || !t.Implements(controllerType) {
			return fmt.Errorf("controller '%s': %v does not implement web.Controller", def.Name, t)
		}
	}
	if err := ctx.Register(e.controllers...); err != nil {
		return err
	}

	container := ctx.Container()
	logger := ctx.Logger("Web")
	return ctx.Register(di.NewDefinition(ServerBeanName, di.Constructor(func() *Server {
		return NewServer(opts, container, logger)
	}), di.WithRole(di.RoleInfrastructure)))
}

func (e *Extension) options(cfg config.Configuration) (Options, error) {
	opts := DefaultOptions()
	if e.section != "" {
		raw, err := config.NewEnvironment(cfg).Resolve(e.section, reflect.TypeOf(Options{}))
		switch {
		case errors.Is(err, di.ErrValueNotFound):
		case err != nil:
			return Options{}, fmt.Errorf("web section '%s': %w", e.section, err)
		default:
			section := raw.(Options)
			if section.Mode == "" {
				section.Mode = opts.Mode
			}
			if section.Port == 0 {
				section.Port = opts.Port
			}
			opts = &section
		}
	}
	for _, fn := range e.configure {
		fn(opts)
	}
	return *opts, nil
}
