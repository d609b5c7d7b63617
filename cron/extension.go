package cron

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

const (
	SchedulerBeanName = "cronScheduler"
	ProcessorBeanName = "cronProcessor"
)

// ExtensionOption 配置 cron 扩展
type ExtensionOption func(*Extension)

// WithSeconds 启用秒级精度
func WithSeconds() ExtensionOption {
	return func(e *Extension) { e.options.Seconds = true }
}

// WithLocation 设置时区
func WithLocation(location string) ExtensionOption {
	return func(e *Extension) { e.options.Location = location }
}

// EnableCronLogger 启用 cron 库的内部调度日志
func EnableCronLogger() ExtensionOption {
	return func(e *Extension) { e.options.Verbose = true }
}

// FromSection 从配置节读取 Options，配置中的值覆盖代码中的设置
func FromSection(section string) ExtensionOption {
	return func(e *Extension) { e.section = section }
}

// AddJob 添加任务，handler 的参数在执行时从容器解析
//
//	cron.AddJob("0 */5 * * * *", "sync-data", func(ctx context.Context, svc *DataService) error {
//	    return svc.Sync(ctx)
//	})
func AddJob(spec, name string, handler any) ExtensionOption {
	return func(e *Extension) {
		e.jobs = append(e.jobs, jobDefinition{spec: spec, name: name, handler: handler})
	}
}

// Extension 注册调度器与 Scheduled 处理器
type Extension struct {
	options Options
	section string
	jobs    []jobDefinition
}

var _ core.Extension = (*Extension)(nil)

// New 创建 cron 扩展
func New(opts ...ExtensionOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) Name() string { return "cron" }

func (e *Extension) Configure(ctx *core.BuildContext) error {
	opts := e.options
	if e.section != "" {
		if _, ok := ctx.Configuration().Lookup(e.section); ok {
			if err := ctx.Configuration().Bind(e.section, &opts); err != nil {
				return err
			}
		}
	}
	logger := ctx.Logger("Cron")
	jobs := e.jobs

	newScheduler := func(factory di.BeanFactory) (*Scheduler, error) {
		s, err := NewScheduler(opts, logger)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if err := job.register(s, factory, logger); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	infra := di.WithRole(di.RoleInfrastructure)
	return ctx.Register(
		di.NewDefinition(SchedulerBeanName, di.Constructor(newScheduler), infra),
		di.NewDefinition(ProcessorBeanName, di.Constructor(NewProcessor), infra),
	)
}
