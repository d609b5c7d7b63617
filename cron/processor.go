package cron

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Scheduled 由容器创建后自动加入调度的 Bean
type Scheduled interface {
	// CronSpec cron 表达式，为空时不调度
	CronSpec() string
	Run(ctx context.Context) error
}

// Processor 初始化后处理器，把 Scheduled Bean 以 Bean 名称注册为任务。
// 同名 Bean 重新创建（例如 refresh 作用域刷新）时替换原来的任务。
type Processor struct {
	scheduler *Scheduler
}

var _ di.BeanPostProcessor = (*Processor)(nil)

// NewProcessor 创建处理器
func NewProcessor(scheduler *Scheduler) *Processor {
	return &Processor{scheduler: scheduler}
}

func (p *Processor) PostProcessBeforeInitialization(_ string, _ di.InstanceFactory, bean any) (any, error) {
	return bean, nil
}

func (p *Processor) PostProcessAfterInitialization(name string, _ di.InstanceFactory, bean any) (any, error) {
	s, ok := bean.(Scheduled)
	if !ok {
		return bean, nil
	}
	spec := s.CronSpec()
	if spec == "" {
		return bean, nil
	}
	if err := p.scheduler.AddJob(spec, name, s.Run); err != nil {
		return nil, err
	}
	return bean, nil
}

var (
	contextType = di.TypeOf[context.Context]()
	errorType   = di.TypeOf[error]()
)

// wrapHandler 把任意函数包装为任务：context.Context 参数接收任务上下文，
// 其余参数在每次执行时按类型从容器获取。
func wrapHandler(factory di.BeanFactory, handler any) (func(ctx context.Context) error, error) {
	fn := reflect.ValueOf(handler)
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %T", handler)
	}
	fnType := fn.Type()
	if fnType.NumOut() > 1 || (fnType.NumOut() == 1 && fnType.Out(0) != errorType) {
		return nil, fmt.Errorf("handler %s must return nothing or an error", fnType)
	}

	return func(ctx context.Context) error {
		args := make([]reflect.Value, fnType.NumIn())
		for i := range args {
			paramType := fnType.In(i)
			if paramType == contextType {
				args[i] = reflect.ValueOf(ctx)
				continue
			}
			bean, err := factory.GetBeanOfType(paramType)
			if err != nil {
				return fmt.Errorf("resolve parameter %d (%s): %w", i, paramType, err)
			}
			if bean == nil {
				args[i] = reflect.Zero(paramType)
				continue
			}
			args[i] = reflect.ValueOf(bean)
		}

		out := fn.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}, nil
}

// jobDefinition 通过扩展注册的任务
type jobDefinition struct {
	spec    string
	name    string
	handler any
}

func (j jobDefinition) register(s *Scheduler, factory di.BeanFactory, logger logging.Logger) error {
	job, err := wrapHandler(factory, j.handler)
	if err != nil {
		return fmt.Errorf("cron job '%s': %w", j.name, err)
	}
	logger.Debug("Registering cron job", logging.Field{Key: "job", Value: j.name})
	return s.AddJob(j.spec, j.name, job)
}
