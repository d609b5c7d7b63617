package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// HostedService 托管服务。
// Start 在独立的 goroutine 中调用，允许阻塞，ctx 取消时应当返回；
// Stop 在关闭阶段调用，必须遵守 ctx 的超时。
type HostedService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var hostedServiceType = di.TypeOf[HostedService]()

// AddHostedService 以构造函数注册托管服务，构造函数的返回类型必须实现 HostedService
func AddHostedService(c *di.Container, name string, ctor any, opts ...di.Option) error {
	fnType := reflect.TypeOf(ctor)
	if fnType == nil || fnType.Kind() != reflect.Func || fnType.NumOut() == 0 {
		return fmt.Errorf("core: hosted service '%s' needs a constructor, got %T", name, ctor)
	}
	if !fnType.Out(0).Implements(hostedServiceType) {
		return fmt.Errorf("core: %s does not implement core.HostedService", fnType.Out(0))
	}
	return c.Provide(name, ctor, opts...)
}

// namedService 容器中的托管服务及其 Bean 名称
type namedService struct {
	name    string
	service HostedService
}

// HostedServiceManager 托管服务管理器。按加入顺序启动，逆序停止。
type HostedServiceManager struct {
	services []namedService
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &HostedServiceManager{logger: logger}
}

// Add 添加托管服务
func (m *HostedServiceManager) Add(name string, service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, namedService{name: name, service: service})
}

// Len 已添加的服务数量
func (m *HostedServiceManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// StartAll 每个服务在独立的 goroutine 中启动。
// 返回的通道接收服务的失败，ctx 取消引起的返回不算失败。
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errCh := make(chan error, len(m.services))
	m.logger.Info("Starting hosted services", logging.Field{Key: "count", Value: len(m.services)})

	for _, s := range m.services {
		m.wg.Add(1)
		go func(s namedService) {
			defer m.wg.Done()

			m.logger.Debug("Starting hosted service", logging.Field{Key: "service", Value: s.name})
			if err := s.service.Start(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					m.logger.Debug("Hosted service stopped (context done)", logging.Field{Key: "service", Value: s.name})
					return
				}
				m.logger.Error("Hosted service failed",
					logging.Field{Key: "service", Value: s.name},
					logging.Field{Key: "error", Value: err.Error()})
				errCh <- fmt.Errorf("hosted service '%s': %w", s.name, err)
				return
			}
			m.logger.Debug("Hosted service completed", logging.Field{Key: "service", Value: s.name})
		}(s)
	}
	return errCh
}

// StopAll 逆序依次停止，返回聚合后的错误
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.logger.Info("Stopping hosted services", logging.Field{Key: "count", Value: len(m.services)})

	var errs error
	for i := len(m.services) - 1; i >= 0; i-- {
		s := m.services[i]
		if err := s.service.Stop(ctx); err != nil {
			m.logger.Error("Failed to stop hosted service",
				logging.Field{Key: "service", Value: s.name},
				logging.Field{Key: "error", Value: err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("stop '%s': %w", s.name, err))
			continue
		}
		m.logger.Debug("Hosted service stopped", logging.Field{Key: "service", Value: s.name})
	}
	return errs
}

// Wait 等待所有 Start 返回，ctx 先结束时返回 ctx.Err()
func (m *HostedServiceManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackgroundService 后台服务基类，Start 阻塞到 Stop 或 ctx 取消
type BackgroundService struct {
	name     string
	logger   logging.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

// NewBackgroundService 创建后台服务
func NewBackgroundService(name string, logger logging.Logger) *BackgroundService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BackgroundService{
		name:   name,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start 阻塞直到停止信号或上下文取消
func (s *BackgroundService) Start(ctx context.Context) error {
	defer s.Done()
	select {
	case <-s.stopCh:
		s.logger.Debug("Background service stopped by signal", logging.Field{Key: "service", Value: s.name})
	case <-ctx.Done():
		s.logger.Debug("Background service context cancelled", logging.Field{Key: "service", Value: s.name})
	}
	return nil
}

// Stop 发出停止信号并等待 Start 返回
func (s *BackgroundService) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Background service stop timeout", logging.Field{Key: "service", Value: s.name})
		return ctx.Err()
	}
}

// StopChan 停止通道，用于在 select 中监听
func (s *BackgroundService) StopChan() <-chan struct{} {
	return s.stopCh
}

// Done 标记服务完成
func (s *BackgroundService) Done() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// TimedHostedService 按固定间隔执行任务的托管服务
type TimedHostedService struct {
	*BackgroundService
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewTimedHostedService 创建定时托管服务
func NewTimedHostedService(name string, interval time.Duration, task func(ctx context.Context) error, logger logging.Logger) *TimedHostedService {
	return &TimedHostedService{
		BackgroundService: NewBackgroundService(name, logger),
		interval:          interval,
		task:              task,
	}
}

// Start 运行定时循环，任务失败只记录日志
func (s *TimedHostedService) Start(ctx context.Context) error {
	defer s.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				s.logger.Error("Timed task failed",
					logging.Field{Key: "service", Value: s.name},
					logging.Field{Key: "error", Value: err.Error()})
			}
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// functionalService 函数式托管服务
type functionalService struct {
	task func(ctx context.Context) error
}

func (f *functionalService) Start(ctx context.Context) error {
	return f.task(ctx)
}

func (f *functionalService) Stop(context.Context) error {
	return nil
}
