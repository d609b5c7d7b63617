package cron

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/ioc/logging"
)

// Options 调度器配置，可从配置节绑定
type Options struct {
	// Seconds 启用秒级精度，表达式多一个秒字段
	Seconds bool `json:"seconds"`
	// Location 时区，默认本地时区
	Location string `json:"location"`
	// Verbose 输出 cron 库内部的调度日志
	Verbose bool `json:"verbose"`
}

// Scheduler 定时任务调度器，同时是一个托管服务
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger

	mu   sync.RWMutex
	jobs map[string]cron.EntryID
	ctx  context.Context
}

// NewScheduler 创建调度器
func NewScheduler(opts Options, logger logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	adapter := newCronLogger(logger)

	cronOpts := []cron.Option{cron.WithChain(cron.Recover(adapter))}
	if opts.Verbose {
		cronOpts = append(cronOpts, cron.WithLogger(adapter))
	}
	if opts.Seconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}
	if opts.Location != "" {
		loc, err := time.LoadLocation(opts.Location)
		if err != nil {
			return nil, fmt.Errorf("cron: invalid location '%s': %w", opts.Location, err)
		}
		cronOpts = append(cronOpts, cron.WithLocation(loc))
	}

	return &Scheduler{
		cron:   cron.New(cronOpts...),
		logger: logger,
		jobs:   make(map[string]cron.EntryID),
		ctx:    context.Background(),
	}, nil
}

// AddJob 注册任务。同名任务会被替换。
func (s *Scheduler) AddJob(spec, name string, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, func() {
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("Cron job failed",
				logging.Field{Key: "job", Value: name},
				logging.Field{Key: "error", Value: err.Error()})
			return
		}
		s.logger.Debug("Cron job completed",
			logging.Field{Key: "job", Value: name},
			logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job '%s': %w", name, err)
	}

	if old, exists := s.jobs[name]; exists {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.logger.Info("Cron job registered",
		logging.Field{Key: "job", Value: name},
		logging.Field{Key: "spec", Value: spec})
	return nil
}

// Remove 移除任务
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.jobs[name]
	if !exists {
		return false
	}
	s.cron.Remove(entryID)
	delete(s.jobs, name)
	return true
}

// Jobs 已注册的任务名称，按字母排序
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Next 任务的下一次执行时间，调度器未启动时为零值
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.RLock()
	entryID, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return time.Time{}, false
	}
	return s.cron.Entry(entryID).Next, true
}

// RunNow 在当前 goroutine 中立即执行一次任务，经过与定时执行相同的包装链
func (s *Scheduler) RunNow(name string) bool {
	s.mu.RLock()
	entryID, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return false
	}
	entry := s.cron.Entry(entryID)
	if entry.WrappedJob == nil {
		return false
	}
	entry.WrappedJob.Run()
	return true
}

// Start 启动调度，ctx 会传递给之后执行的任务
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	count := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("Cron scheduler starting", logging.Field{Key: "jobs", Value: count})
	s.cron.Start()
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Cron scheduler stopping")
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 把 cron.Logger 适配到 logging.Logger
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Field{Key: "error", Value: err.Error()})
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
