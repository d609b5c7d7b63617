package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// worker 阻塞到 ctx 取消的托管服务
type worker struct {
	name    string
	log     *eventLog
	started chan<- string
}

func (w *worker) Start(ctx context.Context) error {
	w.started <- w.name
	<-ctx.Done()
	return ctx.Err()
}

func (w *worker) Stop(context.Context) error {
	w.log.add("stop:" + w.name)
	return nil
}

type resource struct {
	log *eventLog
}

func (r *resource) Destroy() error {
	r.log.add("destroy")
	return nil
}

func newTestBuilder(rec *logging.Recorded) *ApplicationBuilder {
	return NewApplicationBuilder().
		UseShutdownTimeout(time.Second).
		ConfigureLogging(func(b *logging.LoggingBuilder) { b.AddProvider(rec) })
}

func TestApplicationRunAndShutdownOrder(t *testing.T) {
	log := &eventLog{}
	started := make(chan string, 2)
	rec := &logging.Recorded{}

	app, err := newTestBuilder(rec).
		AddHostedService("second", func() *worker { return &worker{name: "second", log: log, started: started} }, di.WithPriority(2)).
		AddHostedService("first", func() *worker { return &worker{name: "first", log: log, started: started} }, di.WithPriority(1)).
		ConfigureServices(func(c *di.Container) error {
			return c.RegisterSingleton("resource", &resource{log: log})
		}).
		Configure(func(ctx *BuildContext) error {
			ctx.Lifecycle().OnStart(func(context.Context) error {
				log.add("hook:start")
				return nil
			})
			ctx.Lifecycle().OnStop(func(context.Context) error {
				log.add("hook:stop")
				return nil
			})
			return nil
		}).
		Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	<-started
	<-started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}

	assert.Equal(t, []string{"hook:start", "stop:second", "stop:first", "hook:stop", "destroy"}, log.all())
	assert.Contains(t, rec.Messages(logging.LogLevelInfo), "Application stopped")

	err = app.Run(context.Background())
	assert.Error(t, err)
}

func TestServiceFailureStopsApplication(t *testing.T) {
	app, err := newTestBuilder(&logging.Recorded{}).
		AddTask("failing", func(context.Context) error { return errors.New("boom") }).
		Build()
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "failing")
}

func TestStopRequest(t *testing.T) {
	b := newTestBuilder(&logging.Recorded{})
	var app *Application
	b.Configure(func(ctx *BuildContext) error {
		ctx.Lifecycle().OnStart(func(context.Context) error {
			go app.Stop()
			return nil
		})
		return nil
	})
	app, err := b.Build()
	require.NoError(t, err)

	assert.NoError(t, app.Run(context.Background()))
}

func TestStartHookFailure(t *testing.T) {
	app, err := newTestBuilder(&logging.Recorded{}).
		Configure(func(ctx *BuildContext) error {
			ctx.Lifecycle().OnStart(func(context.Context) error { return errors.New("not ready") })
			return nil
		}).
		Build()
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestBuildFailures(t *testing.T) {
	_, err := newTestBuilder(&logging.Recorded{}).
		ConfigureServices(func(*di.Container) error { return errors.New("bad registration") }).
		Build()
	assert.ErrorContains(t, err, "bad registration")

	_, err = newTestBuilder(&logging.Recorded{}).
		ConfigureServices(func(c *di.Container) error {
			return c.Provide("broken", func() (*resource, error) { return nil, errors.New("no resource") })
		}).
		Build()
	assert.ErrorContains(t, err, "no resource")

	_, err = newTestBuilder(&logging.Recorded{}).
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
			b.AddInMemory(map[string]any{"logging": map[string]any{"level": "loud"}})
		}).
		Build()
	assert.Error(t, err)
}

type greeting struct {
	Text string `value:"greeting.text"`
}

func TestInfrastructureBeans(t *testing.T) {
	app, err := newTestBuilder(&logging.Recorded{}).
		UseEnvironment("production").
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
			b.AddInMemory(map[string]any{"greeting": map[string]any{"text": "hi"}})
		}).
		ConfigureServices(func(c *di.Container) error {
			return c.Register(di.NewDefinition("greeting", di.Struct[greeting]()))
		}).
		Build()
	require.NoError(t, err)
	defer app.Container().Close()

	c := app.Container()
	cfg, err := di.Get[config.Configuration](c)
	require.NoError(t, err)
	assert.Same(t, app.Configuration(), cfg)

	_, err = di.Get[logging.LoggerFactory](c)
	require.NoError(t, err)
	lifecycle, err := di.Get[*LifecycleEvents](c)
	require.NoError(t, err)
	assert.Same(t, app.Lifecycle(), lifecycle)

	g, err := di.GetNamed[*greeting](c, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hi", g.Text)

	assert.True(t, app.Environment().IsProduction())
	assert.False(t, app.Environment().IsDevelopment())
}

type serverOptions struct {
	Port int `json:"port"`
}

func TestOptionsFollowReload(t *testing.T) {
	src := &config.InMemorySource{Data: map[string]any{"server": map[string]any{"port": 1}}}
	b := newTestBuilder(&logging.Recorded{}).
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) { b.Add(src) })
	app, err := AddOptions[serverOptions](b, "server").Build()
	require.NoError(t, err)
	defer app.Container().Close()

	c := app.Container()
	opts, err := di.GetNamed[*serverOptions](c, "serverOptions")
	require.NoError(t, err)
	monitor, err := di.GetNamed[config.OptionMonitor[serverOptions]](c, "serverMonitor")
	require.NoError(t, err)
	assert.Equal(t, 1, opts.Port)

	src.Data = map[string]any{"server": map[string]any{"port": 2}}
	require.NoError(t, app.Configuration().Reload())

	opts, err = di.GetNamed[*serverOptions](c, "serverOptions")
	require.NoError(t, err)
	assert.Equal(t, 2, opts.Port)
	assert.Equal(t, 2, monitor.Value().Port)
}

func TestContainerOptionsFromConfiguration(t *testing.T) {
	register := func(c *di.Container) error {
		if err := c.RegisterSingleton("dup", 1); err != nil {
			return err
		}
		return c.RegisterSingleton("dup", 2)
	}

	_, err := newTestBuilder(&logging.Recorded{}).ConfigureServices(register).Build()
	assert.Error(t, err)

	app, err := newTestBuilder(&logging.Recorded{}).
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
			b.AddInMemory(map[string]any{"container": map[string]any{"allowOverriding": true}})
		}).
		ConfigureServices(register).
		Build()
	require.NoError(t, err)
	defer app.Container().Close()

	v, err := di.GetNamed[int](app.Container(), "dup")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

type namedExtension struct {
	err error
}

func (e *namedExtension) Name() string { return "sample" }

func (e *namedExtension) Configure(ctx *BuildContext) error {
	if e.err != nil {
		return e.err
	}
	return ctx.Register(di.NewDefinition("fromExtension", di.Instance("ok")))
}

func TestExtensions(t *testing.T) {
	app, err := newTestBuilder(&logging.Recorded{}).AddExtension(&namedExtension{}).Build()
	require.NoError(t, err)
	defer app.Container().Close()
	assert.True(t, app.Container().ContainsBean("fromExtension"))

	_, err = newTestBuilder(&logging.Recorded{}).AddExtension(&namedExtension{err: errors.New("nope")}).Build()
	assert.ErrorContains(t, err, "extension 'sample'")
}

func TestAddHostedServiceValidation(t *testing.T) {
	c := di.NewContainer()
	assert.Error(t, AddHostedService(c, "x", &resource{}))
	assert.Error(t, AddHostedService(c, "x", func() *resource { return nil }))
	assert.NoError(t, AddHostedService(c, "x", func() *worker { return &worker{} }))
}

func TestLifecycleStopAggregatesErrors(t *testing.T) {
	l := NewLifecycle()
	var order []int
	l.OnStop(func(context.Context) error { order = append(order, 1); return errors.New("first") })
	l.OnStop(func(context.Context) error { order = append(order, 2); return nil })
	l.OnStop(func(context.Context) error { order = append(order, 3); return errors.New("third") })

	err := l.Stop(context.Background())
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestTimedHostedService(t *testing.T) {
	var runs atomic.Int32
	svc := NewTimedHostedService("tick", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Stop(context.Background()))
	assert.NoError(t, <-done)
}

func TestBackgroundServiceStopTimeout(t *testing.T) {
	svc := NewBackgroundService("idle", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Start 从未运行，Stop 只能等到 ctx 结束
	assert.ErrorIs(t, svc.Stop(ctx), context.Canceled)
}
