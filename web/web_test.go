package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type greeter struct {
	Greeting string
}

type helloController struct {
	greeter *greeter
}

func newHelloController(g *greeter) *helloController {
	return &helloController{greeter: g}
}

func (c *helloController) MountRoutes(router gin.IRouter) {
	router.GET("/hello", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, c.greeter.Greeting)
	})
}

type pingController struct {
	Greeter *greeter `di:""`
}

func (c *pingController) MountRoutes(router gin.IRouter) {
	router.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })
}

func newBuilder(recorded *logging.Recorded) *core.ApplicationBuilder {
	return core.NewApplicationBuilder().
		ConfigureLogging(func(b *logging.LoggingBuilder) { b.AddProvider(recorded) }).
		ConfigureServices(func(c *di.Container) error {
			return c.RegisterSingleton("greeter", &greeter{Greeting: "hello"})
		})
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestServerMountsControllers(t *testing.T) {
	app, err := newBuilder(&logging.Recorded{}).
		ConfigureServices(func(c *di.Container) error {
			return c.Register(di.NewDefinition("ping", di.Struct[pingController]()))
		}).
		AddExtension(New(WithController("hello", newHelloController), WithBasePath("/api"))).
		Build()
	require.NoError(t, err)
	defer app.Container().Close()

	srv, err := di.GetNamed[*Server](app.Container(), ServerBeanName)
	require.NoError(t, err)
	h, err := srv.Handler()
	require.NoError(t, err)

	w := serve(t, h, http.MethodGet, "/api/hello")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	w = serve(t, h, http.MethodGet, "/api/ping")
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/hello").Code)
}

func TestIntrospection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := di.NewContainer()
	require.NoError(t, c.RegisterSingleton("greeter", &greeter{}, di.Primary()))
	require.NoError(t, c.Provide("lazy", func() *pingController { return &pingController{} },
		di.LazyInit(), di.WithScope(di.ScopeRefresh), di.DependsOn("greeter")))
	require.NoError(t, c.Refresh())

	engine := gin.New()
	MountIntrospection(engine.Group("/admin"), c)

	w := serve(t, engine, http.MethodGet, "/admin/beans")
	require.Equal(t, http.StatusOK, w.Code)
	var beans []BeanInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &beans))
	require.Len(t, beans, 2)
	assert.Equal(t, "greeter", beans[0].Name)
	assert.True(t, beans[0].Primary)
	assert.True(t, beans[0].Created)
	assert.Equal(t, "*web.greeter", beans[0].Type)

	w = serve(t, engine, http.MethodGet, "/admin/beans/lazy")
	require.Equal(t, http.StatusOK, w.Code)
	var lazy BeanInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lazy))
	assert.Equal(t, di.ScopeRefresh, lazy.Scope)
	assert.True(t, lazy.Lazy)
	assert.Equal(t, []string{"greeter"}, lazy.DependsOn)

	assert.Equal(t, http.StatusNotFound, serve(t, engine, http.MethodGet, "/admin/beans/missing").Code)

	first, err := c.GetBean("lazy")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, serve(t, engine, http.MethodPost, "/admin/beans/lazy/refresh").Code)
	second, err := c.GetBean("lazy")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	assert.Equal(t, http.StatusNoContent, serve(t, engine, http.MethodPost, "/admin/beans/refresh").Code)
	assert.Empty(t, c.RefreshScope().Names())
	assert.Equal(t, http.StatusNotFound, serve(t, engine, http.MethodPost, "/admin/beans/missing/refresh").Code)
}

func TestServerRunsAsHostedService(t *testing.T) {
	recorded := &logging.Recorded{}
	app, err := newBuilder(recorded).
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
			b.AddInMemory(map[string]any{"web": map[string]any{
				"host":          "127.0.0.1",
				"port":          0,
				"introspection": "/actuator",
			}})
		}).
		AddExtension(New(FromSection("web"), WithPort(0), WithAccessLog(), WithController("hello", newHelloController))).
		Build()
	require.NoError(t, err)

	srv, err := di.GetNamed[*Server](app.Container(), ServerBeanName)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/hello")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hello", string(body))

	resp, err = http.Get("http://" + srv.Addr() + "/actuator/beans/hello")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
	assert.Contains(t, recorded.Messages(logging.LogLevelInfo), "Request")
	assert.Contains(t, recorded.Messages(logging.LogLevelInfo), "Web server started")
}

func TestExtensionRejectsNonController(t *testing.T) {
	_, err := newBuilder(&logging.Recorded{}).
		AddExtension(New(WithController("bad", func() *greeter { return &greeter{} }))).
		Build()
	assert.ErrorContains(t, err, "does not implement web.Controller")
}

func TestOptionsFromSection(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{"web": map[string]any{"basePath": "/v1"}}).
		Build()
	require.NoError(t, err)

	opts, err := New(FromSection("web")).options(cfg)
	require.NoError(t, err)
	assert.Equal(t, 8080, opts.Port)
	assert.Equal(t, gin.ReleaseMode, opts.Mode)
	assert.Equal(t, "/v1", opts.BasePath)

	opts, err = New(FromSection("missing"), WithPort(9000)).options(cfg)
	require.NoError(t, err)
	assert.Equal(t, 9000, opts.Port)
}
