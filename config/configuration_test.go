package config

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

func TestValueStore(t *testing.T) {
	store := NewValueStore()
	store.Store(map[string]any{"key": "value"})
	assert.Equal(t, "value", store.Load()["key"])

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Load()
		}()
	}
	wg.Wait()
}

func TestPathCache(t *testing.T) {
	cache := &PathCache{}
	assert.Equal(t, []string{"a", "b", "c"}, cache.GetPathSegments("a:b.c"))
	assert.Equal(t, []string{"a", "b", "c"}, cache.GetPathSegments("a:b.c"))
}

type serverOptions struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func TestBuilderMergesSources(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "app.yaml")
	jsonPath := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server:\n  host: example.com\n  port: 80\nname: demo\n"), 0o600))
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"server":{"port":8080}}`), 0o600))
	t.Setenv("IOCTEST_SERVER_DEBUG", "true")

	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"name": "base", "mode": "dev"}).
		AddYamlFile(yamlPath).
		AddJsonFile(jsonPath).
		AddYamlFile(filepath.Join(dir, "missing.yaml"), true).
		AddEnvironmentVariables("IOCTEST_").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Get("name"))
	assert.Equal(t, "dev", cfg.Get("mode"))
	assert.Equal(t, "example.com", cfg.Get("server:host"))
	assert.Equal(t, "8080", cfg.Get("server.port"))
	assert.Equal(t, "fallback", cfg.GetWithDefault("server:missing", "fallback"))

	port, err := cfg.GetInt("server:port")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	debug, err := cfg.GetBool("server:debug")
	require.NoError(t, err)
	assert.True(t, debug)

	_, err = cfg.GetInt("server:missing")
	assert.Error(t, err)

	section := cfg.GetSection("server")
	assert.Equal(t, "example.com", section.Get("host"))
	assert.Empty(t, cfg.GetSection("nothing").GetAll())

	opts, err := Load[serverOptions](cfg, "server")
	require.NoError(t, err)
	assert.Equal(t, serverOptions{Host: "example.com", Port: 8080}, opts)

	_, err = Load[serverOptions](cfg, "nothing")
	assert.Error(t, err)
}

func TestRequiredFileMissing(t *testing.T) {
	_, err := NewConfigurationBuilder().AddJsonFile(filepath.Join(t.TempDir(), "none.json")).Build()
	assert.Error(t, err)
}

func TestGetAllReturnsCopy(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"server": map[string]any{"port": 1}}).
		Build()
	require.NoError(t, err)

	all := cfg.GetAll()
	all["server"].(map[string]any)["port"] = 2
	assert.Equal(t, "1", cfg.Get("server:port"))
}

// mutableSource 测试用的可修改配置源
type mutableSource struct {
	mu   sync.Mutex
	data map[string]any
}

func (s *mutableSource) Name() string { return "mutable" }

func (s *mutableSource) Load() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any)
	mergeMaps(out, s.data)
	return out, nil
}

func (s *mutableSource) set(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

func TestReload(t *testing.T) {
	src := &mutableSource{data: map[string]any{"server": map[string]any{"port": 1}}}
	cfg, err := NewConfigurationBuilder().Add(src).BuildReloadable()
	require.NoError(t, err)

	reloaded := 0
	cfg.OnReload(func() { reloaded++ })
	monitor := NewOptionMonitor(NewOptionsCache[serverOptions](cfg, "server"))
	assert.Equal(t, 1, monitor.Value().Port)

	src.set(map[string]any{"server": map[string]any{"port": 2}})
	require.NoError(t, cfg.Reload())
	assert.Equal(t, 1, reloaded)
	assert.Equal(t, "2", cfg.Get("server:port"))
	assert.Equal(t, 2, monitor.Value().Port)
}

type limits struct {
	Max   int      `yaml:"max"`
	Names []string `yaml:"names"`
}

func TestEnvironmentResolve(t *testing.T) {
	cfg, err := NewConfigurationBuilder().AddInMemory(map[string]any{
		"http": map[string]any{
			"port":    "8080",
			"timeout": "30s",
			"debug":   "yes",
			"ratio":   0.5,
		},
		"limits": map[string]any{"max": 3, "names": []any{"a", "b"}},
	}).Build()
	require.NoError(t, err)
	env := NewEnvironment(cfg)

	port, err := env.Resolve("http.port", reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	timeout, err := env.Resolve("http:timeout", reflect.TypeOf(time.Duration(0)))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)

	_, err = env.Resolve("http.debug", reflect.TypeOf(false))
	assert.Error(t, err)

	ratio, err := env.Resolve("http.ratio", reflect.TypeOf(0.0))
	require.NoError(t, err)
	assert.Equal(t, 0.5, ratio)

	l, err := env.Resolve("limits", reflect.TypeOf(limits{}))
	require.NoError(t, err)
	assert.Equal(t, limits{Max: 3, Names: []string{"a", "b"}}, l)

	lp, err := env.Resolve("limits", reflect.TypeOf(&limits{}))
	require.NoError(t, err)
	assert.Equal(t, 3, lp.(*limits).Max)

	_, err = env.Resolve("http.missing", reflect.TypeOf(""))
	assert.ErrorIs(t, err, di.ErrValueNotFound)
}

type httpSettings struct {
	Port    int           `value:"http.port"`
	Timeout time.Duration `value:"http.timeout"`
}

func TestEnvironmentInContainer(t *testing.T) {
	cfg, err := NewConfigurationBuilder().AddInMemory(map[string]any{
		"http": map[string]any{"port": "9090", "timeout": "2s"},
	}).Build()
	require.NoError(t, err)

	c := di.NewContainer(di.WithEnvironment(NewEnvironment(cfg)))
	c.MustRegister(di.NewDefinition("http", di.Struct[httpSettings]()))

	s, err := di.GetNamed[*httpSettings](c, "http")
	require.NoError(t, err)
	assert.Equal(t, 9090, s.Port)
	assert.Equal(t, 2*time.Second, s.Timeout)
}

func TestDefinitions(t *testing.T) {
	src := &mutableSource{data: map[string]any{"server": map[string]any{"host": "a", "port": 1}}}
	cfg, err := NewConfigurationBuilder().Add(src).BuildReloadable()
	require.NoError(t, err)

	c := di.NewContainer()
	c.MustRegister(di.NewDefinition("configuration", di.TypedInstance(di.TypeOf[Configuration](), cfg)))
	c.MustRegister(BindDefinition[serverOptions]("serverOptions", "server"))
	c.MustRegister(OptionDefinition[serverOptions]("serverOption", "server"))
	c.MustRegister(MonitorDefinition[serverOptions]("serverMonitor", "server"))
	cfg.OnReload(func() { _ = c.RefreshScope().Refresh() })

	bound, err := di.GetNamed[*serverOptions](c, "serverOptions")
	require.NoError(t, err)
	static, err := di.GetNamed[Option[serverOptions]](c, "serverOption")
	require.NoError(t, err)
	monitor, err := di.GetNamed[OptionMonitor[serverOptions]](c, "serverMonitor")
	require.NoError(t, err)
	assert.Equal(t, "a", bound.Host)

	src.set(map[string]any{"server": map[string]any{"host": "b", "port": 2}})
	require.NoError(t, cfg.Reload())

	rebound, err := di.GetNamed[*serverOptions](c, "serverOptions")
	require.NoError(t, err)
	assert.Equal(t, "b", rebound.Host)
	assert.Equal(t, "a", bound.Host)
	assert.Equal(t, 1, static.Value().Port)
	assert.Equal(t, 2, monitor.Value().Port)
}

func TestEtcdConfigKey(t *testing.T) {
	assert.Equal(t, "server:port", EtcdConfigKey("/app", "/app/server/port"))
	assert.Equal(t, "server:port", EtcdConfigKey("", "/server/port/"))
	assert.Empty(t, EtcdConfigKey("/app", "/other/key"))
	assert.Empty(t, EtcdConfigKey("/app", "/app"))
}

func TestDecodeEtcdValue(t *testing.T) {
	assert.Equal(t, float64(8080), decodeEtcdValue([]byte("8080")))
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeEtcdValue([]byte(`{"a":1}`)))
	assert.Equal(t, map[string]any{"a": 1}, decodeEtcdValue([]byte("a: 1")))
	assert.Equal(t, "plain text", decodeEtcdValue([]byte("plain text")))
}

func BenchmarkConfigGet(b *testing.B) {
	cfg, _ := NewConfigurationBuilder().AddInMemory(map[string]any{
		"server": map[string]any{
			"host": "localhost",
			"port": 8080,
		},
	}).BuildReloadable()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg.Get("server:host")
	}
}
