package database

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type User struct {
	gorm.Model
	Name string
}

type repository struct {
	Master *gorm.DB `di:"master"`
	Slave  *gorm.DB `di:"slave,optional"`
	Any    *gorm.DB `di:""`
}

func newBuilder() *core.ApplicationBuilder {
	return core.NewApplicationBuilder().
		ConfigureLogging(func(b *logging.LoggingBuilder) { b.AddProvider(&logging.Recorded{}) })
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions("db", sqlite.Open(":memory:")).Validate())
	assert.Error(t, DefaultOptions("", sqlite.Open(":memory:")).Validate())
	assert.Error(t, DefaultOptions("db", nil).Validate())

	_, err := Definitions(*DefaultOptions("db", nil))
	assert.ErrorContains(t, err, "invalid configuration for 'db'")
}

func TestOpenConfiguresPool(t *testing.T) {
	opts := DefaultOptions("master", sqlite.Open("file:dbtest_open?mode=memory&cache=shared"))
	opts.MaxOpenConns = 5
	opts.AutoMigrate = []any{&User{}}

	db, err := Open(*opts)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, 5, sqlDB.Stats().MaxOpenConnections)
	assert.True(t, db.Migrator().HasTable(&User{}))
}

func TestExtensionRegistersDatabases(t *testing.T) {
	app, err := newBuilder().
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
			b.AddInMemory(map[string]any{"database": map[string]any{
				"master": map[string]any{
					"driver":       "sqlite",
					"dsn":          "file:dbtest_ext?mode=memory&cache=shared",
					"maxOpenConns": 5,
					"maxLifetime":  "30m",
				},
			}})
		}).
		AddExtension(New(FromSection("database"), Migrate("master", &User{}))).
		ConfigureServices(func(c *di.Container) error {
			return c.Register(di.NewDefinition("repository", di.Struct[repository]()))
		}).
		Build()
	require.NoError(t, err)

	c := app.Container()
	repo, err := di.GetNamed[*repository](c, "repository")
	require.NoError(t, err)
	require.NotNil(t, repo.Master)
	assert.Nil(t, repo.Slave)
	assert.Same(t, repo.Master, repo.Any)

	require.NoError(t, repo.Master.Create(&User{Name: "alice"}).Error)
	var count int64
	require.NoError(t, repo.Master.Model(&User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	pool, err := di.GetNamed[*sql.DB](c, PoolName("master"))
	require.NoError(t, err)
	assert.Equal(t, 5, pool.Stats().MaxOpenConnections)

	require.NoError(t, c.Close())
	assert.Error(t, pool.Ping())
}

func TestExtensionPrimaryIsFirst(t *testing.T) {
	app, err := newBuilder().
		AddExtension(New(
			WithDatabase("primary", sqlite.Open("file:dbtest_primary?mode=memory&cache=shared")),
			WithDatabase("replica", sqlite.Open("file:dbtest_replica?mode=memory&cache=shared"),
				func(o *Options) { o.MaxOpenConns = 2 }),
		)).
		Build()
	require.NoError(t, err)
	defer app.Container().Close()

	c := app.Container()
	primary, err := di.GetNamed[*gorm.DB](c, "primary")
	require.NoError(t, err)
	byType, err := di.Get[*gorm.DB](c)
	require.NoError(t, err)
	assert.Same(t, primary, byType)

	replica, err := di.GetNamed[*sql.DB](c, PoolName("replica"))
	require.NoError(t, err)
	assert.Equal(t, 2, replica.Stats().MaxOpenConnections)
}

func TestExtensionErrors(t *testing.T) {
	mem := func(name string) gorm.Dialector {
		return sqlite.Open("file:dbtest_err_" + name + "?mode=memory&cache=shared")
	}
	tests := []struct {
		name   string
		opts   []ExtensionOption
		config map[string]any
	}{
		{"duplicate", []ExtensionOption{WithDatabase("a", mem("a")), WithDatabase("a", mem("a"))}, nil},
		{"invalid", []ExtensionOption{WithDatabase("a", nil)}, nil},
		{"unknown models", []ExtensionOption{WithDatabase("a", mem("b")), Migrate("b", &User{})}, nil},
		{"unknown driver", []ExtensionOption{FromSection("db")}, map[string]any{
			"db": map[string]any{"a": map[string]any{"driver": "oracle", "dsn": "x"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder()
			if tt.config != nil {
				b.ConfigureConfiguration(func(cb *config.ConfigurationBuilder) { cb.AddInMemory(tt.config) })
			}
			_, err := b.AddExtension(New(tt.opts...)).Build()
			assert.ErrorContains(t, err, "extension 'database'")
		})
	}
}

func TestRegisterDriver(t *testing.T) {
	RegisterDriver("memory", func(dsn string) gorm.Dialector {
		return sqlite.Open("file:" + dsn + "?mode=memory&cache=shared")
	})
	app, err := newBuilder().
		ConfigureConfiguration(func(cb *config.ConfigurationBuilder) {
			cb.AddInMemory(map[string]any{"db": map[string]any{
				"audit": map[string]any{"driver": "memory", "dsn": "dbtest_driver"},
			}})
		}).
		AddExtension(New(FromSection("db"))).
		Build()
	require.NoError(t, err)
	defer app.Container().Close()

	db, err := di.GetNamed[*gorm.DB](app.Container(), "audit")
	require.NoError(t, err)
	assert.NoError(t, db.Exec("SELECT 1").Error)
}
