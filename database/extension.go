package database

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// Driver 根据 DSN 创建 gorm 驱动
type Driver func(dsn string) gorm.Dialector

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{"sqlite": sqlite.Open}
)

// RegisterDriver 注册配置文件中可用的驱动名
func RegisterDriver(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = driver
}

func lookupDriver(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// ExtensionOption 配置数据库扩展
type ExtensionOption func(*Extension)

// WithDatabase 添加数据库，第一个数据库作为按类型注入时的首选
func WithDatabase(name string, dialector gorm.Dialector, configure ...func(*Options)) ExtensionOption {
	return func(e *Extension) {
		opts := DefaultOptions(name, dialector)
		for _, fn := range configure {
			fn(opts)
		}
		e.databases = append(e.databases, *opts)
	}
}

// FromSection 从配置节读取数据库：
//
//	database:
//	  master:
//	    driver: sqlite
//	    dsn: file:app.db
//	    maxOpenConns: 20
func FromSection(section string) ExtensionOption {
	return func(e *Extension) { e.section = section }
}

// Migrate 为指定数据库追加自动迁移的模型
func Migrate(name string, models ...any) ExtensionOption {
	return func(e *Extension) {
		if e.models == nil {
			e.models = make(map[string][]any)
		}
		e.models[name] = append(e.models[name], models...)
	}
}

type sectionDatabase struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	MaxIdleConns int           `yaml:"maxIdleConns"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
	MaxLifetime  time.Duration `yaml:"maxLifetime"`
}

func (s sectionDatabase) options(name string) (Options, error) {
	driver, ok := lookupDriver(s.Driver)
	if !ok {
		return Options{}, fmt.Errorf("database '%s': unknown driver '%s'", name, s.Driver)
	}
	opts := DefaultOptions(name, driver(s.DSN))
	if s.MaxIdleConns > 0 {
		opts.MaxIdleConns = s.MaxIdleConns
	}
	if s.MaxOpenConns > 0 {
		opts.MaxOpenConns = s.MaxOpenConns
	}
	if s.MaxLifetime > 0 {
		opts.MaxLifetime = s.MaxLifetime
	}
	return *opts, nil
}

// Extension 注册 gorm 数据源
type Extension struct {
	section   string
	databases []Options
	models    map[string][]any
}

var _ core.Extension = (*Extension)(nil)

// New 创建数据库扩展
func New(opts ...ExtensionOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) Name() string { return "database" }

func (e *Extension) Configure(ctx *core.BuildContext) error {
	databases, err := e.collect(ctx.Configuration())
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(databases))
	for i, opts := range databases {
		if _, dup := seen[opts.Name]; dup {
			return fmt.Errorf("database '%s' already configured", opts.Name)
		}
		seen[opts.Name] = struct{}{}
		opts.AutoMigrate = append(slices.Clone(opts.AutoMigrate), e.models[opts.Name]...)

		var diOpts []di.Option
		if i == 0 {
			diOpts = append(diOpts, di.Primary())
		}
		defs, err := Definitions(opts, diOpts...)
		if err != nil {
			return err
		}
		if err := ctx.Register(defs...); err != nil {
			return err
		}
	}

	for name := range e.models {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("models registered for unknown database '%s'", name)
		}
	}
	return nil
}

func (e *Extension) collect(cfg config.Configuration) ([]Options, error) {
	var databases []Options
	if e.section != "" {
		raw, err := config.NewEnvironment(cfg).Resolve(e.section, reflect.TypeOf(map[string]sectionDatabase{}))
		if err != nil && !errors.Is(err, di.ErrValueNotFound) {
			return nil, fmt.Errorf("database section '%s': %w", e.section, err)
		}
		if section, ok := raw.(map[string]sectionDatabase); ok {
			names := make([]string, 0, len(section))
			for name := range section {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				opts, err := section[name].options(name)
				if err != nil {
					return nil, err
				}
				databases = append(databases, opts)
			}
		}
	}
	return append(databases, e.databases...), nil
}
