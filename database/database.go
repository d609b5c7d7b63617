package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gocrud/ioc/di"
)

// Options 数据库配置选项
type Options struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	// AutoMigrate 打开后自动迁移的模型
	AutoMigrate []any
}

// DefaultOptions 创建默认配置
func DefaultOptions(name string, dialector gorm.Dialector) *Options {
	return &Options{
		Name:         name,
		Dialector:    dialector,
		GormConfig:   &gorm.Config{},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
	}
}

// Validate 验证配置
func (o *Options) Validate() error {
	if o.Name == "" {
		return errors.New("database name is required")
	}
	if o.Dialector == nil {
		return errors.New("database dialector is required")
	}
	return nil
}

// Open 打开数据库，配置连接池并执行自动迁移
func Open(opts Options) (*gorm.DB, error) {
	gormConfig := opts.GormConfig
	if gormConfig == nil {
		gormConfig = &gorm.Config{}
	}
	db, err := gorm.Open(opts.Dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", opts.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for '%s': %w", opts.Name, err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate failed for '%s': %w", opts.Name, err)
		}
	}
	return db, nil
}

// PoolName 连接池 Bean 的名称
func PoolName(name string) string {
	return name + "Pool"
}

// Definitions 返回两个定义：<name> 是 *gorm.DB，<name>Pool 是其底层的 *sql.DB。
// 连接池实现了 io.Closer，容器关闭时先于 *gorm.DB 销毁。
func Definitions(opts Options, diOpts ...di.Option) ([]*di.BeanDefinition, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for '%s': %w", opts.Name, err)
	}

	db := di.NewDefinition(opts.Name, di.Constructor(func() (*gorm.DB, error) {
		return Open(opts)
	}), diOpts...)

	pool := di.NewDefinition(PoolName(opts.Name), di.Constructor(func(db *gorm.DB) (*sql.DB, error) {
		return db.DB()
	}, di.Ref(opts.Name)), di.DependsOn(opts.Name))

	return []*di.BeanDefinition{db, pool}, nil
}
