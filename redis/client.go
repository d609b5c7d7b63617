package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gocrud/ioc/di"
)

// ClientOptions Redis 客户端配置选项
type ClientOptions struct {
	Name         string        `yaml:"name"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PoolSize     int           `yaml:"poolSize"`
	MinIdleConns int           `yaml:"minIdleConns"`
	MaxRetries   int           `yaml:"maxRetries"`
	// SkipPing 创建时不检查连通性
	SkipPing bool `yaml:"skipPing"`
}

// DefaultOptions 创建默认配置
func DefaultOptions(name string) *ClientOptions {
	return &ClientOptions{
		Name:         name,
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	}
}

// withDefaults 补全配置文件中省略的字段
func (o ClientOptions) withDefaults() ClientOptions {
	d := DefaultOptions(o.Name)
	if o.Addr == "" {
		o.Addr = d.Addr
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PoolSize == 0 {
		o.PoolSize = d.PoolSize
	}
	return o
}

// Validate 验证配置
func (o *ClientOptions) Validate() error {
	if o.Name == "" {
		return errors.New("redis client name is required")
	}
	if o.Addr == "" {
		return errors.New("redis address is required")
	}
	if o.DB < 0 {
		return errors.New("redis database number must be non-negative")
	}
	if o.DialTimeout <= 0 {
		return errors.New("redis dial timeout must be positive")
	}
	return nil
}

// NewClient 按配置创建客户端，未设置 SkipPing 时先检查连通性
func NewClient(opts ClientOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})
	if opts.SkipPing {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis '%s': %w", opts.Name, err)
	}
	return client, nil
}

// ClientDefinition 以 opts.Name 为名的 *redis.Client 单例定义，容器关闭时断开连接池
func ClientDefinition(opts ClientOptions, diOpts ...di.Option) (*di.BeanDefinition, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis configuration for '%s': %w", opts.Name, err)
	}
	factory := di.Constructor(func() (*redis.Client, error) {
		return NewClient(opts)
	})
	return di.NewDefinition(opts.Name, factory, diOpts...), nil
}
