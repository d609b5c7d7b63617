package etcd

import (
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/di"
)

// ClientOptions etcd 客户端配置选项
type ClientOptions struct {
	Name               string        `yaml:"name"`
	Endpoints          []string      `yaml:"endpoints"`
	DialTimeout        time.Duration `yaml:"dialTimeout"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	AutoSyncInterval   time.Duration `yaml:"autoSyncInterval"`
	MaxCallSendMsgSize int           `yaml:"maxCallSendMsgSize"`
	MaxCallRecvMsgSize int           `yaml:"maxCallRecvMsgSize"`
}

// DefaultOptions 创建默认配置
func DefaultOptions(name string) *ClientOptions {
	return &ClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	}
}

// withDefaults 补全配置文件中省略的字段
func (o ClientOptions) withDefaults() ClientOptions {
	defaults := DefaultOptions(o.Name)
	if len(o.Endpoints) == 0 {
		o.Endpoints = defaults.Endpoints
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = defaults.DialTimeout
	}
	return o
}

// Validate 验证配置
func (o *ClientOptions) Validate() error {
	if o.Name == "" {
		return errors.New("etcd client name is required")
	}
	if len(o.Endpoints) == 0 {
		return errors.New("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return errors.New("etcd dial timeout must be positive")
	}
	return nil
}

func (o *ClientOptions) clientConfig() clientv3.Config {
	cfg := clientv3.Config{
		Endpoints:          o.Endpoints,
		DialTimeout:        o.DialTimeout,
		AutoSyncInterval:   o.AutoSyncInterval,
		MaxCallSendMsgSize: o.MaxCallSendMsgSize,
		MaxCallRecvMsgSize: o.MaxCallRecvMsgSize,
	}
	if o.Username != "" {
		cfg.Username = o.Username
		cfg.Password = o.Password
	}
	return cfg
}

// ClientDefinition 以 opts.Name 为名的 *clientv3.Client 单例定义。
// 客户端实现了 io.Closer，容器关闭时自动断开。
func ClientDefinition(opts ClientOptions, diOpts ...di.Option) (*di.BeanDefinition, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid etcd configuration for '%s': %w", opts.Name, err)
	}
	factory := di.Constructor(func() (*clientv3.Client, error) {
		client, err := clientv3.New(opts.clientConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd client '%s': %w", opts.Name, err)
		}
		return client, nil
	})
	return di.NewDefinition(opts.Name, factory, diOpts...), nil
}
