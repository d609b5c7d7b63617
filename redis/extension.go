package redis

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// ExtensionOption 配置 redis 扩展
type ExtensionOption func(*Extension)

// WithClient 添加客户端，第一个客户端作为按类型注入时的首选
func WithClient(name string, configure ...func(*ClientOptions)) ExtensionOption {
	return func(e *Extension) {
		opts := DefaultOptions(name)
		for _, fn := range configure {
			fn(opts)
		}
		e.clients = append(e.clients, *opts)
	}
}

// FromSection 从配置节读取客户端：
//
//	redis:
//	  clients:
//	    cache:
//	      addr: 10.0.0.2:6379
//	      db: 1
func FromSection(section string) ExtensionOption {
	return func(e *Extension) { e.section = section }
}

// ListenRefresh 在 client 上订阅 channel，按消息刷新 refresh 作用域
func ListenRefresh(client, channel string) ExtensionOption {
	return func(e *Extension) {
		e.listeners = append(e.listeners, listenerDefinition{client: client, channel: channel})
	}
}

type listenerDefinition struct {
	client  string
	channel string
}

type sectionOptions struct {
	Clients map[string]ClientOptions `yaml:"clients"`
}

// Extension 注册 redis 客户端与刷新监听器
type Extension struct {
	section   string
	clients   []ClientOptions
	listeners []listenerDefinition
}

var _ core.Extension = (*Extension)(nil)

// New 创建 redis 扩展
func New(opts ...ExtensionOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) Name() string { return "redis" }

func (e *Extension) Configure(ctx *core.BuildContext) error {
	clients, err := e.collectClients(ctx.Configuration())
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(clients))
	for i, opts := range clients {
		if _, dup := seen[opts.Name]; dup {
			return fmt.Errorf("redis client '%s' already configured", opts.Name)
		}
		seen[opts.Name] = struct{}{}

		var diOpts []di.Option
		if i == 0 {
			diOpts = append(diOpts, di.Primary())
		}
		def, err := ClientDefinition(opts, diOpts...)
		if err != nil {
			return err
		}
		if err := ctx.Register(def); err != nil {
			return err
		}
	}

	logger := ctx.Logger("Redis")
	reloader := ctx.Configuration()
	scope := ctx.Container().RefreshScope()
	for _, l := range e.listeners {
		if _, ok := seen[l.client]; !ok {
			return fmt.Errorf("redis listener on unknown client '%s'", l.client)
		}
		channel := l.channel
		factory := di.Constructor(func(client *redis.Client) *RefreshListener {
			return NewRefreshListener(client, channel, scope, reloader, logger)
		}, di.Ref(l.client))
		if err := ctx.Register(di.NewDefinition(l.client+"RefreshListener", factory)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extension) collectClients(cfg config.Configuration) ([]ClientOptions, error) {
	var clients []ClientOptions
	if e.section != "" {
		raw, err := config.NewEnvironment(cfg).Resolve(e.section, reflect.TypeOf(sectionOptions{}))
		if err != nil && !errors.Is(err, di.ErrValueNotFound) {
			return nil, fmt.Errorf("redis section '%s': %w", e.section, err)
		}
		if section, ok := raw.(sectionOptions); ok {
			names := make([]string, 0, len(section.Clients))
			for name := range section.Clients {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				opts := section.Clients[name]
				opts.Name = name
				clients = append(clients, opts.withDefaults())
			}
		}
	}
	return append(clients, e.clients...), nil
}
