package etcd

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// ExtensionOption 配置 etcd 扩展
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
//	etcd:
//	  clients:
//	    master:
//	      endpoints: ["10.0.0.1:2379"]
//	      dialTimeout: 3s
func FromSection(section string) ExtensionOption {
	return func(e *Extension) { e.section = section }
}

// WatchRefresh 监听 client 上的前缀，变更时重载配置
func WatchRefresh(client, prefix string) ExtensionOption {
	return func(e *Extension) {
		e.watches = append(e.watches, watchDefinition{client: client, prefix: prefix})
	}
}

type watchDefinition struct {
	client string
	prefix string
}

type sectionOptions struct {
	Clients map[string]ClientOptions `yaml:"clients"`
}

// Extension 注册 etcd 客户端与刷新监听器
type Extension struct {
	section string
	clients []ClientOptions
	watches []watchDefinition
}

var _ core.Extension = (*Extension)(nil)

// New 创建 etcd 扩展
func New(opts ...ExtensionOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) Name() string { return "etcd" }

func (e *Extension) Configure(ctx *core.BuildContext) error {
	clients, err := e.collectClients(ctx.Configuration())
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(clients))
	for i, opts := range clients {
		if _, dup := seen[opts.Name]; dup {
			return fmt.Errorf("etcd client '%s' already configured", opts.Name)
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

	logger := ctx.Logger("Etcd")
	reloader := ctx.Configuration()
	scope := ctx.Container().RefreshScope()
	for _, w := range e.watches {
		if _, ok := seen[w.client]; !ok {
			return fmt.Errorf("etcd watch on unknown client '%s'", w.client)
		}
		prefix := w.prefix
		factory := di.Constructor(func(cli *clientv3.Client) *RefreshWatcher {
			return NewRefreshWatcher(cli.Watcher, prefix, reloader, scope, logger)
		}, di.Ref(w.client))
		if err := ctx.Register(di.NewDefinition(w.client+"RefreshWatcher", factory)); err != nil {
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
			return nil, fmt.Errorf("etcd section '%s': %w", e.section, err)
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
