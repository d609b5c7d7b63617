package etcd

import (
	"context"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Reloader 可以重新加载的配置
type Reloader interface {
	Reload() error
}

// RefreshWatcher 监听 etcd 前缀，键变更后重新加载配置。
// 没有配置可重载时直接刷新 refresh 作用域。
type RefreshWatcher struct {
	watcher  clientv3.Watcher
	prefix   string
	reloader Reloader
	scope    *di.RefreshScope
	logger   logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRefreshWatcher 创建监听器，reloader 与 scope 至少提供一个
func NewRefreshWatcher(watcher clientv3.Watcher, prefix string, reloader Reloader, scope *di.RefreshScope, logger logging.Logger) *RefreshWatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RefreshWatcher{
		watcher:  watcher,
		prefix:   prefix,
		reloader: reloader,
		scope:    scope,
		logger:   logger,
	}
}

// Start 阻塞监听，直到 ctx 取消或调用 Stop
func (w *RefreshWatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()

	w.logger.Info("Watching etcd prefix", logging.Field{Key: "prefix", Value: w.prefix})
	for resp := range w.watcher.Watch(ctx, w.prefix, clientv3.WithPrefix()) {
		if err := resp.Err(); err != nil {
			w.logger.Error("etcd watch error", logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		w.apply(resp.Events)
	}
	return ctx.Err()
}

// Stop 结束监听
func (w *RefreshWatcher) Stop(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

// apply 处理一批事件，返回受影响的配置路径
func (w *RefreshWatcher) apply(events []*clientv3.Event) []string {
	var keys []string
	for _, ev := range events {
		if key := config.EtcdConfigKey(w.prefix, string(ev.Kv.Key)); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	w.logger.Info("etcd keys changed", logging.Field{Key: "keys", Value: keys})
	var err error
	switch {
	case w.reloader != nil:
		err = w.reloader.Reload()
	case w.scope != nil:
		err = w.scope.Refresh()
	}
	if err != nil {
		w.logger.Error("Failed to refresh after etcd change", logging.Field{Key: "error", Value: err.Error()})
	}
	return keys
}
