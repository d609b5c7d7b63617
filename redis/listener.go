package redis

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// 刷新消息的特殊内容
const (
	// RefreshAll 淘汰 refresh 作用域中的全部实例
	RefreshAll = "*"
	// ReloadConfig 重新加载配置
	ReloadConfig = "@config"
)

// Reloader 可以重新加载的配置
type Reloader interface {
	Reload() error
}

// Subscriber 订阅频道，*redis.Client 满足该接口
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RefreshListener 订阅一个频道并按消息刷新 Bean。
// 消息为空或 "*" 时刷新整个作用域，"@config" 重载配置，
// 其余内容视为逗号分隔的 Bean 名称。
type RefreshListener struct {
	subscriber Subscriber
	channel    string
	scope      *di.RefreshScope
	reloader   Reloader
	logger     logging.Logger
}

// NewRefreshListener 创建监听器，reloader 可以为 nil
func NewRefreshListener(subscriber Subscriber, channel string, scope *di.RefreshScope, reloader Reloader, logger logging.Logger) *RefreshListener {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RefreshListener{
		subscriber: subscriber,
		channel:    channel,
		scope:      scope,
		reloader:   reloader,
		logger:     logger,
	}
}

// Start 阻塞读取消息，直到 ctx 取消或订阅关闭
func (l *RefreshListener) Start(ctx context.Context) error {
	ps := l.subscriber.Subscribe(ctx, l.channel)
	defer ps.Close()

	l.logger.Info("Listening for refresh messages", logging.Field{Key: "channel", Value: l.channel})
	ch := ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := l.handle(msg.Payload); err != nil {
				l.logger.Error("Refresh failed",
					logging.Field{Key: "payload", Value: msg.Payload},
					logging.Field{Key: "error", Value: err.Error()})
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop 订阅随 Start 的 ctx 一起结束
func (l *RefreshListener) Stop(context.Context) error {
	return nil
}

func (l *RefreshListener) handle(payload string) error {
	payload = strings.TrimSpace(payload)
	switch payload {
	case "", RefreshAll:
		l.logger.Info("Refreshing all beans")
		return l.scope.Refresh()
	case ReloadConfig:
		if l.reloader == nil {
			return l.scope.Refresh()
		}
		return l.reloader.Reload()
	}

	var errs error
	for _, name := range strings.Split(payload, ",") {
		if name = strings.TrimSpace(name); name != "" {
			l.logger.Info("Refreshing bean", logging.Field{Key: "bean", Value: name})
			errs = multierr.Append(errs, l.scope.RefreshBean(name))
		}
	}
	return errs
}

// RefreshPayload 刷新指定 Bean 的消息内容，不传名称时刷新全部
func RefreshPayload(beans ...string) string {
	if len(beans) == 0 {
		return RefreshAll
	}
	return strings.Join(beans, ",")
}

// PublishRefresh 通知所有订阅 channel 的实例刷新
func PublishRefresh(ctx context.Context, client redis.UniversalClient, channel string, beans ...string) error {
	return client.Publish(ctx, channel, RefreshPayload(beans...)).Err()
}
