// Package ioc 是 Bean 容器与应用宿主的入口。
//
//	ioc.Run(ctx, func(b *core.ApplicationBuilder) {
//		b.AddExtension(web.New(web.FromSection("web")))
//	})
package ioc

import (
	"context"

	"github.com/gocrud/ioc/core"
)

// New 创建应用程序构建器
func New() *core.ApplicationBuilder {
	return core.NewApplicationBuilder()
}

// Run 构建并运行应用，直到收到退出信号或 ctx 取消
func Run(ctx context.Context, configure ...func(*core.ApplicationBuilder)) error {
	b := New()
	for _, fn := range configure {
		fn(b)
	}
	app, err := b.Build()
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
