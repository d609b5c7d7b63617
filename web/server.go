package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Controller 控制器。容器中实现该接口的 Bean 在服务启动时挂载路由
type Controller interface {
	MountRoutes(router gin.IRouter)
}

var controllerType = di.TypeOf[Controller]()

// Options Web 服务配置
type Options struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Mode gin 运行模式：debug、release、test
	Mode string `yaml:"mode"`
	// BasePath 控制器路由的公共前缀
	BasePath string `yaml:"basePath"`
	// Introspection 非空时在该路径下暴露容器中的 Bean 信息
	Introspection string `yaml:"introspection"`
	// AccessLog 是否记录每个请求
	AccessLog bool `yaml:"accessLog"`
}

// DefaultOptions 默认配置
func DefaultOptions() *Options {
	return &Options{Port: 8080, Mode: gin.ReleaseMode}
}

func (o Options) address() string {
	return net.JoinHostPort(o.Host, fmt.Sprint(o.Port))
}

// Server 基于 gin 的托管服务
type Server struct {
	opts      Options
	engine    *gin.Engine
	server    *http.Server
	container *di.Container
	logger    logging.Logger

	mountOnce sync.Once
	mountErr  error
	ready     chan struct{}
	addr      string
}

// NewServer 创建服务。container 用于在启动时收集控制器
func NewServer(opts Options, container *di.Container, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if opts.AccessLog {
		engine.Use(accessLog(logger))
	}

	return &Server{
		opts:      opts,
		engine:    engine,
		server:    &http.Server{Handler: engine},
		container: container,
		logger:    logger,
		ready:     make(chan struct{}),
	}
}

// Engine gin 引擎，用于注册中间件或额外的路由
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler 挂载控制器后的 http.Handler
func (s *Server) Handler() (http.Handler, error) {
	if err := s.mount(); err != nil {
		return nil, err
	}
	return s.engine, nil
}

// Ready 开始监听后关闭
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr 实际监听地址，Ready 之前返回空串
func (s *Server) Addr() string {
	select {
	case <-s.ready:
		return s.addr
	default:
		return ""
	}
}

// Start 挂载路由并阻塞处理请求，直到 Stop 被调用
func (s *Server) Start(ctx context.Context) error {
	if err := s.mount(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.opts.address())
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", s.opts.address(), err)
	}
	s.addr = ln.Addr().String()
	s.logger.Info("Web server started", logging.Field{Key: "address", Value: s.addr})
	close(s.ready)

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Web server error", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}

// Stop 优雅关闭，等待进行中的请求直到 ctx 到期
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping web server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown web server gracefully", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}

func (s *Server) mount() error {
	s.mountOnce.Do(func() {
		s.mountErr = s.mountRoutes()
	})
	return s.mountErr
}

func (s *Server) mountRoutes() error {
	if s.opts.Introspection != "" {
		MountIntrospection(s.engine.Group(s.opts.Introspection), s.container)
	}

	beans, err := s.container.BeansOfType(controllerType)
	if err != nil {
		return fmt.Errorf("web: failed to resolve controllers: %w", err)
	}
	var router gin.IRouter = s.engine
	if s.opts.BasePath != "" {
		router = s.engine.Group(s.opts.BasePath)
	}
	for _, nb := range beans {
		nb.Bean.(Controller).MountRoutes(router)
		s.logger.Debug("Mapped controller routes", logging.Field{Key: "controller", Value: nb.Name})
	}
	return nil
}

func accessLog(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			logging.Field{Key: "method", Value: c.Request.Method},
			logging.Field{Key: "path", Value: c.Request.URL.Path},
			logging.Field{Key: "status", Value: c.Writer.Status()},
			logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	}
}
