// Package admin 提供管理 HTTP 接口：健康检查、心跳状态、分布解析与路由选择。
//
// 路由：
//
//	GET  /healthz                   存活检查与实例概况
//	GET  /heartbeat                 全部实例的心跳快照
//	GET  /heartbeat/:instance       单个实例的心跳快照
//	POST /distribution/resolve      解析逻辑表集合的分布与执行分组
//	GET  /router/select             为集群选择实例 (?cluster=c0&mode=read)
//	GET  /metrics                   Prometheus 指标 (Config.MetricsPath 非空时)
//
// 所有请求经过 metrics.GinHTTPMiddleware 记录 RED 指标；配置 RateLimit 并注入
// 限流器后，超限请求返回 429。
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/distribution"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/metrics"
	"github.com/ceyewan/shardproxy/ratelimit"
	"github.com/ceyewan/shardproxy/router"
)

// Config 管理接口配置
type Config struct {
	// Addr 监听地址 (默认: ":8081")
	Addr string `mapstructure:"addr" yaml:"addr"`
	// MetricsPath 为空时不暴露 Prometheus 指标
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path"`
	// ShutdownTimeout 优雅关闭超时 (默认: 5s)
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RateLimit 按客户端 IP 限流，为零值时不限流
	RateLimit ratelimit.Limit `mapstructure:"rate_limit" yaml:"rate_limit"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8081"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// HeartbeatSource 心跳快照来源，heartbeat.Manager 即是一种实现
type HeartbeatSource interface {
	Snapshots() []heartbeat.Snapshot
	Snapshot(instance string) (heartbeat.Snapshot, error)
}

// PlanResolver 分布解析，distribution.Resolver 即是一种实现
type PlanResolver interface {
	Resolve(ctx context.Context, names []string) (*distribution.Distribution, error)
}

// InstanceSelector 实例选择，router.Router 即是一种实现
type InstanceSelector interface {
	Select(ctx context.Context, cluster string, mode router.Mode) (string, error)
}

// Server 管理接口服务
type Server struct {
	cfg       Config
	engine    *gin.Engine
	heartbeat HeartbeatSource
	resolver  PlanResolver
	selector  InstanceSelector
	logger    clog.Logger
}

// New 创建管理接口。未提供的依赖对应的路由返回 501。
func New(cfg *Config, opts ...Option) (*Server, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()

	httpMetrics, err := metrics.NewHTTPServerMetrics(o.meter, "shardproxy-admin")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       c,
		heartbeat: o.heartbeat,
		resolver:  o.resolver,
		selector:  o.selector,
		logger:    o.logger,
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		metrics.GinHTTPMiddleware(httpMetrics),
		ratelimit.GinMiddleware(o.limiter, nil, c.RateLimit),
	)
	engine.GET("/healthz", s.healthz)
	engine.GET("/heartbeat", s.listHeartbeat)
	engine.GET("/heartbeat/:instance", s.getHeartbeat)
	engine.POST("/distribution/resolve", s.resolve)
	engine.GET("/router/select", s.selectInstance)
	if c.MetricsPath != "" {
		engine.GET(c.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	s.engine = engine
	return s, nil
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听 Config.Addr，直到 ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", clog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("admin server stopped")
	return nil
}
