package config

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/shardproxy/clog"
)

// Option 配置选项
type Option func(*Options)

// Options 加载器配置
type Options struct {
	Name      string   // 配置文件名称（不含扩展名）
	Paths     []string // 配置文件搜索路径，默认 [".", "./config"]
	FileType  string   // 配置文件类型，默认 yaml
	EnvPrefix string   // 环境变量前缀，默认 SHARDPROXY

	// ReloadDebounce 文件变化后静默多久再重读，默认 100ms
	ReloadDebounce time.Duration

	logger clog.Logger
}

func defaultOptions() *Options {
	return &Options{
		Name:           "config",
		Paths:          []string{".", "./config"},
		FileType:       "yaml",
		EnvPrefix:      "SHARDPROXY",
		ReloadDebounce: 100 * time.Millisecond,
		logger:         clog.Discard(),
	}
}

// WithConfigName 设置配置文件名称（不带扩展名）
func WithConfigName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithConfigPaths 设置配置文件搜索路径（覆盖默认值）
func WithConfigPaths(paths ...string) Option {
	return func(o *Options) {
		o.Paths = paths
	}
}

// WithConfigType 设置配置文件类型 (yaml, json, etc.)
func WithConfigType(typ string) Option {
	return func(o *Options) {
		o.FileType = typ
	}
}

// WithEnvPrefix 设置环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(o *Options) {
		o.EnvPrefix = strings.ToUpper(prefix)
	}
}

// WithReloadDebounce 设置文件变化的合并窗口
func WithReloadDebounce(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ReloadDebounce = d
		}
	}
}

// WithLogger 注入日志记录器，自动添加 "config" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// New 创建配置加载器，需要调用 Load 后才可读取配置
func New(opts ...Option) (Loader, error) {
	return newLoader(opts...)
}

// MustLoad 创建并加载配置，失败时 panic。仅用于初始化阶段。
func MustLoad(opts ...Option) Loader {
	l, err := newLoader(opts...)
	if err != nil {
		panic(err)
	}
	if err := l.Load(context.Background()); err != nil {
		panic(err)
	}
	return l
}
