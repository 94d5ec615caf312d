// Package clog 为 shardproxy 提供基于 slog 的结构化日志组件。
//
// 每个组件通过 WithLogger 注入 Logger，并用 WithNamespace 标记来源，
// 例如 heartbeat、router、topology，便于按模块过滤日志。
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	hb := logger.WithNamespace("heartbeat")
//	hb.Warn("replication delay", clog.String("instance", "c0-r1"), clog.Int64("seconds_behind_master", 12))
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}
