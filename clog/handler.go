package clog

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// newHandler 根据配置构造 slog.Handler，级别由 levelVar 控制以支持动态调整
func newHandler(config *Config, w io.Writer, levelVar *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{
		AddSource: config.AddSource,
		Level:     levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				if lv, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(lv.String())
				}
			case slog.TimeKey:
				if a.Value.Kind() == slog.KindTime {
					a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
				}
			}
			return a
		},
	}

	if strings.ToLower(config.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// resolveWriter 根据 Output 创建输出目标
func resolveWriter(config *Config) (io.Writer, error) {
	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}
