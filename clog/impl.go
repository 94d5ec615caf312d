package clog

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

// NamespaceKey 是日志中命名空间的字段名
const NamespaceKey = "namespace"

type loggerImpl struct {
	handler   slog.Handler
	levelVar  *slog.LevelVar
	namespace []string
	attrs     []slog.Attr
}

func newLogger(config *Config, o *options) (Logger, error) {
	w := o.writer
	if w == nil {
		var err error
		if w, err = resolveWriter(config); err != nil {
			return nil, err
		}
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	return &loggerImpl{
		handler:   newHandler(config, w, levelVar),
		levelVar:  levelVar,
		namespace: append([]string(nil), o.namespaceParts...),
	}, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelDebug, msg, fields)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelInfo, msg, fields)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelWarn, msg, fields)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelError, msg, fields)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	attrs := make([]slog.Attr, 0, len(l.attrs)+len(fields))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, fields...)
	return &loggerImpl{
		handler:   l.handler,
		levelVar:  l.levelVar,
		namespace: l.namespace,
		attrs:     attrs,
	}
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	ns := make([]string, 0, len(l.namespace)+len(parts))
	ns = append(ns, l.namespace...)
	ns = append(ns, parts...)
	return &loggerImpl{
		handler:   l.handler,
		levelVar:  l.levelVar,
		namespace: ns,
		attrs:     l.attrs,
	}
}

func (l *loggerImpl) SetLevel(level Level) {
	l.levelVar.Set(level.slogLevel())
}

func (l *loggerImpl) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if !l.handler.Enabled(ctx, level) {
		return
	}

	// skip: runtime.Callers, log, Info/Warn/...
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	if len(l.namespace) > 0 {
		record.AddAttrs(slog.String(NamespaceKey, strings.Join(l.namespace, ".")))
	}
	record.AddAttrs(l.attrs...)
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		record.AddAttrs(f)
	}
	_ = l.handler.Handle(ctx, record)
}
