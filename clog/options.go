package clog

import "io"

// Option 函数式选项，用于配置 Logger 实例
type Option func(*options)

type options struct {
	namespaceParts []string
	writer         io.Writer
}

// WithNamespace 设置根命名空间
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithWriter 将日志写入指定 writer，优先级高于 Config.Output。主要用于测试断言日志内容。
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
