// Package xerrors 提供标准化错误处理工具。
//
// 各组件在自己的包内定义哨兵错误，并通过 Wrap/Wrapf 包装到下列通用分类上，
// 调用方用 Is 或 KindOf 判断错误类别而不关心具体组件：
//
//	var ErrTableNotFound = xerrors.Wrap(xerrors.ErrNotFound, "metadata: table not found")
//
//	xerrors.KindOf(xerrors.Wrapf(ErrTableNotFound, "%s", name)) // KindNotFound
package xerrors

import (
	"context"
	"errors"
	"fmt"
)

// 通用错误分类
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrTimeout      = errors.New("timeout")
)

// Kind 错误类别的机器可读名称，admin 接口把它作为响应中的 code 字段
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindUnsupported  Kind = "unsupported"
	KindConflict     Kind = "conflict"
	KindUnavailable  Kind = "unavailable"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrInvalidInput, KindInvalidInput},
	{ErrUnsupported, KindUnsupported},
	{ErrConflict, KindConflict},
	{ErrUnavailable, KindUnavailable},
	{ErrTimeout, KindTimeout},
	{context.DeadlineExceeded, KindTimeout},
}

// KindOf 返回错误链上第一个匹配的分类，nil 返回空串，未分类的错误为 KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// Wrap 用上下文信息包装错误，保留错误链。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// MultiError 多个错误，Error 只展示第一个
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个，忽略 nil。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// 标准库函数再导出
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)
