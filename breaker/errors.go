package breaker

import "github.com/ceyewan/shardproxy/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: config is nil")

	// ErrInvalidConfig 配置不合法
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: invalid config")

	// ErrKeyEmpty 熔断键为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: key is empty")

	// ErrOpenState 熔断器处于打开状态，或半开状态下请求过多
	ErrOpenState = xerrors.Wrap(xerrors.ErrUnavailable, "breaker: circuit breaker is open")
)
