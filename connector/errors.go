package connector

import "github.com/ceyewan/shardproxy/xerrors"

// 连接器专用的哨兵错误
var (
	ErrConnection    = xerrors.Wrap(xerrors.ErrUnavailable, "connector: connection failed")
	ErrConfig        = xerrors.Wrap(xerrors.ErrInvalidInput, "connector: invalid config")
	ErrHealthCheck   = xerrors.Wrap(xerrors.ErrUnavailable, "connector: health check failed")
	ErrClientNil     = xerrors.Wrap(xerrors.ErrUnavailable, "connector: client not connected")
	ErrUnknownTarget = xerrors.Wrap(xerrors.ErrNotFound, "connector: unknown instance")
	ErrQuery         = xerrors.New("connector: query failed")
)
