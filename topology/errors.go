package topology

import "github.com/ceyewan/shardproxy/xerrors"

var (
	// ErrInvalidTopology 拓扑配置不合法，热加载时保留旧拓扑
	ErrInvalidTopology = xerrors.Wrap(xerrors.ErrInvalidInput, "topology: invalid topology")

	// ErrUnknownTarget 数据节点引用了未定义的集群
	ErrUnknownTarget = xerrors.Wrap(xerrors.ErrNotFound, "topology: unknown target")
)
