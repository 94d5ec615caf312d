// Package metadata 维护逻辑表目录：逻辑表到物理节点的映射与 ER 分组。
//
// 目录以不可变快照 Snapshot 的形式发布，Registry 整体替换快照，
// 读者要么看到旧快照，要么看到完整的新快照。
package metadata

import (
	"github.com/ceyewan/shardproxy/sharding"
	"github.com/ceyewan/shardproxy/xerrors"
)

// 元数据错误
var (
	ErrTableNotFound  = xerrors.Wrap(xerrors.ErrNotFound, "metadata: table not found")
	ErrDuplicateTable = xerrors.Wrap(xerrors.ErrConflict, "metadata: duplicate table")
	ErrInvalidTable   = xerrors.Wrap(xerrors.ErrInvalidInput, "metadata: invalid table")
)

// Kind 逻辑表类型
type Kind int

const (
	KindSharding Kind = iota + 1
	KindGlobal
	KindNormal
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindSharding:
		return "sharding"
	case KindGlobal:
		return "global"
	case KindNormal:
		return "normal"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Table 逻辑表，具体类型只有 *ShardingTable、*GlobalTable、*NormalTable、*CustomTable
type Table interface {
	Kind() Kind
	SchemaName() string
	TableName() string
	// UniqueName schema.table
	UniqueName() string

	sealed()
}

type base struct {
	schema string
	table  string
}

func newBase(schema, table string) (base, error) {
	b := base{schema: sharding.NormalizeName(schema), table: sharding.NormalizeName(table)}
	if b.schema == "" || b.table == "" {
		return b, xerrors.Wrapf(ErrInvalidTable, "empty name %q.%q", schema, table)
	}
	return b, nil
}

func (b base) SchemaName() string { return b.schema }
func (b base) TableName() string  { return b.table }
func (b base) UniqueName() string { return UniqueName(b.schema, b.table) }
func (b base) sealed()            {}

// UniqueName 逻辑表唯一名 schema.table，库名与表名会被规范化
func UniqueName(schema, table string) string {
	return sharding.NormalizeName(schema) + "." + sharding.NormalizeName(table)
}

// ShardingTable 分片表，节点由分片函数决定
type ShardingTable struct {
	base
	fn sharding.Function
}

// NewShardingTable 创建分片表
func NewShardingTable(schema, table string, fn sharding.Function) (*ShardingTable, error) {
	b, err := newBase(schema, table)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, xerrors.Wrapf(ErrInvalidTable, "%s: nil sharding function", b.UniqueName())
	}
	return &ShardingTable{base: b, fn: fn}, nil
}

func (t *ShardingTable) Kind() Kind { return KindSharding }

// Function 分片函数
func (t *ShardingTable) Function() sharding.Function { return t.fn }

// DataNodes 全部分片，按规范顺序
func (t *ShardingTable) DataNodes() []sharding.DataNode { return t.fn.DataNodes() }

// ERUniqueID 所属 ER 分组
func (t *ShardingTable) ERUniqueID() string { return t.fn.ERUniqueID() }

// GlobalTable 广播表，每个节点都有完整副本
type GlobalTable struct {
	base
	nodes []sharding.DataNode
}

// NewGlobalTable 创建广播表，nodes 不能为空
func NewGlobalTable(schema, table string, nodes []sharding.DataNode) (*GlobalTable, error) {
	b, err := newBase(schema, table)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, xerrors.Wrapf(ErrInvalidTable, "%s: global table without data node", b.UniqueName())
	}
	return &GlobalTable{base: b, nodes: append([]sharding.DataNode(nil), nodes...)}, nil
}

func (t *GlobalTable) Kind() Kind { return KindGlobal }

// DataNode 主副本，即第一个节点
func (t *GlobalTable) DataNode() sharding.DataNode { return t.nodes[0] }

// GlobalDataNodes 全部副本
func (t *GlobalTable) GlobalDataNodes() []sharding.DataNode {
	return append([]sharding.DataNode(nil), t.nodes...)
}

// NormalTable 单节点表
type NormalTable struct {
	base
	node sharding.DataNode
}

// NewNormalTable 创建单节点表
func NewNormalTable(schema, table string, node sharding.DataNode) (*NormalTable, error) {
	b, err := newBase(schema, table)
	if err != nil {
		return nil, err
	}
	if node.TargetName == "" {
		return nil, xerrors.Wrapf(ErrInvalidTable, "%s: empty target", b.UniqueName())
	}
	return &NormalTable{base: b, node: node}, nil
}

func (t *NormalTable) Kind() Kind { return KindNormal }

func (t *NormalTable) DataNode() sharding.DataNode { return t.node }

// CustomTable 由外部处理器接管的表，不参与分布计算
type CustomTable struct {
	base
	handler string
}

func NewCustomTable(schema, table, handler string) (*CustomTable, error) {
	b, err := newBase(schema, table)
	if err != nil {
		return nil, err
	}
	return &CustomTable{base: b, handler: handler}, nil
}

func (t *CustomTable) Kind() Kind { return KindCustom }

func (t *CustomTable) Handler() string { return t.handler }
