// Package distribution 计算一条语句涉及的逻辑表如何分布到物理节点。
//
// Distribution 是不可变值：Of 从逻辑表名构建，Join 判断两组表能否在同一物理节点上
// 完成 join 并返回新的 Distribution，DataNodes 把分布解析为执行分组。
// 所有计算都基于传入的元数据快照，不持有全局状态，也不会阻塞。
package distribution

import (
	"sort"
	"strings"

	"github.com/ceyewan/shardproxy/metadata"
	"github.com/ceyewan/shardproxy/xerrors"
)

// 分布计算错误
var (
	// ErrUnsupportedShape 表类型组合不被当前操作支持
	ErrUnsupportedShape = xerrors.Wrap(xerrors.ErrUnsupported, "distribution: unsupported shape")
	// ErrInconsistentERGroup 同一 ER 分组的表分片无法一一对应，通常是分片数配置不一致
	ErrInconsistentERGroup = xerrors.Wrap(xerrors.ErrConflict, "distribution: inconsistent er group")
)

// Type 分布形态
type Type int

const (
	// BroadCast 只有广播表
	BroadCast Type = iota + 1
	// PHY 没有分片表，单物理节点即可执行
	PHY
	// Sharding 含分片表
	Sharding
)

func (t Type) String() string {
	switch t {
	case BroadCast:
		return "BroadCast"
	case PHY:
		return "PHY"
	case Sharding:
		return "Sharding"
	default:
		return "Unknown"
	}
}

// Distribution 一条语句引用的逻辑表集合，构建后不再修改
type Distribution struct {
	catalog        metadata.Catalog
	shardingTables []*metadata.ShardingTable
	globalTables   []*metadata.GlobalTable
	normalTables   []*metadata.NormalTable
}

// Of 按 "schema.table" 名称从目录中查找逻辑表并构建分布。
// 未知表返回 metadata.ErrTableNotFound，自定义表返回 ErrUnsupportedShape。
func Of(catalog metadata.Catalog, names []string) (*Distribution, error) {
	d := &Distribution{catalog: catalog}
	for _, name := range names {
		schema, table, ok := strings.Cut(name, ".")
		if !ok {
			return nil, xerrors.Wrapf(metadata.ErrTableNotFound, "malformed table name %q", name)
		}
		t, err := catalog.Lookup(schema, table)
		if err != nil {
			return nil, err
		}
		switch tb := t.(type) {
		case *metadata.ShardingTable:
			d.shardingTables = append(d.shardingTables, tb)
		case *metadata.GlobalTable:
			d.globalTables = append(d.globalTables, tb)
		case *metadata.NormalTable:
			d.normalTables = append(d.normalTables, tb)
		case *metadata.CustomTable:
			return nil, xerrors.Wrapf(ErrUnsupportedShape, "custom table %s", tb.UniqueName())
		default:
			return nil, xerrors.Wrapf(ErrUnsupportedShape, "table %s of kind %s", t.UniqueName(), t.Kind())
		}
	}
	return d, nil
}

// FromNameList 从 NameList 的结果还原分布
func FromNameList(catalog metadata.Catalog, names []string) (*Distribution, error) {
	return Of(catalog, names)
}

// OfSharding 单个分片表的分布
func OfSharding(catalog metadata.Catalog, t *metadata.ShardingTable) *Distribution {
	return &Distribution{catalog: catalog, shardingTables: []*metadata.ShardingTable{t}}
}

// OfGlobal 单个广播表的分布
func OfGlobal(catalog metadata.Catalog, t *metadata.GlobalTable) *Distribution {
	return &Distribution{catalog: catalog, globalTables: []*metadata.GlobalTable{t}}
}

// OfNormal 单个普通表的分布
func OfNormal(catalog metadata.Catalog, t *metadata.NormalTable) *Distribution {
	return &Distribution{catalog: catalog, normalTables: []*metadata.NormalTable{t}}
}

// ShardingTables 分片表，按引用顺序
func (d *Distribution) ShardingTables() []*metadata.ShardingTable {
	return append([]*metadata.ShardingTable(nil), d.shardingTables...)
}

// GlobalTables 广播表，按引用顺序
func (d *Distribution) GlobalTables() []*metadata.GlobalTable {
	return append([]*metadata.GlobalTable(nil), d.globalTables...)
}

// NormalTables 普通表，按引用顺序
func (d *Distribution) NormalTables() []*metadata.NormalTable {
	return append([]*metadata.NormalTable(nil), d.normalTables...)
}

// Catalog 构建分布时使用的元数据快照
func (d *Distribution) Catalog() metadata.Catalog { return d.catalog }

// Type 分布形态：只有广播表为 BroadCast；没有分片表但有普通表为 PHY；其余为 Sharding
func (d *Distribution) Type() Type {
	hasSharding := len(d.shardingTables) > 0
	hasGlobal := len(d.globalTables) > 0
	hasNormal := len(d.normalTables) > 0

	switch {
	case hasGlobal && !hasSharding && !hasNormal:
		return BroadCast
	case !hasSharding && hasNormal:
		return PHY
	default:
		// 分片表与普通表混合同样归为 Sharding，DataNodes 会拒绝这种组合
		return Sharding
	}
}

// Join 判断 d 与 other 能否不经跨节点 shuffle 完成 join。
// 可以时返回合并后的新分布；不能时返回 (nil, false)，这不是错误。
func (d *Distribution) Join(other *Distribution) (*Distribution, bool) {
	switch other.Type() {
	case PHY:
		switch d.Type() {
		case PHY:
			if d.normalTables[0].DataNode().TargetName != other.normalTables[0].DataNode().TargetName {
				return nil, false
			}
			return d.merge(other), true
		case BroadCast:
			return d.merge(other), true
		default:
			return nil, false
		}
	case BroadCast:
		return d.merge(other), true
	case Sharding:
		switch d.Type() {
		case PHY:
			return nil, false
		case BroadCast:
			return d.merge(other), true
		default:
			if len(d.shardingTables) == 0 || len(other.shardingTables) == 0 {
				return nil, false
			}
			if !d.shardingTables[0].Function().IsSameDistribution(other.shardingTables[0].Function()) {
				return nil, false
			}
			return d.merge(other), true
		}
	default:
		return nil, false
	}
}

func (d *Distribution) merge(other *Distribution) *Distribution {
	catalog := d.catalog
	if catalog == nil {
		catalog = other.catalog
	}
	return &Distribution{
		catalog:        catalog,
		shardingTables: concat(d.shardingTables, other.shardingTables),
		globalTables:   concat(d.globalTables, other.globalTables),
		normalTables:   concat(d.normalTables, other.normalTables),
	}
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// NameList 全部逻辑表的 "schema.table"，已排序
func (d *Distribution) NameList() []string {
	names := make([]string, 0, len(d.shardingTables)+len(d.globalTables)+len(d.normalTables))
	for _, t := range d.shardingTables {
		names = append(names, t.UniqueName())
	}
	for _, t := range d.globalTables {
		names = append(names, t.UniqueName())
	}
	for _, t := range d.normalTables {
		names = append(names, t.UniqueName())
	}
	sort.Strings(names)
	return names
}

func (d *Distribution) String() string {
	var parts []string
	if s := joinSorted(d.normalTables); s != "" {
		parts = append(parts, "normalTables="+s)
	}
	if s := joinSorted(d.shardingTables); s != "" {
		parts = append(parts, "shardingTables="+s)
	}
	if s := joinSorted(d.globalTables); s != "" {
		parts = append(parts, "globalTables="+s)
	}
	return "Distribution{" + strings.Join(parts, ",") + "}"
}

func joinSorted[T metadata.Table](tables []T) string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.UniqueName())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
