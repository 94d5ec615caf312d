package distribution

import (
	"sort"

	"github.com/ceyewan/shardproxy/metadata"
	"github.com/ceyewan/shardproxy/sharding"
	"github.com/ceyewan/shardproxy/xerrors"
)

// ExecutionGroup 一个执行分组：逻辑表唯一名 → 该分组内对应的物理节点
type ExecutionGroup map[string]sharding.DataNode

// Targets 分组涉及的后端目标，已排序去重
func (g ExecutionGroup) Targets() []string {
	set := make(map[string]struct{}, len(g))
	for _, n := range g {
		set[n.TargetName] = struct{}{}
	}
	return sortedSet(set)
}

// PrimaryFilter 计算主分片表参与执行的节点
type PrimaryFilter func(t *metadata.ShardingTable) []sharding.DataNode

// AllDataNodes 不做过滤，主表全部分片参与执行
func AllDataNodes(t *metadata.ShardingTable) []sharding.DataNode {
	return t.DataNodes()
}

// WithPredicates 用主表的分片函数按谓词过滤
func WithPredicates(p sharding.Predicates) PrimaryFilter {
	return func(t *metadata.ShardingTable) []sharding.DataNode {
		return t.Function().Calculate(p)
	}
}

// DataNodes 把分布解析为执行分组。
//
// BroadCast 与 PHY 只有一个分组。Sharding 以第一个分片表为主表，filter 决定主表参与的分片；
// 其他分片表按主表分片在规范顺序中的下标取同位置的分片，广播表的主副本加入每个分组。
// 分片表与普通表混合返回 ErrUnsupportedShape；同组分片无法对应返回 ErrInconsistentERGroup。
func (d *Distribution) DataNodes(filter PrimaryFilter) ([]ExecutionGroup, error) {
	switch d.Type() {
	case BroadCast, PHY:
		group := make(ExecutionGroup, len(d.normalTables)+len(d.globalTables))
		for _, t := range d.normalTables {
			group[t.UniqueName()] = t.DataNode()
		}
		for _, t := range d.globalTables {
			group[t.UniqueName()] = t.DataNode()
		}
		return []ExecutionGroup{group}, nil
	case Sharding:
		return d.shardingDataNodes(filter)
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedShape, "type %s", d.Type())
	}
}

func (d *Distribution) shardingDataNodes(filter PrimaryFilter) ([]ExecutionGroup, error) {
	if len(d.shardingTables) == 0 {
		return nil, xerrors.Wrap(ErrUnsupportedShape, "no table")
	}
	if len(d.normalTables) > 0 {
		return nil, xerrors.Wrapf(ErrUnsupportedShape, "sharding tables mixed with normal tables: %s", d)
	}
	if filter == nil {
		filter = AllDataNodes
	}

	primary := d.shardingTables[0]
	canonical, err := d.canonicalNodes(primary)
	if err != nil {
		return nil, err
	}

	// 主表过滤后的分片在规范顺序中的下标
	position := make(map[string]int, len(canonical[primary.UniqueName()]))
	for i, n := range canonical[primary.UniqueName()] {
		position[n.UniqueName()] = i
	}
	var indexes []int
	seen := make(map[int]struct{})
	for _, n := range filter(primary) {
		i, ok := position[n.UniqueName()]
		if !ok {
			return nil, xerrors.Wrapf(ErrInconsistentERGroup, "data node %s is not a shard of %s", n, primary.UniqueName())
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	groups := make([]ExecutionGroup, 0, len(indexes))
	for _, i := range indexes {
		group := make(ExecutionGroup, len(canonical)+len(d.globalTables))
		for name, nodes := range canonical {
			if i >= len(nodes) {
				return nil, xerrors.Wrapf(ErrInconsistentERGroup, "%s has %d shards, shard %d of %s has no peer",
					name, len(nodes), i, primary.UniqueName())
			}
			group[name] = nodes[i]
		}
		for _, t := range d.globalTables {
			group[t.UniqueName()] = t.DataNode()
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// canonicalNodes 取参与本次执行的分片表在 ER 分组中的规范分片列表
func (d *Distribution) canonicalNodes(primary *metadata.ShardingTable) (map[string][]sharding.DataNode, error) {
	members := make(map[string]*metadata.ShardingTable)
	if d.catalog != nil {
		for _, t := range d.catalog.ERGroup(primary.ERUniqueID()) {
			members[t.UniqueName()] = t
		}
	}
	// 目录中没有分组信息时退化为按分片函数比较
	if len(members) == 0 {
		members[primary.UniqueName()] = primary
	}

	canonical := make(map[string][]sharding.DataNode, len(d.shardingTables))
	for _, t := range d.shardingTables {
		name := t.UniqueName()
		if _, ok := canonical[name]; ok {
			continue
		}
		member, ok := members[name]
		if !ok {
			if !t.Function().IsSameDistribution(primary.Function()) {
				return nil, xerrors.Wrapf(ErrInconsistentERGroup, "%s is not colocated with %s", name, primary.UniqueName())
			}
			member = t
		}
		canonical[name] = member.DataNodes()
	}
	return canonical, nil
}

// SingleTableDataNodes 单表 DML 的目标节点，不做 ER 对齐。
// 只允许一张表：普通表返回其节点，广播表返回全部副本，分片表按谓词计算。
func (d *Distribution) SingleTableDataNodes(p sharding.Predicates) ([]sharding.DataNode, error) {
	switch {
	case len(d.normalTables) == 1 && len(d.globalTables) == 0 && len(d.shardingTables) == 0:
		return []sharding.DataNode{d.normalTables[0].DataNode()}, nil
	case len(d.globalTables) == 1 && len(d.normalTables) == 0 && len(d.shardingTables) == 0:
		return d.globalTables[0].GlobalDataNodes(), nil
	case len(d.shardingTables) == 1 && len(d.normalTables) == 0 && len(d.globalTables) == 0:
		return d.shardingTables[0].Function().Calculate(p), nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedShape, "single table update on %s", d)
	}
}

// Targets 全部执行分组涉及的后端目标，已排序去重
func (d *Distribution) Targets() ([]string, error) {
	groups, err := d.DataNodes(AllDataNodes)
	if err != nil {
		return nil, err
	}
	return GroupTargets(groups), nil
}

// GroupTargets 执行分组涉及的后端集合，去重排序
func GroupTargets(groups []ExecutionGroup) []string {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, n := range g {
			set[n.TargetName] = struct{}{}
		}
	}
	return sortedSet(set)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
