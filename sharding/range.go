package sharding

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ceyewan/shardproxy/xerrors"
)

// Partition 左闭右开区间 [Lower, Upper)
type Partition struct {
	Lower int64
	Upper int64
}

// RangeConfig 区间分片参数。Partitions[i] 对应 nodes[i]；
// DefaultNode 为 nodes 中的下标，接收不落在任何区间的值，-1 表示没有默认节点。
type RangeConfig struct {
	Column      string
	Partitions  []Partition
	DefaultNode int
}

// Range 按整数区间分片
type Range struct {
	column     string
	partitions []Partition
	defaultIdx int
	nodes      []DataNode
	name       string
}

var _ Function = (*Range)(nil)

// NewRange 创建区间分片函数
func NewRange(cfg RangeConfig, nodes []DataNode) (*Range, error) {
	column := NormalizeName(cfg.Column)
	if column == "" {
		return nil, xerrors.Wrap(ErrInvalidFunction, "range: no sharding key")
	}
	if len(cfg.Partitions) == 0 {
		return nil, xerrors.Wrap(ErrInvalidFunction, "range: no partition")
	}
	if len(cfg.Partitions) > len(nodes) {
		return nil, xerrors.Wrapf(ErrInvalidFunction, "range: %d partitions but %d data nodes", len(cfg.Partitions), len(nodes))
	}
	if cfg.DefaultNode >= len(nodes) || cfg.DefaultNode < -1 {
		return nil, xerrors.Wrapf(ErrInvalidFunction, "range: default node %d out of range", cfg.DefaultNode)
	}

	parts := append([]Partition(nil), cfg.Partitions...)
	for i, p := range parts {
		if p.Lower >= p.Upper {
			return nil, xerrors.Wrapf(ErrInvalidFunction, "range: empty partition [%d,%d)", p.Lower, p.Upper)
		}
		for _, q := range parts[:i] {
			if p.Lower < q.Upper && q.Lower < p.Upper {
				return nil, xerrors.Wrapf(ErrInvalidFunction, "range: partition [%d,%d) overlaps [%d,%d)", p.Lower, p.Upper, q.Lower, q.Upper)
			}
		}
	}

	var sig strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&sig, "[%d,%d)", p.Lower, p.Upper)
	}
	return &Range{
		column:     column,
		partitions: parts,
		defaultIdx: cfg.DefaultNode,
		nodes:      cloneNodes(nodes),
		name:       fmt.Sprintf("range partitions:%s default:%d", sig.String(), cfg.DefaultNode),
	}, nil
}

func (r *Range) sealed() {}

func (r *Range) Kind() Kind { return KindRange }

func (r *Range) Name() string { return r.name }

func (r *Range) DataNodes() []DataNode { return cloneNodes(r.nodes) }

func (r *Range) Calculate(p Predicates) []DataNode {
	values, found := p.lookup(r.column)
	if !found {
		return r.DataNodes()
	}

	indexes := make([]int, 0, len(values))
	for _, v := range values {
		idx, ok := r.match(v)
		if !ok {
			return r.DataNodes()
		}
		indexes = append(indexes, idx...)
	}
	return pick(r.nodes, indexes)
}

// match 返回与谓词相交的分区下标，非整数谓词返回 ok=false
func (r *Range) match(v RangeVariable) ([]int, bool) {
	if v.Op == OpEqual {
		n, ok := toInt64(v.Value)
		if !ok {
			return nil, false
		}
		for i, p := range r.partitions {
			if n >= p.Lower && n < p.Upper {
				return []int{i}, true
			}
		}
		if r.defaultIdx >= 0 {
			return []int{r.defaultIdx}, true
		}
		return nil, true
	}

	lo, hi, ok := v.intBounds()
	if !ok {
		return nil, false
	}
	if lo > hi {
		return nil, true
	}

	var (
		out     []int
		covered []Partition
	)
	for i, p := range r.partitions {
		// 闭区间 [lo,hi] 与 [Lower,Upper) 相交
		if lo < p.Upper && hi >= p.Lower {
			out = append(out, i)
			covered = append(covered, p)
		}
	}
	if r.defaultIdx >= 0 && !fullyCovered(lo, hi, covered) {
		out = append(out, r.defaultIdx)
	}
	return out, true
}

func fullyCovered(lo, hi int64, parts []Partition) bool {
	sort.Slice(parts, func(i, j int) bool { return parts[i].Lower < parts[j].Lower })
	next := lo
	for _, p := range parts {
		if p.Lower > next {
			return false
		}
		if p.Upper > next {
			next = p.Upper
		}
		if next > hi {
			return true
		}
	}
	return next > hi
}

func (r *Range) IsShardingKey(column string) bool {
	return NormalizeName(column) == r.column
}

func (r *Range) IsShardingDBKey(column string) bool {
	return r.IsShardingKey(column)
}

func (r *Range) IsShardingTableKey(column string) bool {
	return r.IsShardingKey(column)
}

func (r *Range) IsSameDistribution(other Function) bool {
	o, ok := other.(*Range)
	if !ok || o == nil {
		return false
	}
	return r.name == o.name && len(r.nodes) == len(o.nodes)
}

func (r *Range) ERUniqueID() string {
	return fmt.Sprintf("%s nodes:%d", r.name, len(r.nodes))
}
