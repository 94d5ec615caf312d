// Package sharding 定义物理分片节点与分片函数。
//
// 分片函数把 "列名 → 取值集合" 形式的谓词映射为可能包含匹配行的 DataNode 列表：
//   - 谓词中没有分片列：返回全部节点（全表扫描）
//   - 分片列的取值集合为空：谓词自相矛盾，返回空列表
//
// 函数族是封闭的（Hash、Range、Auto），调用方可以对 Kind 做穷举匹配。
package sharding

import (
	"sort"
	"strings"

	"github.com/ceyewan/shardproxy/xerrors"
)

// ErrInvalidFunction 分片函数参数非法
var ErrInvalidFunction = xerrors.Wrap(xerrors.ErrInvalidInput, "sharding: invalid function")

// Kind 分片函数类型
type Kind int

const (
	KindHash Kind = iota + 1
	KindRange
	KindAuto
)

func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindRange:
		return "range"
	case KindAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// Predicates 分片列谓词：列内取值为"或"关系，列之间为"与"关系。
// 列存在但取值集合为空表示谓词不可满足。
type Predicates map[string][]RangeVariable

// Function 分片函数
type Function interface {
	Kind() Kind
	// Name 函数签名，同一签名的函数数据分布相同
	Name() string
	// DataNodes 返回全部节点，顺序即规范顺序
	DataNodes() []DataNode
	// Calculate 返回可能包含匹配行的节点，按规范顺序排列。结果是确定的。
	Calculate(p Predicates) []DataNode

	IsShardingKey(column string) bool
	IsShardingDBKey(column string) bool
	IsShardingTableKey(column string) bool

	// IsSameDistribution 两个函数是否同类型且参数一致，仅用于判断 join 能否下推
	IsSameDistribution(other Function) bool
	// ERUniqueID ER 分组标识，分布相同的表落在同一组
	ERUniqueID() string

	sealed()
}

// NormalizeName 去掉引号并转小写，用于列名与表名比较
func NormalizeName(name string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(name), "`\"'"))
}

func keySet(columns []string) map[string]struct{} {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if n := NormalizeName(c); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lookup 按规范化列名查找谓词，多个写法指向同一列时合并
func (p Predicates) lookup(column string) ([]RangeVariable, bool) {
	var (
		values []RangeVariable
		found  bool
	)
	for name, vs := range p {
		if NormalizeName(name) == column {
			values = append(values, vs...)
			found = true
		}
	}
	return values, found
}

// pick 按下标集合从规范列表取节点，结果有序且去重
func pick(nodes []DataNode, indexes []int) []DataNode {
	seen := make(map[int]struct{}, len(indexes))
	uniq := make([]int, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(nodes) {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		uniq = append(uniq, i)
	}
	sort.Ints(uniq)

	out := make([]DataNode, 0, len(uniq))
	for _, i := range uniq {
		out = append(out, nodes[i])
	}
	return out
}

func allIndexes(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func cloneNodes(nodes []DataNode) []DataNode {
	return append([]DataNode(nil), nodes...)
}
