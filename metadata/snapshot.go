package metadata

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ceyewan/shardproxy/xerrors"
)

// Catalog 分布计算所需的元数据视图
type Catalog interface {
	Lookup(schema, table string) (Table, error)
	// ERGroup 返回同一 ER 分组的分片表，按唯一名排序
	ERGroup(erUniqueID string) []*ShardingTable
	// Generation 快照代数，每次整体替换递增
	Generation() uint64
}

// Snapshot 不可变的逻辑表目录
type Snapshot struct {
	generation uint64
	tables     map[string]Table
	erGroups   map[string][]*ShardingTable
}

var _ Catalog = (*Snapshot)(nil)

// NewSnapshot 由逻辑表构建快照，同名表返回 ErrDuplicateTable
func NewSnapshot(tables ...Table) (*Snapshot, error) {
	s := &Snapshot{
		tables:   make(map[string]Table, len(tables)),
		erGroups: make(map[string][]*ShardingTable),
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		name := t.UniqueName()
		if _, ok := s.tables[name]; ok {
			return nil, xerrors.Wrapf(ErrDuplicateTable, "%s", name)
		}
		s.tables[name] = t
		if st, ok := t.(*ShardingTable); ok {
			id := st.ERUniqueID()
			s.erGroups[id] = append(s.erGroups[id], st)
		}
	}
	for _, group := range s.erGroups {
		sort.Slice(group, func(i, j int) bool { return group[i].UniqueName() < group[j].UniqueName() })
	}
	return s, nil
}

// Lookup 查找逻辑表
func (s *Snapshot) Lookup(schema, table string) (Table, error) {
	name := UniqueName(schema, table)
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	return nil, xerrors.Wrapf(ErrTableNotFound, "%s", name)
}

// LookupName 按 "schema.table" 查找逻辑表
func (s *Snapshot) LookupName(uniqueName string) (Table, error) {
	schema, table, ok := strings.Cut(uniqueName, ".")
	if !ok {
		return nil, xerrors.Wrapf(ErrTableNotFound, "malformed table name %q", uniqueName)
	}
	return s.Lookup(schema, table)
}

func (s *Snapshot) ERGroup(erUniqueID string) []*ShardingTable {
	return append([]*ShardingTable(nil), s.erGroups[erUniqueID]...)
}

// Tables 返回全部逻辑表，按唯一名排序
func (s *Snapshot) Tables() []Table {
	out := make([]Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueName() < out[j].UniqueName() })
	return out
}

func (s *Snapshot) Generation() uint64 { return s.generation }

// Registry 持有当前快照，Swap 整体替换
type Registry struct {
	current atomic.Pointer[Snapshot]
	gen     atomic.Uint64
}

// NewRegistry 创建注册表，initial 为空时使用空快照
func NewRegistry(initial *Snapshot) *Registry {
	r := &Registry{}
	if initial == nil {
		initial, _ = NewSnapshot()
	}
	r.Swap(initial)
	return r
}

// Current 当前快照
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap 发布新快照并返回旧快照。next 发布后不得再被修改或重复发布。
func (r *Registry) Swap(next *Snapshot) *Snapshot {
	next.generation = r.gen.Add(1)
	return r.current.Swap(next)
}

// Lookup 在当前快照上查找
func (r *Registry) Lookup(schema, table string) (Table, error) {
	return r.Current().Lookup(schema, table)
}
