package sharding

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(target string, n int, table string) []DataNode {
	out := make([]DataNode, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, NewDataNode(fmt.Sprintf("%s%d", target, i%2), "db", fmt.Sprintf("%s_%d", table, i)))
	}
	return out
}

func tables(ns []DataNode) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.TableName)
	}
	return out
}

func TestDataNode(t *testing.T) {
	n := NewDataNode(" c0 ", "`DB1`", "\"Orders\"")
	assert.Equal(t, "c0", n.TargetName)
	assert.Equal(t, "c0.db1.orders", n.UniqueName())
	assert.Equal(t, "db1.orders", n.TableUniqueName())
	assert.Equal(t, n.UniqueName(), n.String())
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "user_id", NormalizeName("`USER_ID`"))
	assert.Equal(t, "user_id", NormalizeName(" 'user_id' "))
}

func TestHashCalculate(t *testing.T) {
	h, err := NewHash(HashConfig{DBKeys: []string{"id"}, DBNum: 2, TableNum: 2}, nodes("c", 4, "t"))
	require.NoError(t, err)

	tests := []struct {
		name string
		p    Predicates
		want []string
	}{
		{name: "no predicate", p: nil, want: []string{"t_0", "t_1", "t_2", "t_3"}},
		{name: "unrelated column", p: Predicates{"name": {Eq("x")}}, want: []string{"t_0", "t_1", "t_2", "t_3"}},
		{name: "equal", p: Predicates{"id": {Eq(5)}}, want: []string{"t_1"}},
		{name: "quoted column", p: Predicates{"`ID`": {Eq(int64(6))}}, want: []string{"t_2"}},
		{name: "numeric string", p: Predicates{"id": {Eq("7")}}, want: []string{"t_3"}},
		{name: "in list", p: Predicates{"id": {Eq(3), Eq(4), Eq(8)}}, want: []string{"t_0", "t_3"}},
		{name: "small range", p: Predicates{"id": {Between(1, 2)}}, want: []string{"t_1", "t_2"}},
		{name: "exclusive range", p: Predicates{"id": {NewInterval(1, false, 3, false)}}, want: []string{"t_2"}},
		{name: "wide range", p: Predicates{"id": {Between(0, 100)}}, want: []string{"t_0", "t_1", "t_2", "t_3"}},
		{name: "empty range", p: Predicates{"id": {NewInterval(3, false, 3, false)}}, want: []string{}},
		{name: "contradiction", p: Predicates{"id": {}}, want: []string{}},
		{name: "non numeric range", p: Predicates{"id": {Between("a", "z")}}, want: []string{"t_0", "t_1", "t_2", "t_3"}},
		{name: "negative", p: Predicates{"id": {Eq(-1)}}, want: []string{"t_3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tables(h.Calculate(tt.p)))
		})
	}
}

func TestHashSplitKeys(t *testing.T) {
	h, err := NewHash(HashConfig{DBKeys: []string{"uid"}, TableKeys: []string{"oid"}, DBNum: 2, TableNum: 3}, nodes("c", 6, "t"))
	require.NoError(t, err)

	assert.Equal(t, []string{"t_3", "t_4", "t_5"}, tables(h.Calculate(Predicates{"uid": {Eq(1)}})))
	assert.Equal(t, []string{"t_2", "t_5"}, tables(h.Calculate(Predicates{"oid": {Eq(2)}})))
	assert.Equal(t, []string{"t_5"}, tables(h.Calculate(Predicates{"uid": {Eq(1)}, "oid": {Eq(5)}})))

	assert.True(t, h.IsShardingDBKey("UID"))
	assert.False(t, h.IsShardingTableKey("uid"))
	assert.True(t, h.IsShardingTableKey("oid"))
	assert.True(t, h.IsShardingKey("oid"))
	assert.False(t, h.IsShardingKey("name"))
}

func TestHashDeterministicStrings(t *testing.T) {
	h, err := NewHash(HashConfig{DBKeys: []string{"name"}, DBNum: 4, TableNum: 1}, nodes("c", 4, "t"))
	require.NoError(t, err)

	p := Predicates{"name": {Eq("alice"), Eq([]byte("bob"))}}
	first := h.Calculate(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, h.Calculate(p))
	}
	assert.NotEmpty(t, first)
	assert.Equal(t, h.Calculate(Predicates{"name": {Eq("bob")}}), h.Calculate(Predicates{"name": {Eq([]byte("bob"))}}))
}

func TestHashValidation(t *testing.T) {
	_, err := NewHash(HashConfig{DBNum: 2}, nodes("c", 2, "t"))
	assert.ErrorIs(t, err, ErrInvalidFunction)

	_, err = NewHash(HashConfig{DBKeys: []string{"id"}, DBNum: 2, TableNum: 2}, nodes("c", 3, "t"))
	assert.ErrorIs(t, err, ErrInvalidFunction)
}

func TestHashSameDistribution(t *testing.T) {
	a, _ := NewHash(HashConfig{DBKeys: []string{"id"}, DBNum: 2, TableNum: 2}, nodes("c", 4, "a"))
	b, _ := NewHash(HashConfig{DBKeys: []string{"order_id"}, DBNum: 2, TableNum: 2}, nodes("c", 4, "b"))
	c, _ := NewHash(HashConfig{DBKeys: []string{"id"}, DBNum: 1, TableNum: 4}, nodes("c", 4, "c"))
	r, _ := NewRange(RangeConfig{Column: "id", Partitions: []Partition{{0, 10}}, DefaultNode: -1}, nodes("c", 1, "r"))

	assert.True(t, a.IsSameDistribution(b))
	assert.Equal(t, a.ERUniqueID(), b.ERUniqueID())
	assert.False(t, a.IsSameDistribution(c))
	assert.False(t, a.IsSameDistribution(r))
	assert.False(t, a.IsSameDistribution(nil))
	assert.Equal(t, KindHash, a.Kind())
}

func TestRangeCalculate(t *testing.T) {
	r, err := NewRange(RangeConfig{
		Column:      "age",
		Partitions:  []Partition{{0, 10}, {10, 20}, {20, 30}},
		DefaultNode: 3,
	}, nodes("c", 4, "t"))
	require.NoError(t, err)

	tests := []struct {
		name string
		p    Predicates
		want []string
	}{
		{name: "no predicate", p: Predicates{}, want: []string{"t_0", "t_1", "t_2", "t_3"}},
		{name: "equal", p: Predicates{"age": {Eq(15)}}, want: []string{"t_1"}},
		{name: "upper bound exclusive", p: Predicates{"age": {Eq(20)}}, want: []string{"t_2"}},
		{name: "default", p: Predicates{"age": {Eq(99)}}, want: []string{"t_3"}},
		{name: "covered range", p: Predicates{"age": {Between(5, 25)}}, want: []string{"t_0", "t_1", "t_2"}},
		{name: "range spilling to default", p: Predicates{"age": {Between(25, 40)}}, want: []string{"t_2", "t_3"}},
		{name: "exclusive range", p: Predicates{"age": {NewInterval(9, false, 10, false)}}, want: []string{}},
		{name: "non numeric", p: Predicates{"age": {Eq("old")}}, want: []string{"t_0", "t_1", "t_2", "t_3"}},
		{name: "contradiction", p: Predicates{"age": {}}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tables(r.Calculate(tt.p)))
		})
	}
}

func TestRangeWithoutDefault(t *testing.T) {
	r, err := NewRange(RangeConfig{Column: "age", Partitions: []Partition{{0, 10}}, DefaultNode: -1}, nodes("c", 1, "t"))
	require.NoError(t, err)

	assert.Empty(t, r.Calculate(Predicates{"age": {Eq(50)}}))
	assert.True(t, r.IsShardingDBKey("AGE"))
	assert.True(t, r.IsShardingTableKey("age"))
}

func TestRangeValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  RangeConfig
		n    int
	}{
		{name: "no column", cfg: RangeConfig{Partitions: []Partition{{0, 1}}, DefaultNode: -1}, n: 1},
		{name: "no partition", cfg: RangeConfig{Column: "a", DefaultNode: -1}, n: 1},
		{name: "too few nodes", cfg: RangeConfig{Column: "a", Partitions: []Partition{{0, 1}, {1, 2}}, DefaultNode: -1}, n: 1},
		{name: "empty partition", cfg: RangeConfig{Column: "a", Partitions: []Partition{{1, 1}}, DefaultNode: -1}, n: 1},
		{name: "overlap", cfg: RangeConfig{Column: "a", Partitions: []Partition{{0, 5}, {4, 8}}, DefaultNode: -1}, n: 2},
		{name: "bad default", cfg: RangeConfig{Column: "a", Partitions: []Partition{{0, 5}}, DefaultNode: 3}, n: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRange(tt.cfg, nodes("c", tt.n, "t"))
			assert.ErrorIs(t, err, ErrInvalidFunction)
		})
	}
}

func TestAutoModHash(t *testing.T) {
	a, err := NewAuto(AutoConfig{
		DBNum:       2,
		TableNum:    2,
		DBMethod:    "mod_hash(user_id)",
		TableMethod: "mod_hash(user_id)",
	}, nodes("c", 4, "t"))
	require.NoError(t, err)

	assert.Equal(t, "dbNum:2 tableNum:2 dbMethod:mod_hash(user_id) tableMethod:mod_hash(user_id)", a.Name())
	assert.Equal(t, a.Name(), a.ERUniqueID())
	assert.True(t, a.IsShardingDBKey("`USER_ID`"))
	assert.True(t, a.IsShardingTableKey("user_id"))
	assert.Equal(t, []string{"t_1"}, tables(a.Calculate(Predicates{"user_id": {Eq(5)}})))
	assert.Len(t, a.Calculate(nil), 4)
}

func TestAutoCustomFunction(t *testing.T) {
	all := nodes("c", 3, "t")
	a, err := NewAuto(AutoConfig{
		DBNum:       1,
		TableNum:    3,
		DBMethod:    "custom",
		TableMethod: "last(id)",
		Fn: func(p Predicates, ns []DataNode) []DataNode {
			if _, ok := p["id"]; !ok {
				return nil
			}
			return []DataNode{ns[2], ns[0], ns[2]}
		},
	}, all)
	require.NoError(t, err)

	assert.Equal(t, []string{"t_0", "t_2"}, tables(a.Calculate(Predicates{"id": {Eq(1)}})))
	assert.Len(t, a.Calculate(Predicates{"name": {Eq(1)}}), 3)
	assert.True(t, a.IsShardingTableKey("id"))
	assert.False(t, a.IsShardingDBKey("id"))
}

func TestAutoSameDistribution(t *testing.T) {
	cfg := AutoConfig{DBNum: 2, TableNum: 1, DBMethod: "mod_hash(id)", TableMethod: "mod_hash(id)"}
	a, _ := NewAuto(cfg, nodes("c", 2, "a"))
	b, _ := NewAuto(cfg, nodes("c", 2, "b"))
	cfg.DBNum, cfg.TableNum = 1, 2
	c, _ := NewAuto(cfg, nodes("c", 2, "c"))
	h, _ := NewHash(HashConfig{DBKeys: []string{"id"}, DBNum: 2, TableNum: 1}, nodes("c", 2, "h"))

	assert.True(t, a.IsSameDistribution(b))
	assert.False(t, a.IsSameDistribution(c))
	assert.False(t, a.IsSameDistribution(h))
	assert.False(t, h.IsSameDistribution(a))
}

func TestAutoValidation(t *testing.T) {
	_, err := NewAuto(AutoConfig{DBNum: 0, TableNum: 1}, nodes("c", 1, "t"))
	assert.ErrorIs(t, err, ErrInvalidFunction)

	_, err = NewAuto(AutoConfig{DBNum: 1, TableNum: 1, DBMethod: "week(d)", TableMethod: "week(d)"}, nodes("c", 1, "t"))
	assert.ErrorIs(t, err, ErrInvalidFunction)
}

func TestRangeVariableString(t *testing.T) {
	assert.Equal(t, "=3", Eq(3).String())
	assert.Equal(t, "[1,2]", Between(1, 2).String())
	assert.Equal(t, "(1,2)", NewInterval(1, false, 2, false).String())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "hash", KindHash.String())
	assert.Equal(t, "range", KindRange.String())
	assert.Equal(t, "auto", KindAuto.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
