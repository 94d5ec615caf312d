package distribution

import (
	"context"
	"strconv"
	"strings"

	"github.com/ceyewan/shardproxy/cache"
	"github.com/ceyewan/shardproxy/metadata"
)

// CatalogSource 提供当前元数据快照，metadata.Registry 即是一种实现
type CatalogSource interface {
	Current() *metadata.Snapshot
}

// Resolver 带计划缓存的分布构建器。
// 缓存键由表名集合与快照代数组成，拓扑重载后旧条目自然失效。
type Resolver struct {
	source CatalogSource
	plans  *cache.Local[string, *Distribution]
}

// NewResolver 创建解析器，plans 为空时不缓存
func NewResolver(source CatalogSource, plans *cache.Local[string, *Distribution]) *Resolver {
	return &Resolver{source: source, plans: plans}
}

// Resolve 在当前快照上构建 names 的分布
func (r *Resolver) Resolve(ctx context.Context, names []string) (*Distribution, error) {
	snapshot := r.source.Current()
	if r.plans == nil {
		return Of(snapshot, names)
	}
	key := planKey(snapshot.Generation(), names)
	return r.plans.GetOrLoad(ctx, key, func(context.Context, string) (*Distribution, error) {
		return Of(snapshot, names)
	})
}

func planKey(generation uint64, names []string) string {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		schema, table, _ := strings.Cut(n, ".")
		normalized = append(normalized, metadata.UniqueName(schema, table))
	}
	// 表名顺序决定主分片表，因此保留原始顺序
	return strconv.FormatUint(generation, 10) + "|" + strings.Join(normalized, ",")
}
