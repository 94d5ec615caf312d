package sharding

import (
	"fmt"
	"strings"

	"github.com/ceyewan/shardproxy/xerrors"
)

// HashConfig 哈希取模分片参数。
// 节点按库优先排列：第 d 个库的第 t 张表位于 d*TableNum+t。
type HashConfig struct {
	DBKeys    []string
	TableKeys []string
	DBNum     int
	TableNum  int
}

// Hash 哈希取模分片。库键与表键相同时按 DBNum*TableNum 整体取模。
type Hash struct {
	cfg       HashConfig
	nodes     []DataNode
	dbKeys    map[string]struct{}
	tableKeys map[string]struct{}
	sameKey   bool
	name      string
}

var _ Function = (*Hash)(nil)

// NewHash 创建哈希分片函数，nodes 数量必须等于 DBNum*TableNum
func NewHash(cfg HashConfig, nodes []DataNode) (*Hash, error) {
	if cfg.DBNum <= 0 {
		cfg.DBNum = 1
	}
	if cfg.TableNum <= 0 {
		cfg.TableNum = 1
	}
	if len(cfg.DBKeys) == 0 && len(cfg.TableKeys) == 0 {
		return nil, xerrors.Wrap(ErrInvalidFunction, "hash: no sharding key")
	}
	if len(cfg.DBKeys) == 0 {
		cfg.DBKeys = cfg.TableKeys
	}
	if len(cfg.TableKeys) == 0 {
		cfg.TableKeys = cfg.DBKeys
	}
	if want := cfg.DBNum * cfg.TableNum; len(nodes) != want {
		return nil, xerrors.Wrapf(ErrInvalidFunction, "hash: expect %d data nodes, got %d", want, len(nodes))
	}

	h := &Hash{
		cfg:       cfg,
		nodes:     cloneNodes(nodes),
		dbKeys:    keySet(cfg.DBKeys),
		tableKeys: keySet(cfg.TableKeys),
	}
	h.sameKey = strings.Join(sortedKeys(h.dbKeys), ",") == strings.Join(sortedKeys(h.tableKeys), ",")
	h.name = fmt.Sprintf("hash dbNum:%d tableNum:%d", cfg.DBNum, cfg.TableNum)
	return h, nil
}

func (h *Hash) sealed() {}

func (h *Hash) Kind() Kind { return KindHash }

func (h *Hash) Name() string { return h.name }

func (h *Hash) DataNodes() []DataNode { return cloneNodes(h.nodes) }

func (h *Hash) Calculate(p Predicates) []DataNode {
	if len(p) == 0 {
		return h.DataNodes()
	}

	total := len(h.nodes)
	if h.sameKey {
		idx, narrowed := hashCandidates(p, h.dbKeys, total)
		if !narrowed {
			return h.DataNodes()
		}
		return pick(h.nodes, idx)
	}

	dbIdx, narrowedDB := hashCandidates(p, h.dbKeys, h.cfg.DBNum)
	if !narrowedDB {
		dbIdx = allIndexes(h.cfg.DBNum)
	}
	tableIdx, narrowedTable := hashCandidates(p, h.tableKeys, h.cfg.TableNum)
	if !narrowedTable {
		tableIdx = allIndexes(h.cfg.TableNum)
	}

	indexes := make([]int, 0, len(dbIdx)*len(tableIdx))
	for _, d := range dbIdx {
		for _, t := range tableIdx {
			indexes = append(indexes, d*h.cfg.TableNum+t)
		}
	}
	return pick(h.nodes, indexes)
}

func (h *Hash) IsShardingKey(column string) bool {
	return h.IsShardingDBKey(column) || h.IsShardingTableKey(column)
}

func (h *Hash) IsShardingDBKey(column string) bool {
	_, ok := h.dbKeys[NormalizeName(column)]
	return ok
}

func (h *Hash) IsShardingTableKey(column string) bool {
	_, ok := h.tableKeys[NormalizeName(column)]
	return ok
}

func (h *Hash) IsSameDistribution(other Function) bool {
	o, ok := other.(*Hash)
	if !ok || o == nil {
		return false
	}
	return h.cfg.DBNum == o.cfg.DBNum && h.cfg.TableNum == o.cfg.TableNum && h.sameKey == o.sameKey
}

func (h *Hash) ERUniqueID() string {
	if h.sameKey {
		return h.name
	}
	return h.name + " split"
}
