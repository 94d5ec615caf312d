package sharding

import (
	"fmt"
	"strings"

	"github.com/ceyewan/shardproxy/xerrors"
)

// AutoFunc 自定义分片计算。返回 nil 表示无法缩小范围，取全部节点。
type AutoFunc func(p Predicates, nodes []DataNode) []DataNode

// AutoConfig 自动分片参数。方法形如 "mod_hash(user_id)"，
// 未显式给出分片键时从方法括号内解析。
type AutoConfig struct {
	DBNum       int
	TableNum    int
	DBMethod    string
	TableMethod string
	DBKeys      []string
	TableKeys   []string
	// Fn 为空时按 mod_hash 语义计算
	Fn AutoFunc
}

// Auto 由用户函数实现的分片，分布由声明的签名决定
type Auto struct {
	dbKeys    map[string]struct{}
	tableKeys map[string]struct{}
	nodes     []DataNode
	fn        AutoFunc
	name      string
}

var _ Function = (*Auto)(nil)

// NewAuto 创建自动分片函数
func NewAuto(cfg AutoConfig, nodes []DataNode) (*Auto, error) {
	if cfg.DBNum <= 0 || cfg.TableNum <= 0 {
		return nil, xerrors.Wrapf(ErrInvalidFunction, "auto: dbNum %d tableNum %d", cfg.DBNum, cfg.TableNum)
	}
	if len(cfg.DBKeys) == 0 {
		cfg.DBKeys = methodColumns(cfg.DBMethod)
	}
	if len(cfg.TableKeys) == 0 {
		cfg.TableKeys = methodColumns(cfg.TableMethod)
	}
	if len(nodes) == 0 {
		return nil, xerrors.Wrap(ErrInvalidFunction, "auto: no data node")
	}

	a := &Auto{
		dbKeys:    keySet(cfg.DBKeys),
		tableKeys: keySet(cfg.TableKeys),
		nodes:     cloneNodes(nodes),
		fn:        cfg.Fn,
		name: fmt.Sprintf("dbNum:%d tableNum:%d dbMethod:%s tableMethod:%s",
			cfg.DBNum, cfg.TableNum, cfg.DBMethod, cfg.TableMethod),
	}

	if a.fn == nil {
		if !isModHash(cfg.DBMethod) || !isModHash(cfg.TableMethod) {
			return nil, xerrors.Wrapf(ErrInvalidFunction, "auto: unsupported method %q/%q without function", cfg.DBMethod, cfg.TableMethod)
		}
		h, err := NewHash(HashConfig{
			DBKeys:    cfg.DBKeys,
			TableKeys: cfg.TableKeys,
			DBNum:     cfg.DBNum,
			TableNum:  cfg.TableNum,
		}, nodes)
		if err != nil {
			return nil, xerrors.Wrap(err, "auto")
		}
		a.fn = func(p Predicates, _ []DataNode) []DataNode { return h.Calculate(p) }
	}
	return a, nil
}

func isModHash(method string) bool {
	m := strings.ToLower(strings.TrimSpace(method))
	return strings.HasPrefix(m, "mod_hash(") || m == "mod_hash"
}

// methodColumns 解析 "method(a,b)" 中的列名
func methodColumns(method string) []string {
	open := strings.Index(method, "(")
	end := strings.LastIndex(method, ")")
	if open < 0 || end <= open {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(method[open+1:end], ",") {
		if c = NormalizeName(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func (a *Auto) sealed() {}

func (a *Auto) Kind() Kind { return KindAuto }

func (a *Auto) Name() string { return a.name }

func (a *Auto) DataNodes() []DataNode { return cloneNodes(a.nodes) }

func (a *Auto) Calculate(p Predicates) []DataNode {
	if len(p) == 0 {
		return a.DataNodes()
	}
	out := a.fn(p, a.DataNodes())
	if out == nil {
		return a.DataNodes()
	}

	// 结果统一按规范顺序输出
	index := make(map[string]int, len(a.nodes))
	for i, n := range a.nodes {
		index[n.UniqueName()] = i
	}
	indexes := make([]int, 0, len(out))
	for _, n := range out {
		if i, ok := index[n.UniqueName()]; ok {
			indexes = append(indexes, i)
		}
	}
	return pick(a.nodes, indexes)
}

func (a *Auto) IsShardingKey(column string) bool {
	return a.IsShardingDBKey(column) || a.IsShardingTableKey(column)
}

func (a *Auto) IsShardingDBKey(column string) bool {
	_, ok := a.dbKeys[NormalizeName(column)]
	return ok
}

func (a *Auto) IsShardingTableKey(column string) bool {
	_, ok := a.tableKeys[NormalizeName(column)]
	return ok
}

func (a *Auto) IsSameDistribution(other Function) bool {
	o, ok := other.(*Auto)
	if !ok || o == nil {
		return false
	}
	return a.name == o.name
}

func (a *Auto) ERUniqueID() string { return a.name }
