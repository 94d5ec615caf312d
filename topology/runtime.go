package topology

import (
	"sync"

	"github.com/ceyewan/shardproxy/breaker"
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/connector"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/metadata"
	"github.com/ceyewan/shardproxy/router"
	"github.com/ceyewan/shardproxy/xerrors"
)

// NewConnector 按后端参数创建连接器，不建立连接
func NewConnector(b Backend, opts ...connector.Option) (connector.SQLConnector, error) {
	switch {
	case b.MySQL != nil:
		cfg := *b.MySQL
		return connector.NewMySQL(&cfg, opts...)
	case b.SQLite != nil:
		cfg := *b.SQLite
		return connector.NewSQLite(&cfg, opts...)
	default:
		return nil, xerrors.Wrapf(ErrInvalidTopology, "backend %q has no connection config", b.Name)
	}
}

func sameBackend(a, b Backend) bool {
	if a.Driver != b.Driver {
		return false
	}
	switch {
	case a.MySQL != nil && b.MySQL != nil:
		return *a.MySQL == *b.MySQL
	case a.SQLite != nil && b.SQLite != nil:
		return *a.SQLite == *b.SQLite
	default:
		return false
	}
}

// Runtime 拓扑驱动的运行时组件集合，Apply 把新拓扑整体应用到各组件
type Runtime struct {
	registry  *metadata.Registry
	heartbeat *heartbeat.Manager
	router    *router.Router
	pool      *connector.Pool

	breaker  breaker.Breaker
	connOpts []connector.Option
	logger   clog.Logger

	mu       sync.Mutex
	backends map[string]Backend
}

// NewRuntime 组装运行时，组件由调用方创建并负责关闭
func NewRuntime(registry *metadata.Registry, hb *heartbeat.Manager, rt *router.Router, pool *connector.Pool, opts ...Option) *Runtime {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()

	return &Runtime{
		registry:  registry,
		heartbeat: hb,
		router:    rt,
		pool:      pool,
		breaker:   o.breaker,
		connOpts:  o.connOpts,
		logger:    o.logger,
		backends:  make(map[string]Backend),
	}
}

// Apply 应用新拓扑：
//  1. 创建新增或参数变化的连接器
//  2. 心跳按实例列表做差量调整
//  3. 替换路由集群与元数据快照
//  4. 关闭已下线实例的连接器
//
// 连接器创建失败时不做任何修改。
func (r *Runtime) Apply(topo *Topology) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]Backend, len(topo.Backends))
	var fresh []connector.SQLConnector
	for _, b := range topo.Backends {
		wanted[b.Name] = b
		if old, ok := r.backends[b.Name]; ok && sameBackend(old, b) {
			continue
		}
		c, err := NewConnector(b, r.connOpts...)
		if err != nil {
			for _, f := range fresh {
				_ = f.Close()
			}
			return xerrors.Wrapf(err, "topology: backend %s", b.Name)
		}
		fresh = append(fresh, c)
	}

	for _, c := range fresh {
		if old := r.pool.Add(c); old != nil {
			r.release(old)
		}
	}
	if err := r.heartbeat.Reload(topo.Instances); err != nil {
		return xerrors.Wrap(err, "topology: reload heartbeat")
	}
	if err := r.router.Update(topo.Clusters); err != nil {
		return xerrors.Wrap(err, "topology: update router")
	}
	prev := r.registry.Swap(topo.Snapshot)

	removed := 0
	for name := range r.backends {
		if _, ok := wanted[name]; ok {
			continue
		}
		if c := r.pool.Remove(name); c != nil {
			r.release(c)
		}
		removed++
	}
	r.backends = wanted

	r.logger.Info("topology applied",
		clog.Uint64("generation", topo.Snapshot.Generation()),
		clog.Uint64("previous_generation", prev.Generation()),
		clog.Int("tables", len(topo.Snapshot.Tables())),
		clog.Int("backends", len(wanted)),
		clog.Int("connectors_created", len(fresh)),
		clog.Int("connectors_removed", removed))
	return nil
}

func (r *Runtime) release(c connector.SQLConnector) {
	if err := c.Close(); err != nil {
		r.logger.Warn("close connector failed", clog.String("instance", c.Name()), clog.Error(err))
	}
	if r.breaker != nil {
		r.breaker.Forget(c.Name())
	}
}
