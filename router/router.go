// Package router 按实例状态为目标集群选择后端实例，实现读写分离。
//
// 写请求只发往状态为 OK 的主库；读请求在健康从库之间轮询，
// 从库全部不可用时回退到主库。健康从库需同时满足：
//   - 实例状态 OK
//   - 复制状态不是 ERROR
//   - 复制延迟未超过阈值
//   - 熔断器未打开（配置了 breaker 时）
//
// 基本使用：
//
//	r := router.New(mgr, router.WithBreaker(brk), router.WithExecutor(pool))
//	_ = r.Update([]router.Cluster{{Name: "c0", Master: "c0-master", Slaves: []string{"c0-slave"}}})
//	instance, _ := r.Select(ctx, "c0", router.ModeRead)
package router

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ceyewan/shardproxy/breaker"
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/connector"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/metrics"
	"github.com/ceyewan/shardproxy/xerrors"
)

const metricSelection = "router_selection_total"

var (
	ErrClusterNotFound     = xerrors.Wrap(xerrors.ErrNotFound, "router: cluster not found")
	ErrNoAvailableInstance = xerrors.Wrap(xerrors.ErrUnavailable, "router: no available instance")
	ErrInvalidCluster      = xerrors.Wrap(xerrors.ErrInvalidInput, "router: invalid cluster")
	ErrNoExecutor          = xerrors.Wrap(xerrors.ErrInvalidInput, "router: no executor configured")
)

// Mode 请求类型
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Cluster 一主多从的复制集群，Slaves 只包含承担读流量的实例
type Cluster struct {
	Name   string
	Master string
	Slaves []string
}

type clusterState struct {
	Cluster
	next atomic.Uint64
}

// Router 读写分离路由，并发安全
type Router struct {
	status   heartbeat.StatusProvider
	breaker  breaker.Breaker
	executor connector.Executor
	logger   clog.Logger
	selected metrics.Counter

	clusters atomic.Pointer[map[string]*clusterState]
}

// New 创建路由器，status 通常为 heartbeat.Manager
func New(status heartbeat.StatusProvider, opts ...Option) *Router {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()

	r := &Router{
		status:   status,
		breaker:  o.breaker,
		executor: o.executor,
		logger:   o.logger,
	}
	if o.executor != nil && o.breaker != nil {
		r.executor = breaker.NewExecutor(o.executor, o.breaker)
	}

	var err error
	if r.selected, err = o.meter.Counter(metricSelection, "Instance selections by cluster, mode and outcome"); err != nil {
		r.logger.Warn("register metric failed", clog.String("metric", metricSelection), clog.Error(err))
		r.selected, _ = metrics.Discard().Counter(metricSelection, "")
	}

	empty := map[string]*clusterState{}
	r.clusters.Store(&empty)
	return r
}

// Update 整体替换集群列表。集群配置不变时保留轮询位置。
func (r *Router) Update(clusters []Cluster) error {
	old := *r.clusters.Load()
	next := make(map[string]*clusterState, len(clusters))
	for _, c := range clusters {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" || c.Master == "" {
			return xerrors.Wrapf(ErrInvalidCluster, "cluster %q requires a name and a master", c.Name)
		}
		if _, dup := next[c.Name]; dup {
			return xerrors.Wrapf(ErrInvalidCluster, "cluster %q listed twice", c.Name)
		}
		st := &clusterState{Cluster: Cluster{Name: c.Name, Master: c.Master, Slaves: append([]string(nil), c.Slaves...)}}
		if prev, ok := old[c.Name]; ok && sameCluster(prev.Cluster, st.Cluster) {
			st = prev
		}
		next[c.Name] = st
	}
	r.clusters.Store(&next)
	r.logger.Info("router clusters updated", clog.Int("clusters", len(next)))
	return nil
}

func sameCluster(a, b Cluster) bool {
	if a.Master != b.Master || len(a.Slaves) != len(b.Slaves) {
		return false
	}
	for i := range a.Slaves {
		if a.Slaves[i] != b.Slaves[i] {
			return false
		}
	}
	return true
}

// Clusters 集群名，按字典序排列
func (r *Router) Clusters() []string {
	m := *r.clusters.Load()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cluster 按名称获取集群
func (r *Router) Cluster(name string) (Cluster, error) {
	c, ok := (*r.clusters.Load())[name]
	if !ok {
		return Cluster{}, xerrors.Wrapf(ErrClusterNotFound, "%s", name)
	}
	return c.Cluster, nil
}

// Select 为集群选择一个后端实例
func (r *Router) Select(ctx context.Context, cluster string, mode Mode) (string, error) {
	instance, err := r.selectInstance(cluster, mode)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		r.logger.Warn("no instance selected",
			clog.String("cluster", cluster),
			clog.String("mode", string(mode)),
			clog.Error(err))
	}
	r.selected.Inc(ctx,
		metrics.L(metrics.LabelCluster, cluster),
		metrics.L(metrics.LabelMode, string(mode)),
		metrics.L(metrics.LabelOutcome, outcome))
	return instance, err
}

func (r *Router) selectInstance(cluster string, mode Mode) (string, error) {
	c, ok := (*r.clusters.Load())[cluster]
	if !ok {
		return "", xerrors.Wrapf(ErrClusterNotFound, "%s", cluster)
	}

	if mode == ModeRead {
		if instance, ok := r.pickSlave(c); ok {
			return instance, nil
		}
	}
	if r.masterAvailable(c.Master) {
		return c.Master, nil
	}
	return "", xerrors.Wrapf(ErrNoAvailableInstance, "cluster %s mode %s", cluster, mode)
}

// pickSlave 从当前轮询位置起寻找第一个可读从库
func (r *Router) pickSlave(c *clusterState) (string, bool) {
	n := uint64(len(c.Slaves))
	if n == 0 {
		return "", false
	}
	start := c.next.Add(1) - 1
	for i := uint64(0); i < n; i++ {
		instance := c.Slaves[(start+i)%n]
		if r.slaveReadable(instance) {
			return instance, true
		}
	}
	return "", false
}

func (r *Router) masterAvailable(instance string) bool {
	st, err := r.status.InstanceStatus(instance)
	return err == nil && st == heartbeat.StatusOK && r.allowed(instance)
}

// slaveReadable 实例状态与复制状态取自同一份快照
func (r *Router) slaveReadable(instance string) bool {
	snap, err := r.status.Snapshot(instance)
	if err != nil || snap.Status != heartbeat.StatusOK {
		return false
	}
	ds := snap.Datasource
	if ds.DBSynStatus == heartbeat.DBSynError || ds.SlaveBehindMaster {
		return false
	}
	return r.allowed(instance)
}

func (r *Router) allowed(instance string) bool {
	return r.breaker == nil || r.breaker.Allow(instance)
}

// Execute 选择实例并执行 sql，返回执行的实例名
func (r *Router) Execute(ctx context.Context, cluster string, mode Mode, sql string) (string, []connector.Row, error) {
	if r.executor == nil {
		return "", nil, ErrNoExecutor
	}
	instance, err := r.Select(ctx, cluster, mode)
	if err != nil {
		return "", nil, err
	}
	rows, err := r.executor.Execute(ctx, instance, sql)
	return instance, rows, err
}
