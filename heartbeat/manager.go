package heartbeat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/connector"
	"github.com/ceyewan/shardproxy/xerrors"
)

// StatusProvider 路由层读取实例状态的接口。
// 需要同时判断实例状态和复制状态时使用 Snapshot，两者来自同一次探测。
type StatusProvider interface {
	InstanceStatus(instance string) (InstanceStatus, error)
	DBSyncStatus(instance string) (DatasourceStatus, error)
	Snapshot(instance string) (Snapshot, error)
}

type task struct {
	flow   *Flow
	cancel context.CancelFunc
	done   chan struct{}

	// probing 保证同一实例的探测不重叠，定时任务与 Probe 共用
	probing sync.Mutex
}

// Manager 为每个实例调度心跳任务
type Manager struct {
	cfg      Config
	executor connector.Executor
	opts     options
	metrics  *probeMetrics

	mu         sync.RWMutex
	logger     clog.Logger
	tasks      map[string]*task
	generation uint64
	runCtx     context.Context
	runCancel  context.CancelFunc
	closed     bool
}

var _ StatusProvider = (*Manager)(nil)

// NewManager 创建心跳管理器，executor 执行探测语句
func NewManager(cfg *Config, executor connector.Executor, opts ...Option) (*Manager, error) {
	if executor == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "heartbeat: nil executor")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()
	if o.strategy == nil {
		logger := o.logger
		o.strategy = func(InstanceConfig) Strategy { return NewMasterSlaveStrategy(logger) }
	}

	return &Manager{
		cfg:      c,
		executor: executor,
		opts:     o,
		logger:   o.logger,
		metrics:  newProbeMetrics(o.meter, o.logger),
		tasks:    make(map[string]*task),
	}, nil
}

// Start 启动已注册实例的定时探测，之后注册的实例立即开始调度。ctx 结束时全部停止。
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.runCtx != nil {
		return
	}
	m.runCtx, m.runCancel = context.WithCancel(ctx)
	m.logger = m.logger.With(clog.String("run_id", uuid.NewString()))
	m.logger.Info("heartbeat manager started",
		clog.Int("instances", len(m.tasks)),
		clog.Duration("interval", m.cfg.Interval))

	for _, t := range m.tasks {
		m.schedule(t)
	}
}

// Close 停止所有任务并等待正在执行的探测结束
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.runCancel != nil {
		m.runCancel()
	}
	tasks := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		if t.done != nil {
			<-t.done
		}
	}
	m.log().Info("heartbeat manager stopped")
	return nil
}

// Register 注册实例，同名实例已存在返回 ErrInstanceExists
func (m *Manager) Register(cfg InstanceConfig) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if _, ok := m.tasks[cfg.Name]; ok {
		return nil, xerrors.Wrapf(ErrInstanceExists, "%s", cfg.Name)
	}
	return m.registerLocked(cfg)
}

func (m *Manager) registerLocked(cfg InstanceConfig) (*Flow, error) {
	flow, err := NewFlow(cfg, m.opts.strategy(cfg))
	if err != nil {
		return nil, err
	}
	m.generation++
	flow.generation = m.generation

	t := &task{flow: flow}
	m.tasks[flow.cfg.Name] = t
	if m.runCtx != nil {
		m.schedule(t)
	}
	m.metrics.observe(context.Background(), flow.Snapshot())
	m.logger.Info("heartbeat instance registered",
		clog.String("instance", flow.cfg.Name),
		clog.String("cluster", flow.cfg.Cluster),
		clog.String("role", string(flow.cfg.Role)))
	return flow, nil
}

// Remove 注销实例并取消定时任务。正在执行的探测结果会被丢弃。
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[name]; !ok {
		return xerrors.Wrapf(ErrInstanceNotFound, "%s", name)
	}
	m.removeLocked(name)
	return nil
}

func (m *Manager) removeLocked(name string) {
	t := m.tasks[name]
	delete(m.tasks, name)
	t.flow.remove()
	if t.cancel != nil {
		t.cancel()
	}
	m.logger.Info("heartbeat instance removed", clog.String("instance", name))
}

// Reload 按新的实例列表调整：移除消失的实例，替换配置变化的实例，注册新实例。
// 配置未变的实例保留现有状态。
func (m *Manager) Reload(instances []InstanceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	wanted := make(map[string]InstanceConfig, len(instances))
	for _, cfg := range instances {
		if err := cfg.validate(); err != nil {
			return err
		}
		if _, dup := wanted[cfg.Name]; dup {
			return xerrors.Wrapf(ErrInstanceExists, "%s listed twice", cfg.Name)
		}
		wanted[cfg.Name] = cfg
	}

	var added, removed, replaced int
	for name, t := range m.tasks {
		cfg, ok := wanted[name]
		switch {
		case !ok:
			m.removeLocked(name)
			removed++
		case cfg != t.flow.cfg:
			m.removeLocked(name)
			replaced++
		default:
			delete(wanted, name)
		}
	}
	for _, cfg := range wanted {
		if _, err := m.registerLocked(cfg); err != nil {
			return err
		}
		added++
	}

	m.logger.Info("heartbeat instances reloaded",
		clog.Int("added", added-replaced),
		clog.Int("removed", removed),
		clog.Int("replaced", replaced))
	return nil
}

// schedule 为实例启动独立协程，同一实例的探测串行执行
func (m *Manager) schedule(t *task) {
	ctx, cancel := context.WithCancel(m.runCtx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.probe(ctx, t)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx, t)
			}
		}
	}()
}

// Probe 立即对实例执行一次探测。定时探测正在进行时先等待其结束。
func (m *Manager) Probe(ctx context.Context, name string) (Snapshot, error) {
	t, err := m.task(name)
	if err != nil {
		return Snapshot{}, err
	}
	m.probe(ctx, t)
	return t.flow.Snapshot(), nil
}

func (m *Manager) probe(ctx context.Context, t *task) {
	t.probing.Lock()
	defer t.probing.Unlock()

	flow := t.flow
	start := time.Now()
	err := m.runProbe(ctx, flow)

	// 执行期间实例被移除或替换，丢弃结果
	if !m.isCurrent(flow) {
		m.log().Debug("discard probe result of removed instance", clog.String("instance", flow.cfg.Name))
		return
	}
	if err != nil {
		flow.Strategy().OnException(flow, err)
	}
	m.metrics.record(ctx, flow.Snapshot(), err, time.Since(start))
}

// runProbe 执行探测并交给策略处理，panic 也转为错误，保证定时任务不会退出
func (m *Manager) runProbe(ctx context.Context, flow *Flow) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Wrapf(ErrMalformedProbeResult, "panic: %v", r)
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	strategy := flow.Strategy()
	sqls := strategy.SQLs(flow)
	results := make([][]connector.Row, 0, len(sqls))
	for _, sql := range sqls {
		rows, err := m.executor.Execute(probeCtx, flow.cfg.Name, sql)
		if err != nil {
			return xerrors.Wrapf(err, "probe %q", sql)
		}
		results = append(results, rows)
	}

	if !m.isCurrent(flow) {
		return nil
	}
	return strategy.Process(flow, results)
}

func (m *Manager) isCurrent(flow *Flow) bool {
	if flow.Removed() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[flow.cfg.Name]
	return ok && t.flow.generation == flow.generation
}

func (m *Manager) task(name string) (*task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[name]
	if !ok {
		return nil, xerrors.Wrapf(ErrInstanceNotFound, "%s", name)
	}
	return t, nil
}

func (m *Manager) flow(name string) (*Flow, error) {
	t, err := m.task(name)
	if err != nil {
		return nil, err
	}
	return t.flow, nil
}

// log 返回当前日志记录器，Start 之后带 run_id
func (m *Manager) log() clog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Flow 按实例名获取 Flow
func (m *Manager) Flow(name string) (*Flow, error) {
	return m.flow(name)
}

// InstanceStatus 实例状态
func (m *Manager) InstanceStatus(instance string) (InstanceStatus, error) {
	f, err := m.flow(instance)
	if err != nil {
		return StatusError, err
	}
	return f.Status(), nil
}

// DBSyncStatus 复制状态
func (m *Manager) DBSyncStatus(instance string) (DatasourceStatus, error) {
	f, err := m.flow(instance)
	if err != nil {
		return DatasourceStatus{}, err
	}
	return f.DatasourceStatus(), nil
}

// Snapshot 单个实例的状态快照
func (m *Manager) Snapshot(instance string) (Snapshot, error) {
	f, err := m.flow(instance)
	if err != nil {
		return Snapshot{}, err
	}
	return f.Snapshot(), nil
}

// Snapshots 所有实例的状态快照，按实例名排序
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.flow.Snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func (m *Manager) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("heartbeat.Manager{instances:%d interval:%s}", len(m.tasks), m.cfg.Interval)
}
