package heartbeat

import (
	"sync/atomic"
	"time"
)

// Snapshot 实例状态快照，不可变
type Snapshot struct {
	Instance            string           `json:"instance"`
	Cluster             string           `json:"cluster"`
	Role                Role             `json:"role"`
	ReadAllowed         bool             `json:"read_allowed"`
	Status              InstanceStatus   `json:"status"`
	Datasource          DatasourceStatus `json:"datasource"`
	SecondsBehindMaster int64            `json:"seconds_behind_master"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastError           string           `json:"last_error,omitempty"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Flow 单个实例的心跳状态机。状态只由本实例的探测周期写入，任意协程可读。
type Flow struct {
	cfg        InstanceConfig
	strategy   Strategy
	generation uint64
	removed    atomic.Bool
	state      atomic.Pointer[Snapshot]
}

// NewFlow 创建 Flow，初始状态为 OK，复制状态 UNKNOWN
func NewFlow(cfg InstanceConfig, strategy Strategy) (*Flow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	f := &Flow{cfg: cfg, strategy: strategy}
	f.state.Store(&Snapshot{
		Instance:    cfg.Name,
		Cluster:     cfg.Cluster,
		Role:        cfg.Role,
		ReadAllowed: cfg.ReadAllowed,
		Status:      StatusOK,
		UpdatedAt:   time.Now(),
	})
	return f, nil
}

// Config 实例配置
func (f *Flow) Config() InstanceConfig { return f.cfg }

// Strategy 探测策略
func (f *Flow) Strategy() Strategy { return f.strategy }

// Generation 注册代数，实例被替换后旧 Flow 的代数不再是当前代数
func (f *Flow) Generation() uint64 { return f.generation }

// Removed 实例是否已被移除
func (f *Flow) Removed() bool { return f.removed.Load() }

// Snapshot 当前状态
func (f *Flow) Snapshot() Snapshot { return *f.state.Load() }

// Status 当前实例状态
func (f *Flow) Status() InstanceStatus { return f.state.Load().Status }

// DatasourceStatus 当前复制状态
func (f *Flow) DatasourceStatus() DatasourceStatus { return f.state.Load().Datasource }

// SetStatus 发布新的复制状态与实例状态。实例移除后调用无效。
func (f *Flow) SetStatus(ds DatasourceStatus, status InstanceStatus) {
	f.publish(func(s *Snapshot) { applyStatus(s, ds, status) })
}

// setProbeResult 与 SetStatus 相同，同时记录复制延迟
func (f *Flow) setProbeResult(ds DatasourceStatus, status InstanceStatus, secondsBehind int64) {
	f.publish(func(s *Snapshot) {
		applyStatus(s, ds, status)
		s.SecondsBehindMaster = secondsBehind
	})
}

func applyStatus(s *Snapshot, ds DatasourceStatus, status InstanceStatus) {
	s.Datasource = ds
	s.Status = status
	if status == StatusOK {
		s.ConsecutiveFailures = 0
		s.LastError = ""
	}
}

// SetInstanceStatus 只更新实例状态，复制状态保持上一次的值
func (f *Flow) SetInstanceStatus(status InstanceStatus, cause error) {
	f.publish(func(s *Snapshot) {
		s.Status = status
		if status == StatusError {
			s.ConsecutiveFailures++
			if cause != nil {
				s.LastError = cause.Error()
			}
		} else {
			s.ConsecutiveFailures = 0
			s.LastError = ""
		}
	})
}

// publish 复制当前快照、修改后整体替换
func (f *Flow) publish(mutate func(s *Snapshot)) {
	for {
		if f.removed.Load() {
			return
		}
		old := f.state.Load()
		next := *old
		mutate(&next)
		next.UpdatedAt = time.Now()
		if f.state.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (f *Flow) remove() {
	f.removed.Store(true)
}
