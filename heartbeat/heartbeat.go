// Package heartbeat 周期性探测后端实例，维护实例状态与主从复制状态。
//
// 每个实例对应一个 Flow，Flow 持有实例配置、当前状态快照与解释探测结果的 Strategy。
// Manager 为每个实例运行独立的定时任务：同一实例的探测串行执行，不同实例互不影响。
// 状态以不可变快照整体发布，读者不会看到部分更新。
//
// 状态分两层：
//   - InstanceStatus（OK/ERROR）：探测能否执行成功，只有探测失败才会置为 ERROR
//   - DatasourceStatus：复制状态（NORMAL/ERROR/UNKNOWN）与是否延迟超阈值
//
// 基本使用：
//
//	mgr, _ := heartbeat.NewManager(&heartbeat.Config{Interval: 10 * time.Second}, pool,
//		heartbeat.WithLogger(logger), heartbeat.WithMeter(meter))
//	_, _ = mgr.Register(heartbeat.InstanceConfig{Name: "c0-slave", Cluster: "c0", Role: heartbeat.RoleSlave, ReadAllowed: true, SlaveThreshold: 3})
//	mgr.Start(ctx)
//	defer mgr.Close()
//
//	st, _ := mgr.InstanceStatus("c0-slave")
package heartbeat

import "github.com/ceyewan/shardproxy/xerrors"

// 心跳错误
var (
	ErrInstanceNotFound     = xerrors.Wrap(xerrors.ErrNotFound, "heartbeat: instance not found")
	ErrInstanceExists       = xerrors.Wrap(xerrors.ErrConflict, "heartbeat: instance already registered")
	ErrInvalidInstance      = xerrors.Wrap(xerrors.ErrInvalidInput, "heartbeat: invalid instance config")
	ErrMalformedProbeResult = xerrors.Wrap(xerrors.ErrInvalidInput, "heartbeat: malformed probe result")
	ErrManagerClosed        = xerrors.Wrap(xerrors.ErrUnavailable, "heartbeat: manager closed")
)

// 探测语句
const (
	MasterProbeSQL = "select 1"
	SlaveProbeSQL  = "show slave status"
)

// DBSynStatus 复制状态
type DBSynStatus int

const (
	DBSynUnknown DBSynStatus = iota
	DBSynNormal
	DBSynError
)

func (s DBSynStatus) String() string {
	switch s {
	case DBSynNormal:
		return "NORMAL"
	case DBSynError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText 以名称形式输出到 JSON
func (s DBSynStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InstanceStatus 实例可达状态
type InstanceStatus int

const (
	StatusOK InstanceStatus = iota
	StatusError
)

func (s InstanceStatus) String() string {
	if s == StatusError {
		return "ERROR"
	}
	return "OK"
}

func (s InstanceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DatasourceStatus 复制状态值，每个探测周期整体替换
type DatasourceStatus struct {
	DBSynStatus       DBSynStatus `json:"db_syn_status"`
	SlaveBehindMaster bool        `json:"slave_behind_master"`
}
