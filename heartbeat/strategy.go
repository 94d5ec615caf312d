package heartbeat

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/connector"
	"github.com/ceyewan/shardproxy/xerrors"
)

// Strategy 解释探测结果
type Strategy interface {
	// SQLs 本周期要执行的探测语句
	SQLs(flow *Flow) []string
	// Process 处理探测结果，results 与 SQLs 一一对应。返回错误按探测失败处理。
	Process(flow *Flow, results [][]connector.Row) error
	// OnException 探测失败，可重复调用
	OnException(flow *Flow, err error)
}

// 复制状态列
const (
	colSlaveIORunning      = "Slave_IO_Running"
	colSlaveSQLRunning     = "Slave_SQL_Running"
	colSecondsBehindMaster = "Seconds_Behind_Master"
	colLastIOError         = "Last_IO_Error"
)

// MasterSlaveStrategy MySQL 主从复制探测
type MasterSlaveStrategy struct {
	logger clog.Logger
}

var _ Strategy = (*MasterSlaveStrategy)(nil)

// NewMasterSlaveStrategy 创建主从探测策略
func NewMasterSlaveStrategy(logger clog.Logger) *MasterSlaveStrategy {
	if logger == nil {
		logger = clog.Discard()
	}
	return &MasterSlaveStrategy{logger: logger}
}

// SQLs 主库探活，从库查询复制状态
func (s *MasterSlaveStrategy) SQLs(flow *Flow) []string {
	if flow.Config().IsMaster() {
		return []string{MasterProbeSQL}
	}
	return []string{SlaveProbeSQL}
}

// Process 主库有结果即正常；从库依据 IO/SQL 线程状态与复制延迟判定。
// 复制异常只记录在 DB-sync 子状态，实例状态始终置为 OK。
func (s *MasterSlaveStrategy) Process(flow *Flow, results [][]connector.Row) error {
	cfg := flow.Config()
	var ds DatasourceStatus

	if cfg.IsMaster() && len(results) > 0 {
		ds.DBSynStatus = DBSynNormal
		flow.setProbeResult(ds, StatusOK, 0)
		return nil
	}

	var behind int64
	if len(results) > 0 && len(results[0]) > 0 {
		row := results[0][0]
		io, _ := text(row[colSlaveIORunning])
		sql, _ := text(row[colSlaveSQLRunning])

		switch {
		case io == "Yes" && sql == "Yes":
			ds.DBSynStatus = DBSynNormal
			sec, err := integer(row[colSecondsBehindMaster])
			if err != nil {
				return xerrors.Wrapf(ErrMalformedProbeResult, "%s %s: %v", cfg.Name, colSecondsBehindMaster, err)
			}
			behind = sec
			if sec > cfg.SlaveThreshold {
				ds.SlaveBehindMaster = true
				s.logger.Warn("found master/slave replication delay",
					clog.String("instance", cfg.Name),
					clog.Int64("seconds_behind_master", sec),
					clog.Int64("threshold", cfg.SlaveThreshold))
			}
		case cfg.ReadAllowed:
			lastErr, _ := text(row[colLastIOError])
			s.logger.Error("found master/slave replication error",
				clog.String("instance", cfg.Name),
				clog.String("slave_io_running", io),
				clog.String("slave_sql_running", sql),
				clog.String("last_io_error", lastErr))
			ds.DBSynStatus = DBSynError
		}
	}

	flow.setProbeResult(ds, StatusOK, behind)
	return nil
}

// OnException 探测失败只影响实例状态，复制状态保持上一次的值
func (s *MasterSlaveStrategy) OnException(flow *Flow, err error) {
	s.logger.Warn("heartbeat probe failed", clog.String("instance", flow.Config().Name), clog.Error(err))
	flow.SetInstanceStatus(StatusError, err)
}

func text(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	default:
		return fmt.Sprint(x), true
	}
}

func integer(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, xerrors.New("null value")
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, xerrors.New("value overflows int64")
		}
		return int64(x), nil
	case float64:
		return int64(x), nil
	}
	s, _ := text(v)
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
