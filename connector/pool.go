package connector

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
	"github.com/ceyewan/shardproxy/xerrors"
)

const (
	metricQueryTotal    = "connector_query_total"
	metricQueryDuration = "connector_query_duration_seconds"
)

// Pool 按后端实例名管理 SQL 连接器，实现 Executor。
//
// 连接器在第一次执行时按需 Connect，因此后端不可用时注册仍然成功，
// 由心跳探测把失败转成实例状态。
type Pool struct {
	mu         sync.RWMutex
	connectors map[string]SQLConnector

	logger   clog.Logger
	total    metrics.Counter
	duration metrics.Histogram
}

var _ Executor = (*Pool)(nil)

// NewPool 创建空的连接器池
func NewPool(opts ...Option) *Pool {
	opt := newOptions(opts...)
	p := &Pool{
		connectors: make(map[string]SQLConnector),
		logger:     opt.logger.With(clog.String("component", "pool")),
	}

	var err error
	if p.total, err = opt.meter.Counter(metricQueryTotal, "SQL statements executed per backend instance"); err != nil {
		p.logger.Warn("register metric failed", clog.String("metric", metricQueryTotal), clog.Error(err))
		p.total, _ = metrics.Discard().Counter(metricQueryTotal, "")
	}
	if p.duration, err = opt.meter.Histogram(metricQueryDuration, "SQL statement latency per backend instance", metrics.WithUnit("s")); err != nil {
		p.logger.Warn("register metric failed", clog.String("metric", metricQueryDuration), clog.Error(err))
		p.duration, _ = metrics.Discard().Histogram(metricQueryDuration, "")
	}
	return p
}

// Add 注册连接器，同名连接器会被替换，返回被替换的旧连接器（可能为 nil）
func (p *Pool) Add(c SQLConnector) SQLConnector {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.connectors[c.Name()]
	p.connectors[c.Name()] = c
	p.logger.Debug("connector registered", clog.String("instance", c.Name()))
	return old
}

// Remove 注销连接器并返回它，调用方负责 Close
func (p *Pool) Remove(name string) SQLConnector {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.connectors[name]
	delete(p.connectors, name)
	return c
}

// Get 按实例名获取连接器
func (p *Pool) Get(name string) (SQLConnector, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.connectors[name]
	return c, ok
}

// Names 返回已注册的实例名，按字典序排列
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.connectors))
	for name := range p.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute 在 instance 上执行 sql，结果每行以列名为键
func (p *Pool) Execute(ctx context.Context, instance string, query string) ([]Row, error) {
	c, ok := p.Get(instance)
	if !ok {
		return nil, xerrors.Wrapf(ErrUnknownTarget, "instance %q", instance)
	}

	start := time.Now()
	rows, err := p.execute(ctx, c, query)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	p.total.Inc(ctx, metrics.L(metrics.LabelInstance, instance), metrics.L(metrics.LabelOutcome, outcome))
	p.duration.Record(ctx, time.Since(start).Seconds(), metrics.L(metrics.LabelInstance, instance))

	return rows, err
}

func (p *Pool) execute(ctx context.Context, c SQLConnector, query string) ([]Row, error) {
	db := c.GetClient()
	if db == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		db = c.GetClient()
		if db == nil {
			return nil, xerrors.Wrapf(ErrClientNil, "instance %q", c.Name())
		}
	}

	rows, err := db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, xerrors.Wrapf(ErrQuery, "instance %q: %v", c.Name(), err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, xerrors.Wrapf(ErrQuery, "instance %q: %v", c.Name(), err)
	}
	return out, nil
}

// scanRows 按列名收集结果。驱动返回的 []byte 转为 string，
// 空结果集返回长度为 0 的切片而不是 nil。
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case sql.RawBytes:
		return string(x)
	default:
		return v
	}
}

// HealthCheck 检查所有连接器，返回合并后的错误
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.RLock()
	conns := make([]SQLConnector, 0, len(p.connectors))
	for _, c := range p.connectors {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	var errs []error
	for _, c := range conns {
		if err := c.HealthCheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return xerrors.Combine(errs...)
}

// Close 关闭并注销所有连接器
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.connectors
	p.connectors = make(map[string]SQLConnector)
	p.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return xerrors.Combine(errs...)
}
