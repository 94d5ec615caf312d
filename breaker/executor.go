package breaker

import (
	"context"

	"github.com/ceyewan/shardproxy/connector"
)

// Executor 以实例名为熔断键包装 connector.Executor
type Executor struct {
	next    connector.Executor
	breaker Breaker
}

var _ connector.Executor = (*Executor)(nil)

// NewExecutor 创建受熔断保护的执行器
func NewExecutor(next connector.Executor, b Breaker) *Executor {
	return &Executor{next: next, breaker: b}
}

// Execute 在 instance 上执行 sql，熔断打开时直接返回 ErrOpenState
func (e *Executor) Execute(ctx context.Context, instance string, sql string) ([]connector.Row, error) {
	res, err := e.breaker.Execute(ctx, instance, func() (any, error) {
		return e.next.Execute(ctx, instance, sql)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]connector.Row)
	return rows, nil
}
