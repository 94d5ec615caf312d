package breaker

import (
	"context"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
	"github.com/ceyewan/shardproxy/xerrors"
)

// circuitBreaker 按键管理 gobreaker 实例
type circuitBreaker struct {
	cfg      *Config
	logger   clog.Logger
	metrics  *breakerMetrics
	fallback FallbackFunc

	breakers sync.Map // map[string]*gobreaker.CircuitBreaker[any]
}

func newBreaker(cfg *Config, opt options) *circuitBreaker {
	return &circuitBreaker{
		cfg:      cfg,
		logger:   opt.logger,
		metrics:  newBreakerMetrics(opt.meter, opt.logger),
		fallback: opt.fallback,
	}
}

func (cb *circuitBreaker) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	result, err := cb.getOrCreate(key).Execute(fn)
	instance := metrics.L(metrics.LabelInstance, key)

	if isRejected(err) {
		cb.metrics.requests.Inc(ctx, instance, metrics.L(metrics.LabelOutcome, OutcomeRejected))
		cb.logger.Debug("request rejected by circuit breaker", clog.String("key", key), clog.Error(err))

		if cb.fallback != nil {
			if fallbackErr := cb.fallback(ctx, key, err); fallbackErr != nil {
				return nil, fallbackErr
			}
			return nil, nil
		}
		return nil, xerrors.Wrapf(ErrOpenState, "%s", key)
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	cb.metrics.requests.Inc(ctx, instance, metrics.L(metrics.LabelOutcome, outcome))
	return result, err
}

func (cb *circuitBreaker) State(key string) (State, error) {
	if key == "" {
		return StateClosed, ErrKeyEmpty
	}
	val, ok := cb.breakers.Load(key)
	if !ok {
		return StateClosed, nil
	}
	return fromGobreaker(val.(*gobreaker.CircuitBreaker[any]).State()), nil
}

func (cb *circuitBreaker) Allow(key string) bool {
	st, err := cb.State(key)
	return err == nil && st != StateOpen
}

func (cb *circuitBreaker) Forget(key string) {
	cb.breakers.Delete(key)
}

func (cb *circuitBreaker) getOrCreate(key string) *gobreaker.CircuitBreaker[any] {
	if val, ok := cb.breakers.Load(key); ok {
		return val.(*gobreaker.CircuitBreaker[any])
	}

	settings := gobreaker.Settings{
		Name:          key,
		MaxRequests:   cb.cfg.MaxRequests,
		Interval:      cb.cfg.Interval,
		Timeout:       cb.cfg.Timeout,
		ReadyToTrip:   cb.readyToTrip,
		OnStateChange: cb.onStateChange,
		IsSuccessful:  isSuccessful,
	}
	actual, _ := cb.breakers.LoadOrStore(key, gobreaker.NewCircuitBreaker[any](settings))
	return actual.(*gobreaker.CircuitBreaker[any])
}

// readyToTrip 请求数达到下限且失败率超过阈值时熔断
func (cb *circuitBreaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < cb.cfg.MinimumRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= cb.cfg.FailureRatio
}

func (cb *circuitBreaker) onStateChange(name string, from gobreaker.State, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)
	cb.logger.Info("circuit breaker state changed",
		clog.String("key", name),
		clog.String("from", f.String()),
		clog.String("to", t.String()))
	cb.metrics.stateChanges.Inc(context.Background(),
		metrics.L(metrics.LabelInstance, name),
		metrics.L(LabelFromState, f.String()),
		metrics.L(LabelToState, t.String()))
}

// isSuccessful 调用方取消、参数错误与未知实例不算作后端故障
func isSuccessful(err error) bool {
	return err == nil ||
		xerrors.Is(err, context.Canceled) ||
		xerrors.Is(err, xerrors.ErrInvalidInput) ||
		xerrors.Is(err, xerrors.ErrNotFound)
}

func isRejected(err error) bool {
	return xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
