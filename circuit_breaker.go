package settlement

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerStore 带熔断器的存储包装器, 存储持续故障时快速失败
type CircuitBreakerStore struct {
	store Store

	// 重置时整体替换, 与批次中的调用并发
	breaker atomic.Pointer[gobreaker.CircuitBreaker]
	logger  Logger
	config  *CircuitBreakerConfig
}

var _ Store = (*CircuitBreakerStore)(nil)

// NewCircuitBreakerStore 创建带熔断器的存储
func NewCircuitBreakerStore(store Store, config *CircuitBreakerConfig, logger Logger) *CircuitBreakerStore {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}

	c := &CircuitBreakerStore{
		store:  store,
		logger: logger,
		config: config,
	}
	if config.Enabled {
		c.breaker.Store(gobreaker.NewCircuitBreaker(c.settings()))
	}
	return c
}

func (c *CircuitBreakerStore) settings() gobreaker.Settings {
	config := c.config
	return gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 请求数达到最小要求且失败率超过阈值时触发熔断
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// 调用方取消不算存储故障
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange {
				c.logger.Warn("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
		},
	}
}

// executeWithBreaker 使用熔断器执行操作
func (c *CircuitBreakerStore) executeWithBreaker(operation func() (any, error)) (any, error) {
	breaker := c.breaker.Load()
	if breaker == nil {
		return operation()
	}

	result, err := breaker.Execute(operation)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, ErrCircuitBreakerOpen.WithDetails("store circuit is open, requests are being rejected")
		}
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitBreakerOpen.WithDetails("too many requests, store circuit is half-open")
		}
	}
	return result, err
}

func (c *CircuitBreakerStore) exec(operation func() error) error {
	_, err := c.executeWithBreaker(func() (any, error) { return nil, operation() })
	return err
}

// GetByDrawAndDate 读取单个开奖结果
func (c *CircuitBreakerStore) GetByDrawAndDate(ctx context.Context, drawID int64, date time.Time) (*Result, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetByDrawAndDate(ctx, drawID, date)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Result), nil
}

// GetAllForDate 读取某天所有开奖结果
func (c *CircuitBreakerStore) GetAllForDate(ctx context.Context, date time.Time) (map[int64]*Result, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetAllForDate(ctx, date)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[int64]*Result), nil
}

// GetAllForRange 读取日期范围内的开奖结果
func (c *CircuitBreakerStore) GetAllForRange(ctx context.Context, start, end time.Time) (map[ResultKey]*Result, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetAllForRange(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[ResultKey]*Result), nil
}

// GetPending 读取待结算注单
func (c *CircuitBreakerStore) GetPending(ctx context.Context, drawDate time.Time, drawID *int64) ([]*TicketLine, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetPending(ctx, drawDate, drawID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*TicketLine), nil
}

// GetPendingInRange 读取日期范围内的待结算注单
func (c *CircuitBreakerStore) GetPendingInRange(ctx context.Context, start, end time.Time) ([]*TicketLine, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetPendingInRange(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*TicketLine), nil
}

// GetWinners 读取中奖注单
func (c *CircuitBreakerStore) GetWinners(ctx context.Context, drawDate time.Time) ([]*TicketLine, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetWinners(ctx, drawDate)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*TicketLine), nil
}

// SaveLines 写回注单
func (c *CircuitBreakerStore) SaveLines(ctx context.Context, lines []*TicketLine) error {
	return c.exec(func() error { return c.store.SaveLines(ctx, lines) })
}

// GetTickets 读取票据
func (c *CircuitBreakerStore) GetTickets(ctx context.Context, ids []int64) (map[int64]*Ticket, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetTickets(ctx, ids)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[int64]*Ticket), nil
}

// GetTicketLines 读取票据的全部注单
func (c *CircuitBreakerStore) GetTicketLines(ctx context.Context, ticketID int64) ([]*TicketLine, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetTicketLines(ctx, ticketID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*TicketLine), nil
}

// SaveTicketAggregates 写回票据汇总
func (c *CircuitBreakerStore) SaveTicketAggregates(ctx context.Context, tickets []*Ticket) error {
	return c.exec(func() error { return c.store.SaveTicketAggregates(ctx, tickets) })
}

// GetPrizeTypes 读取奖项类型
func (c *CircuitBreakerStore) GetPrizeTypes(ctx context.Context, prizeBetTypeID int64) ([]PrizeType, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetPrizeTypes(ctx, prizeBetTypeID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]PrizeType), nil
}

// GetBancaPrizeConfig 读取投注站级赔率覆盖
func (c *CircuitBreakerStore) GetBancaPrizeConfig(ctx context.Context, bettingPoolID, prizeTypeID int64) (*BancaPrizeConfig, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetBancaPrizeConfig(ctx, bettingPoolID, prizeTypeID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*BancaPrizeConfig), nil
}

// GetDrawPrizeConfig 读取开奖级赔率覆盖
func (c *CircuitBreakerStore) GetDrawPrizeConfig(ctx context.Context, drawID, bettingPoolID, prizeTypeID int64) (*DrawPrizeConfig, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.store.GetDrawPrizeConfig(ctx, drawID, bettingPoolID, prizeTypeID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*DrawPrizeConfig), nil
}

// GetCircuitBreakerState 获取熔断器状态
func (c *CircuitBreakerStore) GetCircuitBreakerState() string {
	breaker := c.breaker.Load()
	if breaker == nil {
		return "disabled"
	}

	switch breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetCircuitBreakerCounts 获取熔断器统计信息
func (c *CircuitBreakerStore) GetCircuitBreakerCounts() gobreaker.Counts {
	breaker := c.breaker.Load()
	if breaker == nil {
		return gobreaker.Counts{}
	}
	return breaker.Counts()
}

// ResetCircuitBreaker 重置熔断器 (gobreaker 没有 Reset, 重新创建实例)
func (c *CircuitBreakerStore) ResetCircuitBreaker() {
	if c.breaker.Load() == nil {
		return
	}
	c.breaker.Store(gobreaker.NewCircuitBreaker(c.settings()))
	c.logger.Info("Circuit breaker '%s' has been reset (recreated)", c.config.Name)
}

// HealthCheck 熔断器健康检查
func (c *CircuitBreakerStore) HealthCheck() map[string]any {
	result := map[string]any{
		"circuit_breaker_enabled": c.config.Enabled,
	}

	if c.breaker.Load() == nil {
		result["state"] = "disabled"
		result["healthy"] = true
		return result
	}

	state := c.GetCircuitBreakerState()
	counts := c.GetCircuitBreakerCounts()

	result["state"] = state
	result["requests"] = counts.Requests
	result["total_failures"] = counts.TotalFailures
	result["consecutive_failures"] = counts.ConsecutiveFailures

	healthy := true
	switch state {
	case "open":
		healthy = false
	case "half-open":
		// 半开状态下连续失败过多视为不健康
		healthy = counts.ConsecutiveFailures <= 2
	}
	result["healthy"] = healthy
	return result
}
