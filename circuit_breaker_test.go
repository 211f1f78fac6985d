package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() *CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	cfg.MinRequests = 2
	cfg.FailureRatio = 0.5
	cfg.Timeout = time.Hour
	return cfg
}

func TestCircuitBreakerStore_OpensOnFailures(t *testing.T) {
	mem := NewMemoryStore()
	seedDraw(mem)
	store := NewCircuitBreakerStore(mem, testBreakerConfig(), NewSilentLogger())

	assert.Equal(t, "closed", store.GetCircuitBreakerState())

	mem.FailOn("GetAllForDate", errors.New("connection refused"))
	for range 2 {
		_, err := store.GetAllForDate(context.Background(), drawDay)
		require.Error(t, err)
	}
	assert.Equal(t, "open", store.GetCircuitBreakerState())

	// 熔断后不再访问底层存储
	mem.FailOn("GetAllForDate", nil)
	_, err := store.GetAllForDate(context.Background(), drawDay)
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)

	health := store.HealthCheck()
	assert.Equal(t, false, health["healthy"])

	store.ResetCircuitBreaker()
	results, err := store.GetAllForDate(context.Background(), drawDay)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCircuitBreakerStore_ResetDuringCalls(t *testing.T) {
	mem := NewMemoryStore()
	seedDraw(mem)
	store := NewCircuitBreakerStore(mem, testBreakerConfig(), NewSilentLogger())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if i%4 == 0 {
					store.ResetCircuitBreaker()
					continue
				}
				_, err := store.GetAllForDate(context.Background(), drawDay)
				assert.NoError(t, err)
				_ = store.GetCircuitBreakerState()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, "closed", store.GetCircuitBreakerState())
}

func TestCircuitBreakerStore_CancellationIsNotAFailure(t *testing.T) {
	mem := NewMemoryStore()
	store := NewCircuitBreakerStore(mem, testBreakerConfig(), NewSilentLogger())

	mem.FailOn("GetWinners", context.Canceled)
	for range 3 {
		_, err := store.GetWinners(context.Background(), drawDay)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", store.GetCircuitBreakerState())
	assert.Zero(t, store.GetCircuitBreakerCounts().TotalFailures)
}

func TestCircuitBreakerStore_Disabled(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.Enabled = false
	mem := NewMemoryStore()
	store := NewCircuitBreakerStore(mem, cfg, nil)

	mem.FailOn("GetPrizeTypes", errors.New("boom"))
	for range 5 {
		_, err := store.GetPrizeTypes(context.Background(), 1)
		assert.EqualError(t, err, "boom")
	}
	assert.Equal(t, "disabled", store.GetCircuitBreakerState())
	assert.Equal(t, true, store.HealthCheck()["healthy"])
}

func TestCircuitBreakerStore_NilLookupsPassThrough(t *testing.T) {
	store := NewCircuitBreakerStore(NewMemoryStore(), testBreakerConfig(), nil)

	r, err := store.GetByDrawAndDate(context.Background(), 9, drawDay)
	require.NoError(t, err)
	assert.Nil(t, r)

	cfg, err := store.GetDrawPrizeConfig(context.Background(), 1, 2, 3)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestEngine_WithCircuitBreakerStore(t *testing.T) {
	mem := NewMemoryStore()
	seedDraw(mem)
	store := NewCircuitBreakerStore(mem, testBreakerConfig(), NewSilentLogger())

	cfg := DefaultSettlementConfig()
	cfg.RetryInterval = time.Millisecond
	engine, err := NewSettlementEngine(store,
		WithTxManager(mem),
		WithLogger(NewSilentLogger()),
		WithSettlementConfig(cfg),
	)
	require.NoError(t, err)

	report, err := engine.ProcessForDate(context.Background(), drawDay)
	require.NoError(t, err)
	assert.Equal(t, 3, report.LinesProcessed)

	ticket, _ := mem.Ticket(1)
	assert.Equal(t, TicketStateWinner, ticket.State)
}
