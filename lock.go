package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Batch lock strategy:
// - Acquisition: Redis SET NX per key, keys taken in sorted order; all or nothing
// - Release: Lua script so a batch never deletes a lock it no longer owns

// releaseLockScript deletes KEYS[1] only when it still holds ARGV[1]
const releaseLockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// RedisBatchLocker locks (draw, day) keys across processes through Redis
type RedisBatchLocker struct {
	redisClient *redis.Client
	config      atomic.Pointer[SettlementConfig] // lock_timeout, lock_expiration, retries
	logger      Logger
	newOwner    func() string

	performanceMonitor *PerformanceMonitor
}

// NewRedisBatchLocker creates a Redis batch locker
func NewRedisBatchLocker(redisClient *redis.Client, cfg *SettlementConfig, logger Logger) *RedisBatchLocker {
	if cfg == nil {
		cfg = DefaultSettlementConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	l := &RedisBatchLocker{
		redisClient: redisClient,
		logger:      logger,
		newOwner:    uuid.NewString,

		performanceMonitor: NewPerformanceMonitor(),
	}
	l.config.Store(cfg)
	return l
}

// UpdateConfig applies new lock settings to batches that start afterwards
func (l *RedisBatchLocker) UpdateConfig(cfg *SettlementConfig) {
	if cfg != nil {
		l.config.Store(cfg)
	}
}

// SetPerformanceMonitor 设置性能监控器
func (l *RedisBatchLocker) SetPerformanceMonitor(monitor *PerformanceMonitor) {
	if monitor != nil {
		l.performanceMonitor = monitor
	}
}

// Lock acquires every key or none. Contention that outlasts the retries fails with
// ErrBatchInProgress, or ErrLockTimeout once the lock timeout has elapsed.
func (l *RedisBatchLocker) Lock(ctx context.Context, keys []string) (func(context.Context) error, error) {
	if len(keys) == 0 {
		return func(context.Context) error { return nil }, nil
	}

	start := time.Now()
	owner := l.newOwner()
	cfg := l.config.Load()

	var lastErr error
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, ErrBatchInterrupted.WithCause(err)
		}

		acquired, err := l.tryLockAll(ctx, keys, owner, cfg.LockExpiration)
		if err == nil && acquired {
			l.performanceMonitor.RecordLockAcquisition(true, time.Since(start))
			l.logger.Debug("acquired %d batch locks as %s", len(keys), owner)
			return func(ctx context.Context) error { return l.unlockAll(ctx, keys, owner) }, nil
		}
		lastErr = err

		if attempt < cfg.RetryAttempts && cfg.LockTimeout > 0 && time.Since(start)+cfg.RetryInterval > cfg.LockTimeout {
			l.performanceMonitor.RecordLockAcquisition(false, time.Since(start))
			return nil, ErrLockTimeout.WithDetails(keys[0])
		}

		if attempt < cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ErrBatchInterrupted.WithCause(ctx.Err())
			case <-time.After(cfg.RetryInterval):
			}
		}
	}

	l.performanceMonitor.RecordLockAcquisition(false, time.Since(start))
	if lastErr != nil {
		l.performanceMonitor.RecordRedisError()
		return nil, ErrRedisConnection.WithCause(lastErr).WithOperation("batch_lock")
	}
	return nil, ErrBatchInProgress.WithDetails(keys[0])
}

// tryLockAll takes keys in order and rolls back the ones it got when any is held elsewhere
func (l *RedisBatchLocker) tryLockAll(ctx context.Context, keys []string, owner string, ttl time.Duration) (bool, error) {
	for i, key := range keys {
		ok, err := l.redisClient.SetNX(ctx, LockKeyPrefix+key, owner, ttl).Result()
		if err != nil || !ok {
			if relErr := l.unlockAll(ctx, keys[:i], owner); relErr != nil {
				l.logger.Error("failed to roll back partial batch lock: %v", relErr)
			}
			return false, err
		}
	}
	return true, nil
}

func (l *RedisBatchLocker) unlockAll(ctx context.Context, keys []string, owner string) error {
	var errs []error
	for _, key := range keys {
		res, err := l.redisClient.Eval(ctx, releaseLockScript, []string{LockKeyPrefix + key}, owner).Result()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n, ok := res.(int64); !ok || n != 1 {
			// expired or taken over by another batch
			l.logger.Warn("batch lock %s was no longer held by %s", key, owner)
			continue
		}
		l.performanceMonitor.RecordLockRelease()
	}
	if len(errs) > 0 {
		return ErrLockReleaseFailure.WithCause(errors.Join(errs...))
	}
	return nil
}

// LocalBatchLocker serialises batches inside one process
type LocalBatchLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalBatchLocker creates an in-process batch locker
func NewLocalBatchLocker() *LocalBatchLocker {
	return &LocalBatchLocker{held: make(map[string]struct{})}
}

// Lock fails immediately with ErrBatchInProgress when any key is held
func (l *LocalBatchLocker) Lock(ctx context.Context, keys []string) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrBatchInterrupted.WithCause(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		if _, ok := l.held[key]; ok {
			return nil, ErrBatchInProgress.WithDetails(key)
		}
	}
	for _, key := range keys {
		l.held[key] = struct{}{}
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, key := range keys {
				delete(l.held, key)
			}
		})
		return nil
	}, nil
}

// noopLocker is used when the engine runs without a concurrency guard
type noopLocker struct{}

func (noopLocker) Lock(context.Context, []string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
