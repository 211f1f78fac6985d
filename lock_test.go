package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLocker(t *testing.T, retryAttempts int) (*RedisBatchLocker, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { db.Close() })

	cfg := DefaultSettlementConfig()
	cfg.RetryAttempts = retryAttempts
	cfg.RetryInterval = time.Millisecond

	locker := NewRedisBatchLocker(db, cfg, NewSilentLogger())
	locker.newOwner = func() string { return "owner-1" }
	return locker, mock
}

func TestRedisBatchLocker_LockAndUnlock(t *testing.T) {
	locker, mock := newMockLocker(t, 0)
	keys := []string{"draw:1:2024-03-15", "draw:2:2024-03-15"}

	// 按顺序加锁, 再用 Lua 脚本释放
	for _, key := range keys {
		mock.ExpectSetNX(LockKeyPrefix+key, "owner-1", DefaultLockExpiration).SetVal(true)
	}
	for _, key := range keys {
		mock.ExpectEval(releaseLockScript, []string{LockKeyPrefix + key}, "owner-1").SetVal(int64(1))
	}

	unlock, err := locker.Lock(context.Background(), keys)
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
	metrics := locker.performanceMonitor.GetMetrics()
	assert.Equal(t, int64(1), metrics.LockAcquisitions)
	assert.Equal(t, int64(2), metrics.LockReleases)
}

func TestRedisBatchLocker_ContentionRollsBack(t *testing.T) {
	locker, mock := newMockLocker(t, 0)
	keys := []string{"draw:1:2024-03-15", "draw:2:2024-03-15"}

	mock.ExpectSetNX(LockKeyPrefix+keys[0], "owner-1", DefaultLockExpiration).SetVal(true)
	mock.ExpectSetNX(LockKeyPrefix+keys[1], "owner-1", DefaultLockExpiration).SetVal(false)
	mock.ExpectEval(releaseLockScript, []string{LockKeyPrefix + keys[0]}, "owner-1").SetVal(int64(1))

	unlock, err := locker.Lock(context.Background(), keys)
	assert.Nil(t, unlock)
	assert.ErrorIs(t, err, ErrBatchInProgress)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(1), locker.performanceMonitor.GetMetrics().LockFailures)
}

func TestRedisBatchLocker_RetriesUntilFree(t *testing.T) {
	locker, mock := newMockLocker(t, 2)
	key := "draw:1:2024-03-15"

	mock.ExpectSetNX(LockKeyPrefix+key, "owner-1", DefaultLockExpiration).SetVal(false)
	mock.ExpectSetNX(LockKeyPrefix+key, "owner-1", DefaultLockExpiration).SetVal(true)

	_, err := locker.Lock(context.Background(), []string{key})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBatchLocker_RedisError(t *testing.T) {
	locker, mock := newMockLocker(t, 0)
	key := "draw:1:2024-03-15"

	mock.ExpectSetNX(LockKeyPrefix+key, "owner-1", DefaultLockExpiration).SetErr(errors.New("dial tcp: connection refused"))

	_, err := locker.Lock(context.Background(), []string{key})
	assert.ErrorIs(t, err, ErrRedisConnection)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(1), locker.performanceMonitor.GetMetrics().RedisErrors)
}

func TestRedisBatchLocker_Unlock(t *testing.T) {
	key := "draw:1:2024-03-15"

	t.Run("锁已过期", func(t *testing.T) {
		locker, mock := newMockLocker(t, 0)
		mock.ExpectSetNX(LockKeyPrefix+key, "owner-1", DefaultLockExpiration).SetVal(true)
		mock.ExpectEval(releaseLockScript, []string{LockKeyPrefix + key}, "owner-1").SetVal(int64(0))

		unlock, err := locker.Lock(context.Background(), []string{key})
		require.NoError(t, err)
		assert.NoError(t, unlock(context.Background()))
		assert.Zero(t, locker.performanceMonitor.GetMetrics().LockReleases)
	})

	t.Run("释放失败", func(t *testing.T) {
		locker, mock := newMockLocker(t, 0)
		mock.ExpectSetNX(LockKeyPrefix+key, "owner-1", DefaultLockExpiration).SetVal(true)
		mock.ExpectEval(releaseLockScript, []string{LockKeyPrefix + key}, "owner-1").SetErr(errors.New("server closed"))

		unlock, err := locker.Lock(context.Background(), []string{key})
		require.NoError(t, err)
		assert.ErrorIs(t, unlock(context.Background()), ErrLockReleaseFailure)
	})
}

func TestRedisBatchLocker_EmptyKeysAndCancelledContext(t *testing.T) {
	locker, mock := newMockLocker(t, 0)

	unlock, err := locker.Lock(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, unlock(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Lock(ctx, []string{"draw:1:2024-03-15"})
	assert.ErrorIs(t, err, ErrBatchInterrupted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalBatchLocker(t *testing.T) {
	locker := NewLocalBatchLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, []string{"a", "b"})
	require.NoError(t, err)

	// 部分重叠的键也应冲突
	_, err = locker.Lock(ctx, []string{"b", "c"})
	assert.ErrorIs(t, err, ErrBatchInProgress)

	other, err := locker.Lock(ctx, []string{"c"})
	require.NoError(t, err)

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))

	again, err := locker.Lock(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, again(ctx))
	require.NoError(t, other(ctx))
	assert.Empty(t, locker.held)
}

func TestRedisBatchLocker_FollowsEngineConfigUpdates(t *testing.T) {
	locker, mock := newMockLocker(t, 0)
	engine := newTestEngine(t, NewMemoryStore(), WithBatchLocker(locker))

	// 热更新后新批次使用新的锁过期时间
	cfg := DefaultSettlementConfig()
	cfg.LockExpiration = 10 * time.Minute
	cfg.RetryAttempts = 0
	require.NoError(t, engine.UpdateConfig(cfg))

	key := "draw:1:2024-03-15"
	mock.ExpectSetNX(LockKeyPrefix+key, "owner-1", 10*time.Minute).SetVal(true)
	mock.ExpectEval(releaseLockScript, []string{LockKeyPrefix + key}, "owner-1").SetVal(int64(1))

	unlock, err := locker.Lock(context.Background(), []string{key})
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	// 无效配置不会覆盖锁设置
	bad := DefaultSettlementConfig()
	bad.LockExpiration = time.Second
	assert.Error(t, engine.UpdateConfig(bad))
	assert.Equal(t, 10*time.Minute, locker.config.Load().LockExpiration)
}
