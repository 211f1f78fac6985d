package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// MaxReportSize caps a serialised batch report (10MB)
const MaxReportSize = 10 * 1024 * 1024

// RedisReportStore persists batch reports as JSON with a TTL
type RedisReportStore struct {
	redisClient    *redis.Client
	logger         Logger
	ttl            time.Duration
	retryAttempts  int
	retryBaseDelay time.Duration
}

var _ ReportSink = (*RedisReportStore)(nil)

// NewRedisReportStore creates a report store
func NewRedisReportStore(redisClient *redis.Client, logger Logger, ttl time.Duration) *RedisReportStore {
	return NewRedisReportStoreWithRetry(redisClient, logger, ttl, DefaultRetryAttempts, DefaultRetryInterval)
}

// NewRedisReportStoreWithRetry creates a report store with custom retry settings
func NewRedisReportStoreWithRetry(
	redisClient *redis.Client, logger Logger, ttl time.Duration, retryAttempts int, retryDelay time.Duration,
) *RedisReportStore {
	if logger == nil {
		logger = NewSilentLogger()
	}
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &RedisReportStore{
		redisClient:    redisClient,
		logger:         logger,
		ttl:            ttl,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryDelay,
	}
}

// reportKey returns the Redis key of a run
func reportKey(runID string) string {
	return ReportKeyPrefix + runID
}

// parseReportKey extracts the run id from a report key
func parseReportKey(key string) (string, error) {
	if !strings.HasPrefix(key, ReportKeyPrefix) {
		return "", fmt.Errorf("invalid report key %q: missing prefix", key)
	}
	runID := strings.TrimPrefix(key, ReportKeyPrefix)
	if runID == "" {
		return "", fmt.Errorf("invalid report key %q: empty run id", key)
	}
	return runID, nil
}

func serializeReport(report *BatchReport) ([]byte, error) {
	if report == nil {
		return nil, ErrInvalidParameters.WithDetails("nil report")
	}
	if err := report.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, ErrSerializationFailed.WithCause(err)
	}
	if len(data) > MaxReportSize {
		return nil, ErrSerializationFailed.WithDetails(
			fmt.Sprintf("report %s is %d bytes, limit %d", report.RunID, len(data), MaxReportSize))
	}
	return data, nil
}

func deserializeReport(data []byte) (*BatchReport, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParameters.WithDetails("empty report payload")
	}

	var report BatchReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, ErrDeserializationFailed.WithCause(err)
	}
	if err := report.Validate(); err != nil {
		return nil, ErrDeserializationFailed.WithCause(err)
	}
	return &report, nil
}

// executeWithRetry retries fn with exponential backoff while the error looks transient
func (s *RedisReportStore) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	startTime := time.Now()

	for attempt := 0; attempt <= s.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * s.retryBaseDelay
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}

			s.logger.Debug("retrying %s (attempt %d/%d) after %v", operation, attempt, s.retryAttempts, delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry for %s after %v: %w",
					operation, time.Since(startTime), ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				s.logger.Info("%s succeeded after %d retries (total time: %v)", operation, attempt, time.Since(startTime))
			}
			return nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			break
		}
	}

	return fmt.Errorf("%s failed after %v: %w", operation, time.Since(startTime), lastErr)
}

// SaveReport stores report under settlement:report:<runID>
func (s *RedisReportStore) SaveReport(ctx context.Context, report *BatchReport) error {
	data, err := serializeReport(report)
	if err != nil {
		return err
	}

	key := reportKey(report.RunID)
	err = s.executeWithRetry(ctx, fmt.Sprintf("save[%s]", key), func() error {
		return s.redisClient.Set(ctx, key, data, s.ttl).Err()
	})
	if err != nil {
		s.logger.Error("failed to save report %s (%d bytes): %v", report.RunID, len(data), err)
		return ErrReportSaveFailure.WithCause(err).WithMetadata("run_id", report.RunID)
	}

	s.logger.Debug("saved report %s: %d bytes, ttl=%v", report.RunID, len(data), s.ttl)
	return nil
}

// LoadReport returns the report of runID, or ErrReportNotFound
func (s *RedisReportStore) LoadReport(ctx context.Context, runID string) (*BatchReport, error) {
	if runID == "" {
		return nil, ErrInvalidParameters.WithDetails("empty run id")
	}

	key := reportKey(runID)
	var data []byte
	missing := false

	err := s.executeWithRetry(ctx, fmt.Sprintf("load[%s]", key), func() error {
		var getErr error
		data, getErr = s.redisClient.Get(ctx, key).Bytes()
		if errors.Is(getErr, redis.Nil) {
			missing = true
			return nil
		}
		return getErr
	})
	if err != nil {
		return nil, ErrReportLoadFailure.WithCause(err).WithMetadata("run_id", runID)
	}
	if missing {
		return nil, ErrReportNotFound.WithDetails(runID)
	}
	if len(data) > MaxReportSize {
		return nil, ErrDeserializationFailed.WithDetails(
			fmt.Sprintf("report %s is %d bytes, limit %d", runID, len(data), MaxReportSize))
	}

	return deserializeReport(data)
}

// DeleteReport removes a stored report; deleting a missing report is not an error
func (s *RedisReportStore) DeleteReport(ctx context.Context, runID string) error {
	if runID == "" {
		return ErrInvalidParameters.WithDetails("empty run id")
	}

	key := reportKey(runID)
	err := s.executeWithRetry(ctx, fmt.Sprintf("delete[%s]", key), func() error {
		return s.redisClient.Del(ctx, key).Err()
	})
	if err != nil {
		return ErrRedisConnection.WithCause(err).WithOperation("delete_report")
	}
	return nil
}

// ListRunIDs returns the run ids of every stored report
func (s *RedisReportStore) ListRunIDs(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.executeWithRetry(ctx, "keys", func() error {
		var keysErr error
		keys, keysErr = s.redisClient.Keys(ctx, ReportKeyPrefix+"*").Result()
		return keysErr
	})
	if err != nil {
		return nil, ErrRedisConnection.WithCause(err).WithOperation("list_reports")
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id, err := parseReportKey(key)
		if err != nil {
			s.logger.Warn("skipping foreign key: %v", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
