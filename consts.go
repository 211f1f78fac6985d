package settlement

import "time"

const (
	// DefaultLockTimeout is the default time spent waiting for batch locks
	DefaultLockTimeout = 30 * time.Second

	// DefaultLockExpiration is the default TTL of a batch lock; it must outlive a batch
	DefaultLockExpiration = 5 * time.Minute

	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 3

	// DefaultRetryInterval is the default interval between retry attempts
	DefaultRetryInterval = 100 * time.Millisecond

	// DefaultMaxRangeDays bounds the ReprocessRange window
	DefaultMaxRangeDays = 62

	// LockKeyPrefix is the prefix for Redis batch lock keys
	LockKeyPrefix = "settlement:lock:"

	// ReportKeyPrefix is the prefix for Redis batch report keys
	ReportKeyPrefix = "settlement:report:"

	// DefaultReportTTL is the default TTL of persisted batch reports
	DefaultReportTTL = 72 * time.Hour

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// MinLockTimeout is the minimum lock timeout allowed
	MinLockTimeout = 1 * time.Second

	// MaxLockTimeout is the maximum lock timeout allowed
	MaxLockTimeout = 5 * time.Minute

	// MinLockExpiration is the minimum lock expiration allowed
	MinLockExpiration = 10 * time.Second

	// MaxLockExpiration is the maximum lock expiration allowed
	MaxLockExpiration = 1 * time.Hour

	// DayLayout is the calendar-day layout used for draw dates and result keys
	DayLayout = "2006-01-02"
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "settlement-store"

	// DefaultCircuitBreakerMaxRequests is the default max requests in half-open state
	DefaultCircuitBreakerMaxRequests = 3

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 20
	DefaultRedisMinIdleConns = 5
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisPoolTimeout  = 4 * time.Second
)

const (
	DefaultPostgresMaxConns       = 10
	DefaultPostgresConnectTimeout = 5 * time.Second
)
