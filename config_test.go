package settlement

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_LoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expectError bool
		validate    func(*testing.T, *Config)
	}{
		{
			name:        "default_config",
			expectError: false,
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, "localhost:6379", config.Redis.Addr)
				assert.Equal(t, 30*time.Second, config.Settlement.LockTimeout)
				assert.Equal(t, 3, config.Settlement.RetryAttempts)
				assert.Equal(t, DefaultMaxRangeDays, config.Settlement.MaxRangeDays)
				assert.Equal(t, int32(DefaultPostgresMaxConns), config.Postgres.MaxConns)
				assert.True(t, config.CircuitBreaker.Enabled)
				assert.Equal(t, DefaultReportTTL, config.Report.TTL)
			},
		},
		{
			name: "environment_variables",
			env: map[string]string{
				"SETTLEMENT_REDIS_ADDR":                  "redis-cluster:6379",
				"SETTLEMENT_SETTLEMENT_LOCK_TIMEOUT":     "60s",
				"SETTLEMENT_SETTLEMENT_MAX_RANGE_DAYS":   "31",
				"SETTLEMENT_POSTGRES_DSN":                "postgres://lottery@db:5432/lottery",
				"SETTLEMENT_CIRCUIT_BREAKER_ENABLED":     "false",
			},
			expectError: false,
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, "redis-cluster:6379", config.Redis.Addr)
				assert.Equal(t, 60*time.Second, config.Settlement.LockTimeout)
				assert.Equal(t, 31, config.Settlement.MaxRangeDays)
				assert.Equal(t, "postgres://lottery@db:5432/lottery", config.Postgres.DSN)
				assert.False(t, config.CircuitBreaker.Enabled)
			},
		},
		{
			name: "invalid_config",
			env: map[string]string{
				"SETTLEMENT_SETTLEMENT_RETRY_ATTEMPTS": "99", // 超出上限
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cm := NewConfigManager()
			config, err := cm.LoadConfig()

			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, config)
			assert.Same(t, config, cm.GetConfig())

			if tt.validate != nil {
				tt.validate(t, config)
			}
		})
	}
}

func TestConfigManager_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settlement.yaml")
	yaml := `
settlement:
  retry_attempts: 5
  retry_interval: 250ms
redis:
  addr: cache:6380
report:
  ttl: 24h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cm := NewConfigManager()
	cm.SetConfigFile(path)
	config, err := cm.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, config.Settlement.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, config.Settlement.RetryInterval)
	assert.Equal(t, "cache:6380", config.Redis.Addr)
	assert.Equal(t, 24*time.Hour, config.Report.TTL)
	// 未设置的项保留默认值
	assert.Equal(t, DefaultLockExpiration, config.Settlement.LockExpiration)

	t.Run("missing_explicit_file", func(t *testing.T) {
		cm := NewConfigManager()
		cm.SetConfigFile(filepath.Join(dir, "missing.yaml"))
		_, err := cm.LoadConfig()
		assert.Error(t, err)
	})
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name         string
		modifyConfig func(*Config)
		expectError  error
	}{
		{
			name:         "valid_config",
			modifyConfig: func(config *Config) {},
		},
		{
			name:         "missing_section",
			modifyConfig: func(config *Config) { config.Postgres = nil },
			expectError:  ErrConfigInvalid,
		},
		{
			name:         "empty_redis_addr",
			modifyConfig: func(config *Config) { config.Redis.Addr = "" },
			expectError:  ErrConfigInvalid,
		},
		{
			name:         "invalid_pool_size",
			modifyConfig: func(config *Config) { config.Redis.PoolSize = 0 },
			expectError:  ErrConfigInvalid,
		},
		{
			name:         "invalid_lock_timeout",
			modifyConfig: func(config *Config) { config.Settlement.LockTimeout = 0 },
			expectError:  ErrInvalidLockTimeout,
		},
		{
			name:         "invalid_lock_expiration",
			modifyConfig: func(config *Config) { config.Settlement.LockExpiration = 2 * time.Hour },
			expectError:  ErrInvalidLockTTL,
		},
		{
			name:         "negative_retry_attempts",
			modifyConfig: func(config *Config) { config.Settlement.RetryAttempts = -1 },
			expectError:  ErrInvalidRetryAttempts,
		},
		{
			name:         "negative_retry_interval",
			modifyConfig: func(config *Config) { config.Settlement.RetryInterval = -time.Second },
			expectError:  ErrInvalidRetryInterval,
		},
		{
			name:         "invalid_failure_ratio",
			modifyConfig: func(config *Config) { config.CircuitBreaker.FailureRatio = 1.5 },
			expectError:  ErrConfigInvalid,
		},
		{
			name:         "disabled_breaker_skips_ratio",
			modifyConfig: func(config *Config) { config.CircuitBreaker.Enabled = false; config.CircuitBreaker.FailureRatio = 0 },
		},
		{
			name:         "report_without_ttl",
			modifyConfig: func(config *Config) { config.Report.TTL = 0 },
			expectError:  ErrConfigInvalid,
		},
		{
			name:         "postgres_without_conns",
			modifyConfig: func(config *Config) { config.Postgres.MaxConns = 0 },
			expectError:  ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modifyConfig(config)

			err := config.Validate()
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewDefaultConfigManager(t *testing.T) {
	cm := NewDefaultConfigManager()
	require.NotNil(t, cm.GetConfig())
	assert.NoError(t, cm.GetConfig().Validate())
}

func TestNewRedisClientFromConfig(t *testing.T) {
	config := DefaultRedisConfig()
	config.Password = "test-password"
	config.DB = 1

	client := NewRedisClientFromConfig(config)
	require.NotNil(t, client)
	defer client.Close()

	assert.Equal(t, "localhost:6379", client.Options().Addr)
	assert.Equal(t, 1, client.Options().DB)
	assert.Equal(t, DefaultRedisPoolSize, client.Options().PoolSize)
}

func BenchmarkConfigManager_LoadConfig(b *testing.B) {
	cm := NewConfigManager()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := cm.LoadConfig(); err != nil {
			b.Fatalf("Failed to load config: %v", err)
		}
	}
}
