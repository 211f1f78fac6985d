package settlement

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// Config 结算服务配置
type Config struct {
	// 结算引擎配置
	Settlement *SettlementConfig `mapstructure:"settlement"`

	// Redis 配置, 用于批次锁和报告持久化
	Redis *RedisConfig `mapstructure:"redis"`

	// PostgreSQL 配置
	Postgres *PostgresConfig `mapstructure:"postgres"`

	// 熔断器配置
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// 报告配置
	Report *ReportConfig `mapstructure:"report"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Settlement == nil || c.Redis == nil || c.Postgres == nil || c.CircuitBreaker == nil || c.Report == nil {
		return ErrConfigInvalid.WithDetails("missing config section")
	}

	if err := c.Settlement.Validate(); err != nil {
		return err
	}

	if c.Redis.Addr == "" {
		return ErrConfigInvalid.WithDetails("redis address is required")
	}
	if c.Redis.PoolSize <= 0 {
		return ErrConfigInvalid.WithDetails("redis pool size must be positive")
	}

	if c.Postgres.MaxConns <= 0 {
		return ErrConfigInvalid.WithDetails("postgres max_conns must be positive")
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1 {
			return ErrConfigInvalid.WithDetails("circuit breaker failure_ratio must be in (0, 1]")
		}
	}

	if c.Report.Enabled && c.Report.TTL <= 0 {
		return ErrConfigInvalid.WithDetails("report ttl must be positive")
	}
	return nil
}

// SettlementConfig 结算引擎配置
type SettlementConfig struct {
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`
	LockExpiration time.Duration `mapstructure:"lock_expiration"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	MaxRangeDays   int           `mapstructure:"max_range_days"`
}

// Validate 验证结算引擎配置
func (c *SettlementConfig) Validate() error {
	if c.LockTimeout < MinLockTimeout || c.LockTimeout > MaxLockTimeout {
		return ErrInvalidLockTimeout
	}
	if c.LockExpiration < MinLockExpiration || c.LockExpiration > MaxLockExpiration {
		return ErrInvalidLockTTL
	}
	if c.RetryAttempts < 0 || c.RetryAttempts > MaxRetryAttempts {
		return ErrInvalidRetryAttempts
	}
	if c.RetryInterval < 0 {
		return ErrInvalidRetryInterval
	}
	if c.MaxRangeDays < 0 {
		return ErrConfigInvalid.WithDetails("max_range_days cannot be negative")
	}
	return nil
}

// DefaultSettlementConfig 返回默认结算引擎配置
func DefaultSettlementConfig() *SettlementConfig {
	return &SettlementConfig{
		LockTimeout:    DefaultLockTimeout,
		LockExpiration: DefaultLockExpiration,
		RetryAttempts:  DefaultRetryAttempts,
		RetryInterval:  DefaultRetryInterval,
		MaxRangeDays:   DefaultMaxRangeDays,
	}
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接配置
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 连接池配置
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	// 超时配置
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// DefaultRedisConfig 返回默认的Redis配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		PoolTimeout:  DefaultRedisPoolTimeout,
	}
}

// NewRedisClientFromConfig 从配置创建Redis客户端
func NewRedisClientFromConfig(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN            string        `mapstructure:"dsn"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DefaultPostgresConfig 返回默认的 PostgreSQL 配置
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxConns:       DefaultPostgresMaxConns,
		ConnectTimeout: DefaultPostgresConnectTimeout,
	}
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

// ReportConfig 批次报告持久化配置
type ReportConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// DefaultReportConfig 返回默认报告配置
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Enabled: true,
		TTL:     DefaultReportTTL,
	}
}

// DefaultConfig 返回完整的默认配置
func DefaultConfig() *Config {
	return &Config{
		Settlement:     DefaultSettlementConfig(),
		Redis:          DefaultRedisConfig(),
		Postgres:       DefaultPostgresConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Report:         DefaultReportConfig(),
	}
}

// ConfigManager 配置管理器
type ConfigManager struct {
	viper  *viper.Viper
	logger Logger

	mu     sync.RWMutex
	config *Config
}

// NewConfigManager 创建配置管理器
func NewConfigManager() *ConfigManager {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName("settlement")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/settlement")

	// 设置环境变量前缀, 例如 SETTLEMENT_REDIS_ADDR
	v.SetEnvPrefix("SETTLEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigManager{
		viper:  v,
		logger: NewSilentLogger(),
	}
}

// NewDefaultConfigManager 创建带默认配置的配置管理器, 不读取文件
func NewDefaultConfigManager() *ConfigManager {
	cm := NewConfigManager()
	cm.setDefaults()
	cm.config = DefaultConfig()
	return cm
}

// SetLogger 设置日志记录器
func (cm *ConfigManager) SetLogger(logger Logger) {
	if logger != nil {
		cm.logger = logger
	}
}

// SetConfigFile 指定配置文件路径
func (cm *ConfigManager) SetConfigFile(path string) { cm.viper.SetConfigFile(path) }

// LoadConfig 加载配置
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	cm.setDefaults()

	if err := cm.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在时使用默认值和环境变量
	}

	config, err := cm.decode()
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return config, nil
}

func (cm *ConfigManager) decode() (*Config, error) {
	config := &Config{}
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// setDefaults 设置默认配置值
func (cm *ConfigManager) setDefaults() {
	// 结算引擎默认配置
	cm.viper.SetDefault("settlement.lock_timeout", DefaultLockTimeout)
	cm.viper.SetDefault("settlement.lock_expiration", DefaultLockExpiration)
	cm.viper.SetDefault("settlement.retry_attempts", DefaultRetryAttempts)
	cm.viper.SetDefault("settlement.retry_interval", DefaultRetryInterval)
	cm.viper.SetDefault("settlement.max_range_days", DefaultMaxRangeDays)

	// Redis 默认配置
	cm.viper.SetDefault("redis.addr", DefaultRedisAddr)
	cm.viper.SetDefault("redis.password", DefaultRedisPassword)
	cm.viper.SetDefault("redis.db", DefaultRedisDB)
	cm.viper.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	cm.viper.SetDefault("redis.min_idle_conns", DefaultRedisMinIdleConns)
	cm.viper.SetDefault("redis.max_retries", DefaultRedisMaxRetries)
	cm.viper.SetDefault("redis.dial_timeout", DefaultRedisDialTimeout)
	cm.viper.SetDefault("redis.read_timeout", DefaultRedisReadTimeout)
	cm.viper.SetDefault("redis.write_timeout", DefaultRedisWriteTimeout)
	cm.viper.SetDefault("redis.pool_timeout", DefaultRedisPoolTimeout)

	// PostgreSQL 默认配置
	cm.viper.SetDefault("postgres.dsn", "")
	cm.viper.SetDefault("postgres.max_conns", DefaultPostgresMaxConns)
	cm.viper.SetDefault("postgres.connect_timeout", DefaultPostgresConnectTimeout)

	// 熔断器默认配置
	cm.viper.SetDefault("circuit_breaker.enabled", true)
	cm.viper.SetDefault("circuit_breaker.name", DefaultCircuitBreakerName)
	cm.viper.SetDefault("circuit_breaker.max_requests", DefaultCircuitBreakerMaxRequests)
	cm.viper.SetDefault("circuit_breaker.interval", DefaultCircuitBreakerInterval)
	cm.viper.SetDefault("circuit_breaker.timeout", DefaultCircuitBreakerTimeout)
	cm.viper.SetDefault("circuit_breaker.failure_ratio", DefaultCircuitBreakerFailureRatio)
	cm.viper.SetDefault("circuit_breaker.min_requests", DefaultCircuitBreakerMinRequests)
	cm.viper.SetDefault("circuit_breaker.on_state_change", DefaultCircuitBreakerOnStateChange)

	// 报告默认配置
	cm.viper.SetDefault("report.enabled", true)
	cm.viper.SetDefault("report.ttl", DefaultReportTTL)
}

// WatchConfig 监听配置变化, 无效配置被忽略并保留旧配置
func (cm *ConfigManager) WatchConfig(callback func(*Config)) {
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		config, err := cm.decode()
		if err != nil {
			cm.logger.Error("ignoring config change from %s: %v", e.Name, err)
			return
		}

		cm.mu.Lock()
		cm.config = config
		cm.mu.Unlock()

		cm.logger.Info("config reloaded from %s", e.Name)
		if callback != nil {
			callback(config)
		}
	})
	cm.viper.WatchConfig()
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.config
}

// ReloadConfig 重新加载配置
func (cm *ConfigManager) ReloadConfig() (*Config, error) { return cm.LoadConfig() }
