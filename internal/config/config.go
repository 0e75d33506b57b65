package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/rentdesk/internal/oauth"
	"github.com/xxxsen/rentdesk/internal/pkg/jwt"
)

const (
	FastTierRedis     = "redis"
	FastTierMemcached = "memcached"
	FastTierMemory    = "memory"
)

type Config struct {
	Port          int                 `json:"port"`
	Production    bool                `json:"production"`
	JWTSecret     string              `json:"jwt_secret"`
	JWTTTLHours   int                 `json:"jwt_ttl_hours"`
	CORSOrigins   []string            `json:"cors_origins"`
	Database      DatabaseConfig      `json:"database"`
	Redis         RedisConfig         `json:"redis"`
	Memcached     MemcachedConfig     `json:"memcached"`
	FastTier      FastTierConfig      `json:"fast_tier"`
	OTP           OTPConfig           `json:"otp"`
	Device        DeviceConfig        `json:"device"`
	IdentityCache IdentityCacheConfig `json:"identity_cache"`
	GenericCache  GenericCacheConfig  `json:"generic_cache"`
	Mail          MailConfig          `json:"mail"`
	OAuth         oauth.Config        `json:"oauth"`
	Jobs          JobsConfig          `json:"jobs"`
	Properties    Properties          `json:"properties"`
	LogConfig     logger.LogConfig    `json:"log_config"`
}

type DatabaseConfig struct {
	DSN          string `json:"dsn"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	DBName       string `json:"dbname"`
	SSLMode      string `json:"sslmode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

type RedisConfig struct {
	Addrs    []string `json:"addrs"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	DB       int      `json:"db"`
}

type MemcachedConfig struct {
	Servers []string `json:"servers"`
}

type FastTierConfig struct {
	Type   string `json:"type"`
	Prefix string `json:"prefix"`
}

type OTPConfig struct {
	TTLSeconds             int `json:"ttl_seconds"`
	ResendCooldownSeconds  int `json:"resend_cooldown_seconds"`
	ResendRateLimitSeconds int `json:"resend_rate_limit_seconds"`
}

type DeviceConfig struct {
	TokenTTLDays int    `json:"token_ttl_days"`
	Argon2       Argon2 `json:"argon2"`
}

type Argon2 struct {
	MemoryKB    uint32 `json:"memory_kb"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
}

type IdentityCacheConfig struct {
	FloorBytes      int64   `json:"floor_bytes"`
	IncrementBytes  int64   `json:"increment_bytes"`
	CeilingBytes    int64   `json:"ceiling_bytes"`
	GrowthThreshold float64 `json:"growth_threshold"`
	TTLSeconds      int     `json:"ttl_seconds"`
	MaxEntries      int     `json:"max_entries"`
}

type GenericCacheConfig struct {
	Namespace         string `json:"namespace"`
	DeviceListSeconds int    `json:"device_list_seconds"`
}

type MailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type JobsConfig struct {
	Workers             int    `json:"workers"`
	QueueSize           int    `json:"queue_size"`
	MaxRetries          uint64 `json:"max_retries"`
	MaxElapsedSeconds   int    `json:"max_elapsed_seconds"`
	OTPCleanupSpec      string `json:"otp_cleanup_spec"`
	OTPRetentionHours   int    `json:"otp_retention_hours"`
	DeviceCleanupSpec   string `json:"device_cleanup_spec"`
	DeviceRetentionDays int    `json:"device_retention_days"`
	RunTimeoutSeconds   int    `json:"run_timeout_seconds"`
}

// Properties are the public feature flags served to clients.
type Properties struct {
	EnableRegister bool `json:"enable_register"`
	EnableOAuth    bool `json:"enable_oauth"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if len(cfg.JWTSecret) < jwt.MinSecretLength {
		return fmt.Errorf("jwt_secret must be at least %d bytes", jwt.MinSecretLength)
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 24 * 7
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.FastTier.Type = strings.ToLower(strings.TrimSpace(cfg.FastTier.Type))
	if cfg.FastTier.Type == "" {
		cfg.FastTier.Type = FastTierRedis
	}
	if cfg.FastTier.Prefix == "" {
		cfg.FastTier.Prefix = "rentdesk"
	}
	switch cfg.FastTier.Type {
	case FastTierRedis:
		if len(cfg.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required for redis fast tier")
		}
	case FastTierMemcached:
		if len(cfg.Memcached.Servers) == 0 {
			return fmt.Errorf("memcached.servers is required for memcached fast tier")
		}
	case FastTierMemory:
	default:
		return fmt.Errorf("fast_tier.type must be redis, memcached or memory")
	}
	if len(cfg.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required for the generic cache")
	}
	if cfg.OTP.TTLSeconds == 0 {
		cfg.OTP.TTLSeconds = 300
	}
	if cfg.OTP.ResendCooldownSeconds == 0 {
		cfg.OTP.ResendCooldownSeconds = 60
	}
	if cfg.Device.TokenTTLDays == 0 {
		cfg.Device.TokenTTLDays = 90
	}
	if cfg.IdentityCache.TTLSeconds == 0 {
		cfg.IdentityCache.TTLSeconds = 300
	}
	if cfg.GenericCache.Namespace == "" {
		cfg.GenericCache.Namespace = "rentdesk"
	}
	if cfg.GenericCache.DeviceListSeconds == 0 {
		cfg.GenericCache.DeviceListSeconds = 60
	}
	if cfg.Jobs.OTPCleanupSpec == "" {
		cfg.Jobs.OTPCleanupSpec = "17 3 * * *"
	}
	if cfg.Jobs.DeviceCleanupSpec == "" {
		cfg.Jobs.DeviceCleanupSpec = "47 3 * * *"
	}
	if cfg.OTP.ResendRateLimitSeconds == 0 {
		cfg.OTP.ResendRateLimitSeconds = 10
	}
	return nil
}
