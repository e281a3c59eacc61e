package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string `mapstructure:"server_port"`
	CORSOrigin string `mapstructure:"cors_origin"`

	DBType         string `mapstructure:"db_type"`
	DatabaseURL    string `mapstructure:"database_url"`
	DBMaxOpenConns int    `mapstructure:"db_max_open_conns"`
	DBLogLevel     string `mapstructure:"db_log_level"`

	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
	AdminPassword string        `mapstructure:"admin_password"`

	UploadDir   string `mapstructure:"upload_dir"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`

	ExtractorURL     string        `mapstructure:"extractor_url"`
	ExtractorAPIKey  string        `mapstructure:"extractor_api_key"`
	ExtractorTimeout time.Duration `mapstructure:"extractor_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	RedisAddr       string        `mapstructure:"redis_addr"`
	LoginRateLimit  int           `mapstructure:"login_rate_limit"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window"`
}

var supportedDBTypes = []string{"postgres", "mysql", "sqlite", "sqlserver"}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, from that YAML file. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DBType = strings.ToLower(cfg.DBType)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("db_type", "postgres")
	v.SetDefault("database_url", "postgresql://postgres@localhost:5432/exception_forms")
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("db_log_level", "warn")
	v.SetDefault("jwt_secret", "your-super-secret-key-change-in-production")
	v.SetDefault("jwt_expiration", 24*time.Hour)
	v.SetDefault("admin_password", "admin")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("extractor_url", "")
	v.SetDefault("extractor_api_key", "")
	v.SetDefault("extractor_timeout", 2*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("redis_addr", "")
	v.SetDefault("login_rate_limit", 10)
	v.SetDefault("login_rate_window", 5*time.Minute)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	supported := false
	for _, t := range supportedDBTypes {
		if c.DBType == t {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported DB_TYPE %q (expected one of %s)", c.DBType, strings.Join(supportedDBTypes, ", "))
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.LoginRateLimit <= 0 || c.LoginRateWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW must be positive")
	}
	return nil
}

// MaxUploadBytes is the request body limit applied to uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
