// Package config loads the receipt engine's configuration from files,
// environment variables, and defaults, in that order of increasing
// precedence. Environment variables use the RECEIPTS_ prefix with
// underscores for nesting, e.g. RECEIPTS_S3_BUCKET=receipts-prod.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/voltgrid/receipt-engine/common"
)

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Host is the bind address (default 0.0.0.0).
	Host string `mapstructure:"host"`

	// Port is the listen port (default 8080).
	Port int `mapstructure:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// S3Config contains object store connection settings. Endpoint and
// PathStyle support MinIO and Hetzner object storage.
type S3Config struct {
	Endpoint   string `mapstructure:"endpoint"`
	Region     string `mapstructure:"region"`
	Bucket     string `mapstructure:"bucket"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	PathStyle  bool   `mapstructure:"path_style"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// QueryConfig tunes the query engine.
type QueryConfig struct {
	// Workers bounds the per-shard scan parallelism (default 5).
	Workers int `mapstructure:"workers"`

	// CacheEnabled toggles the shard result cache (default true).
	CacheEnabled bool `mapstructure:"cache_enabled"`

	// CacheMaxSize bounds the number of cached shard results.
	CacheMaxSize int `mapstructure:"cache_max_size"`

	// CacheTTL is the per-entry lifetime.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level"`

	// Format is json or text.
	Format string `mapstructure:"format"`
}

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	S3      S3Config      `mapstructure:"s3"`
	Query   QueryConfig   `mapstructure:"query"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Empty-string defaults keep env-only keys visible to Unmarshal.
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.max_retries", 3)

	v.SetDefault("query.workers", 5)
	v.SetDefault("query.cache_enabled", true)
	v.SetDefault("query.cache_max_size", 100)
	v.SetDefault("query.cache_ttl", 300*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads configuration from the given file (optional) plus the
// environment, applies defaults, and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("RECEIPTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &common.ConfigError{Param: "config_file", Msg: err.Error()}
		}
	} else {
		v.SetConfigName("receipts")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/receipts/")
		// A missing default config file is fine; env and defaults apply.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, &common.ConfigError{Param: "config_file", Msg: err.Error()}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &common.ConfigError{Param: "config", Msg: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.S3.Bucket == "" {
		return &common.ConfigError{Param: "s3.bucket", Msg: "must not be empty"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &common.ConfigError{Param: "server.port", Msg: "must be in 1..65535"}
	}
	if c.Query.Workers < 0 {
		return &common.ConfigError{Param: "query.workers", Msg: "must not be negative"}
	}
	if c.Query.CacheMaxSize < 0 {
		return &common.ConfigError{Param: "query.cache_max_size", Msg: "must not be negative"}
	}
	return nil
}
