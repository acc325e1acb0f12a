// Package config loads tabula's settings from tabula.yaml and TABULA_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/koustreak/tabula/internal/cache"
	"github.com/koustreak/tabula/internal/database"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/filestore"
	"github.com/koustreak/tabula/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. TABULA_DATABASE_DSN.
const EnvPrefix = "TABULA"

// Config is the full tabula configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Filestore FilestoreConfig `mapstructure:"filestore"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig selects and tunes the backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SeedFile        string        `mapstructure:"seed_file"` // memory driver only
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// MetadataConfig controls schema resolution.
type MetadataConfig struct {
	StaticFile           string `mapstructure:"static_file"`
	StaticBucket         string `mapstructure:"static_bucket"`
	StaticObject         string `mapstructure:"static_object"`
	SampleSize           int    `mapstructure:"sample_size"`
	NamespacePrimaryKeys bool   `mapstructure:"namespace_primary_keys"`
	StrictRelationNames  bool   `mapstructure:"strict_relation_names"`
	OptionLimit          int    `mapstructure:"option_limit"`
}

// CacheConfig controls the in-process caches and the shared schema store.
type CacheConfig struct {
	MaxAge        time.Duration `mapstructure:"max_age"`
	EnforceMaxAge bool          `mapstructure:"enforce_max_age"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	SharedTTL     time.Duration `mapstructure:"shared_ttl"`
}

// FilestoreConfig points at the object store holding static metadata.
type FilestoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	db := database.DefaultConfig(database.DriverMemory, "")
	v.SetDefault("database.driver", string(db.Driver))
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.seed_file", "")
	v.SetDefault("database.max_conns", db.MaxConns)
	v.SetDefault("database.min_conns", db.MinConns)
	v.SetDefault("database.max_conn_lifetime", db.MaxConnLifetime)
	v.SetDefault("database.max_conn_idle_time", db.MaxConnIdleTime)
	v.SetDefault("database.connect_timeout", db.ConnectTimeout)
	v.SetDefault("database.query_timeout", db.QueryTimeout)

	v.SetDefault("metadata.static_file", "")
	v.SetDefault("metadata.static_bucket", "")
	v.SetDefault("metadata.static_object", "")
	v.SetDefault("metadata.sample_size", 10)
	v.SetDefault("metadata.namespace_primary_keys", true)
	v.SetDefault("metadata.strict_relation_names", false)
	v.SetDefault("metadata.option_limit", 500)

	redis := cache.DefaultRedisConfig()
	v.SetDefault("cache.max_age", time.Duration(0))
	v.SetDefault("cache.enforce_max_age", false)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", redis.Prefix)
	v.SetDefault("cache.shared_ttl", redis.DefaultTTL)

	v.SetDefault("filestore.endpoint", "")
	v.SetDefault("filestore.access_key", "")
	v.SetDefault("filestore.secret_key", "")
	v.SetDefault("filestore.use_ssl", false)
	v.SetDefault("filestore.region", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads path, or tabula.yaml from the working directory when path is
// empty, applies TABULA_* overrides and validates the result. A missing
// tabula.yaml is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tabula")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	drivers = map[string]bool{
		string(database.DriverPostgres): true,
		string(database.DriverMySQL):    true,
		string(database.DriverSQLite):   true,
		string(database.DriverMemory):   true,
	}
	levels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	formats = map[string]bool{"json": true, "console": true}
)

// Validate reports every problem with c in a single error.
func (c *Config) Validate() error {
	var problems []string

	if !drivers[c.Database.Driver] {
		problems = append(problems, fmt.Sprintf("database.driver %q must be one of postgres, mysql, sqlite, memory", c.Database.Driver))
	}
	if c.Database.Driver != string(database.DriverMemory) && c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required unless database.driver is memory")
	}
	if c.Database.MaxConns <= 0 {
		problems = append(problems, "database.max_conns must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		problems = append(problems, fmt.Sprintf("database.min_conns (%d) must be between 0 and max_conns (%d)", c.Database.MinConns, c.Database.MaxConns))
	}
	if c.Database.QueryTimeout < 0 {
		problems = append(problems, "database.query_timeout must not be negative")
	}

	if c.Metadata.SampleSize <= 0 {
		problems = append(problems, "metadata.sample_size must be positive")
	}
	if c.Metadata.OptionLimit <= 0 {
		problems = append(problems, "metadata.option_limit must be positive")
	}
	if (c.Metadata.StaticBucket == "") != (c.Metadata.StaticObject == "") {
		problems = append(problems, "metadata.static_bucket and metadata.static_object must be set together")
	}
	if c.Metadata.StaticFile != "" && c.Metadata.StaticBucket != "" {
		problems = append(problems, "metadata.static_file and metadata.static_bucket are mutually exclusive")
	}
	if c.Metadata.StaticBucket != "" && c.Filestore.Endpoint == "" {
		problems = append(problems, "filestore.endpoint is required when metadata.static_bucket is set")
	}

	if c.Cache.MaxAge < 0 {
		problems = append(problems, "cache.max_age must not be negative")
	}
	if c.Cache.EnforceMaxAge && c.Cache.MaxAge == 0 {
		problems = append(problems, "cache.enforce_max_age needs a positive cache.max_age")
	}
	if c.Cache.SharedTTL < 0 {
		problems = append(problems, "cache.shared_ttl must not be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "server.shutdown_timeout must be positive")
	}

	if !levels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	if !formats[strings.ToLower(c.Logging.Format)] {
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DatabaseConfig converts the database section for the drivers.
func (c *Config) DatabaseConfig() *database.Config {
	return &database.Config{
		Driver:          database.Driver(c.Database.Driver),
		DSN:             c.Database.DSN,
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: c.Database.MaxConnLifetime,
		MaxConnIdleTime: c.Database.MaxConnIdleTime,
		ConnectTimeout:  c.Database.ConnectTimeout,
		QueryTimeout:    c.Database.QueryTimeout,
	}
}

// FilestoreConfig converts the filestore section.
func (c *Config) FilestoreConfig() *filestore.Config {
	fc := filestore.DefaultConfig(c.Filestore.Endpoint, c.Filestore.AccessKey, c.Filestore.SecretKey)
	fc.UseSSL = c.Filestore.UseSSL
	fc.Region = c.Filestore.Region
	return fc
}

// RedisConfig converts the shared cache settings. The shared store is off
// when RedisAddr is empty.
func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:       c.Cache.RedisAddr,
		Password:   c.Cache.RedisPassword,
		DB:         c.Cache.RedisDB,
		Prefix:     c.Cache.RedisPrefix,
		DefaultTTL: c.Cache.SharedTTL,
	}
}

// CacheOptions returns the options every in-process cache is built with.
func (c *Config) CacheOptions() []cache.Option {
	if c.Cache.EnforceMaxAge {
		return []cache.Option{cache.WithEnforcedMaxAge(c.Cache.MaxAge)}
	}
	if c.Cache.MaxAge > 0 {
		return []cache.Option{cache.WithMaxAge(c.Cache.MaxAge)}
	}
	return nil
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.Format = c.Logging.Format
	return lc
}

// Addr is the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
