package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Clark-Hu/post-ratings/internal/logging"
)

// ConfigPathEnvVar points at an optional YAML file layered under the environment.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are probed in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config captures all runtime configuration. Keys are the lower-cased
// environment variable names so a YAML file and the environment share one
// vocabulary.
type Config struct {
	Port                string `koanf:"port"`
	AuthToken           string `koanf:"auth_token"`
	DBURL               string `koanf:"db_url"`
	ReadTimeoutSecs     int    `koanf:"server_read_timeout"`
	WriteTimeoutSecs    int    `koanf:"server_write_timeout"`
	IdleTimeoutSecs     int    `koanf:"server_idle_timeout"`
	DBMaxConns          int    `koanf:"db_max_conns"`
	DBMinConns          int    `koanf:"db_min_conns"`
	DBMaxIdleSecs       int    `koanf:"db_max_conn_idle_secs"`
	DBMaxLifeSecs       int    `koanf:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs   int    `koanf:"db_conn_timeout_secs"`
	DBStatementCache    int    `koanf:"db_statement_cache_capacity"`
	StoreTimeoutSecs    int    `koanf:"store_timeout_secs"`
	MigrateOnStart      bool   `koanf:"migrate_on_start"`
	LogLevel            string `koanf:"log_level"`
	LogFormat           string `koanf:"log_format"`
	CORSAllowedOrigins  string `koanf:"cors_allowed_origins"`
	RedisURL            string `koanf:"redis_url"`
	AverageCacheTTLSecs int    `koanf:"average_cache_ttl_secs"`
}

func defaults() Config {
	return Config{
		Port:                "8080",
		ReadTimeoutSecs:     15,
		WriteTimeoutSecs:    15,
		IdleTimeoutSecs:     60,
		DBMaxConns:          20,
		DBMinConns:          2,
		DBMaxIdleSecs:       300,
		DBMaxLifeSecs:       3600,
		DBConnTimeoutSecs:   10,
		DBStatementCache:    256,
		StoreTimeoutSecs:    5,
		MigrateOnStart:      true,
		LogLevel:            "info",
		LogFormat:           "json",
		CORSAllowedOrigins:  "*",
		AverageCacheTTLSecs: 900,
	}
}

// Load layers defaults, an optional YAML file and environment variables (in
// that order of precedence, lowest first), then validates the result.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required keys and numeric bounds.
func (c Config) Validate() error {
	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if c.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if c.StoreTimeoutSecs <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_SECS must be positive")
	}
	if c.AverageCacheTTLSecs < 0 {
		return fmt.Errorf("AVERAGE_CACHE_TTL_SECS must be non-negative")
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
