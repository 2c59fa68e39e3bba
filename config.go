package ransxm

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/ransxm/ransxm-console/gateway"
	"github.com/ransxm/ransxm-console/session"
)

// EnvPrefix prefixes every environment variable the console reads.
const EnvPrefix = "RANSXM"

// Config holds the console configuration.
type Config struct {
	// APIBase is the RANSXM API base URL, including the /api suffix.
	APIBase string `mapstructure:"api_base"`

	// RequestTimeout bounds every API call. Default is 15 seconds.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// SessionStore selects where the token and user are kept:
	// "duckdb" (default), "redis" or "memory".
	SessionStore string `mapstructure:"session_store"`

	// SessionPath is the DuckDB session file.
	SessionPath string `mapstructure:"session_path"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	// SessionTTL expires Redis session slots. 0 keeps them until logout.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// PageSize is the number of keys per page. Default is 20.
	PageSize int `mapstructure:"page_size"`

	// SearchDebounce is the quiescence delay of shell search input.
	SearchDebounce time.Duration `mapstructure:"search_debounce"`

	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
	LogMaxSizeMB int    `mapstructure:"log_max_size_mb"`

	// AssumeYes answers every confirmation with yes.
	AssumeYes bool `mapstructure:"assume_yes"`
}

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// ConfigFile is an explicit config file. When empty, config.yaml in the
	// user config directory is read if it exists.
	ConfigFile string
	// EnvFile is a dotenv file merged over the config file. Default ".env".
	EnvFile string
	// Flags are command-line flags bound over every other source.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"api":       "api_base",
	"store":     "session_store",
	"yes":       "assume_yes",
	"log-level": "log_level",
}

// ConfigDir returns the directory holding the config file and session data.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "ransxm")
}

func setDefaults(v *viper.Viper) {
	dir := ConfigDir()
	v.SetDefault("api_base", gateway.DefaultBaseURL)
	v.SetDefault("request_timeout", gateway.DefaultTimeout)
	v.SetDefault("session_store", string(session.KindDuckDB))
	v.SetDefault("session_path", filepath.Join(dir, "session.duckdb"))
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "ransxm")
	v.SetDefault("session_ttl", time.Duration(0))
	v.SetDefault("page_size", 20)
	v.SetDefault("search_debounce", 300*time.Millisecond)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", filepath.Join(dir, "ransxm.log"))
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("assume_yes", false)
}

// LoadConfig builds the configuration from defaults, the config file, the
// dotenv file, RANSXM_* environment variables and flags, in increasing
// precedence, and validates it.
func LoadConfig(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := mergeEnvFile(v, opts.EnvFile); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeEnvFile reads RANSXM_* entries of a dotenv file into the config layer.
// A missing file is ignored.
func mergeEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	prefix := strings.ToLower(EnvPrefix) + "_"
	values := make(map[string]any)
	for _, key := range ev.AllKeys() {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			values[name] = ev.Get(key)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return v.MergeConfigMap(values)
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_base: %q (must be an http or https URL)", c.APIBase)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be greater than 0")
	}
	switch session.Kind(c.SessionStore) {
	case session.KindMemory, session.KindDuckDB:
	case session.KindRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required when session_store is redis")
		}
	default:
		return fmt.Errorf("invalid session_store: %s (must be 'duckdb', 'redis' or 'memory')", c.SessionStore)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must be >= 0 (0 disables expiry)")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be greater than 0")
	}
	if c.SearchDebounce <= 0 {
		return fmt.Errorf("search_debounce must be greater than 0")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if c.LogMaxSizeMB < 0 {
		return fmt.Errorf("log_max_size_mb must be >= 0")
	}
	return nil
}

// SessionConfig returns the session store settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Kind:          session.Kind(c.SessionStore),
		Path:          c.SessionPath,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisPrefix:   c.RedisPrefix,
		TTL:           c.SessionTTL,
	}
}
