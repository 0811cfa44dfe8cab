// Package config loads service configuration from .env files, an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	IQAir     IQAirConfig     `mapstructure:"iqair"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Cache     CacheConfig     `mapstructure:"cache"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Env       string `mapstructure:"env"`
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// LogConfig controls the zerolog logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// IQAirConfig configures the upstream provider client.
type IQAirConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// CatalogConfig configures the city catalog and its populate job.
type CatalogConfig struct {
	Path               string        `mapstructure:"path"`
	PopulateOnStart    bool          `mapstructure:"populate_on_start"`
	PopulateCountry    string        `mapstructure:"populate_country"`
	PopulateStateDelay time.Duration `mapstructure:"populate_state_delay"`
	PopulateRetries    int           `mapstructure:"populate_retries"`
	PopulateRetryDelay time.Duration `mapstructure:"populate_retry_delay"`

	// ReloadInterval of zero or less disables periodic reloads.
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// CacheConfig configures the city result cache.
type CacheConfig struct {
	// CityTTL of zero or less disables the cache.
	CityTTL time.Duration `mapstructure:"city_ttl"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	RequireTLS     bool     `mapstructure:"require_tls"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Prometheus   bool   `mapstructure:"prometheus"`
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Load reads .env (if present), then CONFIG_FILE (if set), then environment
// variables. APP_PORT overrides app.port, IQAIR_API_KEY overrides iqair.api_key
// and so on.
func Load() (*Config, error) {
	return LoadWithFlags(nil, nil)
}

// LoadWithFlags is Load with command-line flags taking precedence over every
// other source. bindings maps config keys to flag names in fs; only flags the
// user actually set override.
func LoadWithFlags(fs *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range bindings {
		flag := fs.Lookup(name)
		if flag == nil {
			return nil, fmt.Errorf("bind %s: unknown flag --%s", key, name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.static_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("iqair.api_key", "")
	v.SetDefault("iqair.base_url", "http://api.airvisual.com/v2")
	v.SetDefault("iqair.timeout", 10*time.Second)
	v.SetDefault("iqair.max_attempts", 3)
	v.SetDefault("iqair.initial_backoff", time.Second)

	v.SetDefault("catalog.path", "cities_database.json")
	v.SetDefault("catalog.populate_on_start", false)
	v.SetDefault("catalog.populate_country", "Brazil")
	v.SetDefault("catalog.populate_state_delay", 60*time.Second)
	v.SetDefault("catalog.populate_retries", 5)
	v.SetDefault("catalog.populate_retry_delay", 60*time.Second)
	v.SetDefault("catalog.reload_interval", time.Duration(0))

	v.SetDefault("cache.city_ttl", 5*time.Minute)

	v.SetDefault("http.require_tls", false)
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.prometheus", false)
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port %d out of range", c.App.Port))
	}
	if c.IQAir.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("iqair.max_attempts must be positive, got %d", c.IQAir.MaxAttempts))
	}
	if c.IQAir.InitialBackoff < 0 {
		errs = append(errs, errors.New("iqair.initial_backoff must not be negative"))
	}
	if c.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}
	if c.Catalog.PopulateRetries <= 0 {
		errs = append(errs, fmt.Errorf("catalog.populate_retries must be positive, got %d", c.Catalog.PopulateRetries))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
