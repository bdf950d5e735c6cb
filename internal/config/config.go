// Package config loads and validates RouteCodex's runtime configuration:
// the server bind settings, the provider catalog, the virtual router's
// route pools and classification thresholds, and the ambient resilience,
// tracing, and snapshot knobs every provider pipeline shares.
//
// Config loading and schema validation are thin glue around the core
// gateway — this package exists so the binary runs, not as a subsystem the
// spec elaborates on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe, lock-free access. A
// reload swaps the pointer atomically; in-flight requests keep reading
// whichever Config they already loaded.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last
// successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. Safe for concurrent use. If no config has
// been loaded yet, returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is RouteCodex's top-level configuration.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"     toml:"server"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"  toml:"providers"`
	Routing    RoutingConfig             `mapstructure:"routing"    toml:"routing"`
	Resilience ResilienceConfig          `mapstructure:"resilience" toml:"resilience"`
	Tracing    TracingConfig             `mapstructure:"tracing"    toml:"tracing"`
	Snapshot   SnapshotConfig            `mapstructure:"snapshot"   toml:"snapshot"`
}

// ServerConfig holds the HTTP entrypoint's bind and transport settings.
type ServerConfig struct {
	BindAddress        string `mapstructure:"bind_address"          toml:"bind_address"`
	Port               int    `mapstructure:"port"                  toml:"port"`
	LogLevel           string `mapstructure:"log_level"             toml:"log_level"`
	DataDir            string `mapstructure:"data_dir"              toml:"data_dir"`
	TLSEnabled         bool   `mapstructure:"tls_enabled"            toml:"tls_enabled"`
	CertFile           string `mapstructure:"cert_file"             toml:"cert_file"`
	KeyFile            string `mapstructure:"key_file"              toml:"key_file"`
	ReadTimeout        int    `mapstructure:"read_timeout"          toml:"read_timeout"`  // seconds
	WriteTimeout       int    `mapstructure:"write_timeout"         toml:"write_timeout"` // seconds
	IdleTimeout        int    `mapstructure:"idle_timeout"          toml:"idle_timeout"`  // seconds
	MaxBodySize        int64  `mapstructure:"max_body_size"         toml:"max_body_size"`
	MaxResponseSize    int64  `mapstructure:"max_response_size"     toml:"max_response_size"`
	StreamTimeout      int    `mapstructure:"stream_timeout"        toml:"stream_timeout"` // seconds
	HeartbeatMs        int    `mapstructure:"heartbeat_ms"          toml:"heartbeat_ms"`
	MaxConnsPerHost    int    `mapstructure:"max_conns_per_host"    toml:"max_conns_per_host"`
	PipelineMaxWaitSec int    `mapstructure:"pipeline_max_wait_sec" toml:"pipeline_max_wait_sec"`

	// AdminToken gates /admin/config behind a constant-time bearer check.
	// Empty disables the check entirely; set it before exposing the
	// gateway beyond localhost.
	AdminToken string `mapstructure:"admin_token" toml:"admin_token"`
}

// ProviderOAuthConfig configures a provider that authenticates via the
// device-authorization-grant flow instead of a static API key.
type ProviderOAuthConfig struct {
	ClientID      string `mapstructure:"client_id"       toml:"client_id"`
	Scope         string `mapstructure:"scope"           toml:"scope"`
	DeviceCodeURL string `mapstructure:"device_code_url" toml:"device_code_url"`
	TokenURL      string `mapstructure:"token_url"       toml:"token_url"`
}

// ProviderConfig describes a single LLM backend and how requests reach it.
type ProviderConfig struct {
	Name     string               `mapstructure:"name"      toml:"name"`
	APIBase  string               `mapstructure:"api_base"  toml:"api_base"`
	Path     string               `mapstructure:"path"      toml:"path"`     // joined onto api_base, e.g. "/v1/chat/completions"
	Protocol string               `mapstructure:"protocol"  toml:"protocol"` // wire dialect this backend speaks: "chat", "responses", or "anthropic"
	AuthType string               `mapstructure:"auth_type" toml:"auth_type"` // "apikey" or "oauth"
	KeyRef   string               `mapstructure:"key_ref"   toml:"key_ref"`   // vault reference, apikey auth only
	OAuth    *ProviderOAuthConfig `mapstructure:"oauth"     toml:"oauth,omitempty"`
	Models   []string             `mapstructure:"models"    toml:"models"`
	Enabled  bool                 `mapstructure:"enabled"   toml:"enabled"`
	Priority int                  `mapstructure:"priority"  toml:"priority"`
	Timeout  int                  `mapstructure:"timeout"   toml:"timeout"` // seconds
	AlwaysStream bool             `mapstructure:"always_stream" toml:"always_stream"`
}

// TimeoutDuration returns the provider timeout as a time.Duration.
func (p ProviderConfig) TimeoutDuration() time.Duration {
	if p.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.Timeout) * time.Second
}

// ThresholdsConfig mirrors router.Thresholds, expressed as config so
// operators can tune classification boundaries without a rebuild.
type ThresholdsConfig struct {
	Short       int `mapstructure:"short"        toml:"short"`
	Medium      int `mapstructure:"medium"       toml:"medium"`
	Long        int `mapstructure:"long"         toml:"long"`
	LongContext int `mapstructure:"long_context" toml:"long_context"`
}

// ModelPatternConfig is one model-name-regex-to-category override.
type ModelPatternConfig struct {
	Pattern  string `mapstructure:"pattern"  toml:"pattern"`
	Category string `mapstructure:"category" toml:"category"`
}

// RoutingConfig declares the virtual router's pools: one ordered list of
// "provider.model" or "provider.model.keyId" pipeline references per route
// category, plus a fallback default pool used when a category has no pool
// of its own or its pool is exhausted of healthy entries.
type RoutingConfig struct {
	Categories    map[string][]string   `mapstructure:"categories"     toml:"categories"`
	Default       []string              `mapstructure:"default"        toml:"default"`
	Thresholds    ThresholdsConfig      `mapstructure:"thresholds"     toml:"thresholds"`
	ModelPatterns []ModelPatternConfig  `mapstructure:"model_patterns" toml:"model_patterns"`
}

// ResilienceConfig controls retry and circuit-breaker behavior shared by
// every provider pipeline.
type ResilienceConfig struct {
	RetryMaxAttempts   int  `mapstructure:"retry_max_attempts"       toml:"retry_max_attempts"`
	RetryBaseDelayMs   int  `mapstructure:"retry_base_delay_ms"      toml:"retry_base_delay_ms"`
	RetryMaxDelayMs    int  `mapstructure:"retry_max_delay_ms"       toml:"retry_max_delay_ms"`
	CBEnabled          bool `mapstructure:"circuit_breaker_enabled"  toml:"circuit_breaker_enabled"`
	CBFailureThreshold int  `mapstructure:"cb_failure_threshold"     toml:"cb_failure_threshold"`
	CBResetTimeoutSec  int  `mapstructure:"cb_reset_timeout_seconds" toml:"cb_reset_timeout_seconds"`
	CBHalfOpenMax      int  `mapstructure:"cb_half_open_max_calls"   toml:"cb_half_open_max_calls"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"` // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`
	ServiceName string  `mapstructure:"service_name" toml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`
}

// SnapshotConfig controls the observability sink.
type SnapshotConfig struct {
	Enabled      bool   `mapstructure:"enabled"        toml:"enabled"`
	Sink         string `mapstructure:"sink"           toml:"sink"` // "zerolog", "sqlite", or "nop"
	MaxBodyBytes int    `mapstructure:"max_body_bytes" toml:"max_body_bytes"`

	// RetentionDays bounds how long persisted snapshot rows are kept when
	// Sink is "sqlite"; the daemon's pruner deletes rows older than this
	// on an hourly tick. Ignored by the zerolog and nop sinks, which keep
	// nothing to prune.
	RetentionDays int `mapstructure:"retention_days" toml:"retention_days"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (ROUTECODEX_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.routecodex/config.toml
//  4. ./routecodex.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setViperDefaults(v)

	v.SetEnvPrefix("ROUTECODEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeCfg := ""
		if homeDir, err := os.UserHomeDir(); err == nil {
			homeCfg = filepath.Join(homeDir, ".routecodex", DefaultConfigFilename)
		}
		if _, err := os.Stat(homeCfg); homeCfg != "" && err == nil {
			v.SetConfigFile(homeCfg)
		} else {
			v.AddConfigPath(".")
			v.SetConfigName("routecodex")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to
// ~/.routecodex/config.toml. If the file already exists it is not
// overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".routecodex")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so env var binding
// works even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.max_response_size", d.Server.MaxResponseSize)
	v.SetDefault("server.stream_timeout", d.Server.StreamTimeout)
	v.SetDefault("server.heartbeat_ms", d.Server.HeartbeatMs)
	v.SetDefault("server.max_conns_per_host", d.Server.MaxConnsPerHost)
	v.SetDefault("server.pipeline_max_wait_sec", d.Server.PipelineMaxWaitSec)
	v.SetDefault("server.admin_token", d.Server.AdminToken)

	v.SetDefault("routing.default", d.Routing.Default)
	v.SetDefault("routing.thresholds.short", d.Routing.Thresholds.Short)
	v.SetDefault("routing.thresholds.medium", d.Routing.Thresholds.Medium)
	v.SetDefault("routing.thresholds.long", d.Routing.Thresholds.Long)
	v.SetDefault("routing.thresholds.long_context", d.Routing.Thresholds.LongContext)

	v.SetDefault("resilience.retry_max_attempts", d.Resilience.RetryMaxAttempts)
	v.SetDefault("resilience.retry_base_delay_ms", d.Resilience.RetryBaseDelayMs)
	v.SetDefault("resilience.retry_max_delay_ms", d.Resilience.RetryMaxDelayMs)
	v.SetDefault("resilience.circuit_breaker_enabled", d.Resilience.CBEnabled)
	v.SetDefault("resilience.cb_failure_threshold", d.Resilience.CBFailureThreshold)
	v.SetDefault("resilience.cb_reset_timeout_seconds", d.Resilience.CBResetTimeoutSec)
	v.SetDefault("resilience.cb_half_open_max_calls", d.Resilience.CBHalfOpenMax)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	v.SetDefault("snapshot.enabled", d.Snapshot.Enabled)
	v.SetDefault("snapshot.sink", d.Snapshot.Sink)
	v.SetDefault("snapshot.max_body_bytes", d.Snapshot.MaxBodyBytes)
	v.SetDefault("snapshot.retention_days", d.Snapshot.RetentionDays)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
