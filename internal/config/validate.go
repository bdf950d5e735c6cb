package config

import (
	"fmt"
	"regexp"
	"strings"
)

// validate checks the Config for invalid or out-of-range values, including
// cross-references between routing pools and the provider catalog. It
// returns a combined error listing every violation found.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.TLSEnabled {
		if cfg.Server.CertFile == "" {
			errs = append(errs, "server.cert_file must be set when tls_enabled is true")
		}
		if cfg.Server.KeyFile == "" {
			errs = append(errs, "server.key_file must be set when tls_enabled is true")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}
	if cfg.Server.MaxResponseSize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_response_size must be non-negative, got %d", cfg.Server.MaxResponseSize))
	}
	if cfg.Server.StreamTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.stream_timeout must be non-negative, got %d", cfg.Server.StreamTimeout))
	}
	if cfg.Server.HeartbeatMs < 0 {
		errs = append(errs, fmt.Sprintf("server.heartbeat_ms must be non-negative, got %d", cfg.Server.HeartbeatMs))
	}
	if cfg.Server.MaxConnsPerHost < 0 {
		errs = append(errs, fmt.Sprintf("server.max_conns_per_host must be non-negative, got %d", cfg.Server.MaxConnsPerHost))
	}

	for name, p := range cfg.Providers {
		if p.APIBase == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.api_base must not be empty", name))
		}
		if p.Path == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.path must not be empty", name))
		}
		if !isValidEnum(p.Protocol, ValidProtocols) {
			errs = append(errs, fmt.Sprintf("providers.%s.protocol must be one of %v, got %q", name, ValidProtocols, p.Protocol))
		}
		if !isValidEnum(p.AuthType, ValidAuthTypes) {
			errs = append(errs, fmt.Sprintf("providers.%s.auth_type must be one of %v, got %q", name, ValidAuthTypes, p.AuthType))
		}
		if p.AuthType == "apikey" && p.KeyRef == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.key_ref must be set when auth_type is apikey", name))
		}
		if p.AuthType == "oauth" {
			if p.OAuth == nil {
				errs = append(errs, fmt.Sprintf("providers.%s.oauth must be set when auth_type is oauth", name))
			} else {
				if p.OAuth.ClientID == "" {
					errs = append(errs, fmt.Sprintf("providers.%s.oauth.client_id must not be empty", name))
				}
				if p.OAuth.DeviceCodeURL == "" {
					errs = append(errs, fmt.Sprintf("providers.%s.oauth.device_code_url must not be empty", name))
				}
				if p.OAuth.TokenURL == "" {
					errs = append(errs, fmt.Sprintf("providers.%s.oauth.token_url must not be empty", name))
				}
			}
		}
		if p.Priority < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.priority must be non-negative, got %d", name, p.Priority))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.timeout must be non-negative", name))
		}
	}

	for category, specs := range cfg.Routing.Categories {
		for _, spec := range specs {
			if err := validatePoolEntry(cfg, spec); err != nil {
				errs = append(errs, fmt.Sprintf("routing.categories[%q]: %v", category, err))
			}
		}
	}
	for _, spec := range cfg.Routing.Default {
		if err := validatePoolEntry(cfg, spec); err != nil {
			errs = append(errs, fmt.Sprintf("routing.default: %v", err))
		}
	}

	th := cfg.Routing.Thresholds
	if th.Short < 0 || th.Medium < 0 || th.Long < 0 || th.LongContext < 0 {
		errs = append(errs, "routing.thresholds values must be non-negative")
	}
	if th.Short > 0 && th.Medium > 0 && th.Short >= th.Medium {
		errs = append(errs, fmt.Sprintf("routing.thresholds.short (%d) must be less than thresholds.medium (%d)", th.Short, th.Medium))
	}
	if th.Medium > 0 && th.Long > 0 && th.Medium >= th.Long {
		errs = append(errs, fmt.Sprintf("routing.thresholds.medium (%d) must be less than thresholds.long (%d)", th.Medium, th.Long))
	}

	for i, mp := range cfg.Routing.ModelPatterns {
		if _, err := regexp.Compile(mp.Pattern); err != nil {
			errs = append(errs, fmt.Sprintf("routing.model_patterns[%d].pattern %q does not compile: %v", i, mp.Pattern, err))
		}
		if mp.Category == "" {
			errs = append(errs, fmt.Sprintf("routing.model_patterns[%d].category must not be empty", i))
		}
	}

	if cfg.Resilience.RetryMaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_attempts must be non-negative, got %d", cfg.Resilience.RetryMaxAttempts))
	}
	if cfg.Resilience.RetryBaseDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_base_delay_ms must be non-negative, got %d", cfg.Resilience.RetryBaseDelayMs))
	}
	if cfg.Resilience.RetryMaxDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_delay_ms must be non-negative, got %d", cfg.Resilience.RetryMaxDelayMs))
	}
	if cfg.Resilience.CBFailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_failure_threshold must be at least 1, got %d", cfg.Resilience.CBFailureThreshold))
	}
	if cfg.Resilience.CBResetTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("resilience.cb_reset_timeout_seconds must be positive, got %d", cfg.Resilience.CBResetTimeoutSec))
	}
	if cfg.Resilience.CBHalfOpenMax < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_half_open_max_calls must be at least 1, got %d", cfg.Resilience.CBHalfOpenMax))
	}

	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if cfg.Snapshot.Enabled && !isValidEnum(cfg.Snapshot.Sink, ValidSnapshotSinks) {
		errs = append(errs, fmt.Sprintf("snapshot.sink must be one of %v, got %q", ValidSnapshotSinks, cfg.Snapshot.Sink))
	}
	if cfg.Snapshot.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Sprintf("snapshot.max_body_bytes must be non-negative, got %d", cfg.Snapshot.MaxBodyBytes))
	}
	if cfg.Snapshot.RetentionDays < 0 {
		errs = append(errs, fmt.Sprintf("snapshot.retention_days must be non-negative, got %d", cfg.Snapshot.RetentionDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validatePoolEntry checks that a "provider.model" or "provider.model.keyId"
// pool entry references a configured, enabled provider.
func validatePoolEntry(cfg *Config, spec string) error {
	parts := strings.Split(spec, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return fmt.Errorf("invalid pipeline reference %q: expected \"provider.model\" or \"provider.model.keyId\"", spec)
	}
	providerID := parts[0]
	p, ok := cfg.Providers[providerID]
	if !ok {
		return fmt.Errorf("%q references unknown provider %q", spec, providerID)
	}
	if !p.Enabled {
		return fmt.Errorf("%q references disabled provider %q", spec, providerID)
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
