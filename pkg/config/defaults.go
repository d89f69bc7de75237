package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/saslgate/pkg/trust"
)

// DefaultLookupTimeout bounds credential lookups when none is configured.
const DefaultLookupTimeout = 10 * time.Second

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyNegotiationDefaults(&cfg.Negotiation)
	applyRealmDefaults(&cfg.Realm)
	applyTrustDefaults(&cfg.Trust)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyNegotiationDefaults(cfg *NegotiationConfig) {
	if cfg.Side == "" {
		cfg.Side = "server"
	}
	cfg.Side = strings.ToLower(cfg.Side)
	cfg.Allow = upper(cfg.Allow)
	cfg.Deny = upper(cfg.Deny)
}

func upper(names []string) []string {
	for i, n := range names {
		names[i] = strings.ToUpper(strings.TrimSpace(n))
	}
	return names
}

// applyRealmDefaults fills the selected realm's sub-config only, so unused
// sections stay empty in saved files.
func applyRealmDefaults(cfg *RealmConfig) {
	if cfg.Type == "" {
		cfg.Type = RealmFile
	}
	cfg.Type = strings.ToLower(cfg.Type)
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}

	switch cfg.Type {
	case RealmFile:
		if cfg.File.Path == "" {
			cfg.File.Path = filepath.Join(getConfigDir(), "realm.yaml")
		}
	case RealmLDAP:
		if cfg.LDAP.Timeout == 0 {
			cfg.LDAP.Timeout = cfg.LookupTimeout
		}
		cfg.LDAP.ApplyDefaults()
	case RealmSQL:
		cfg.SQL.ApplyDefaults()
	}
}

func applyTrustDefaults(cfg *trust.Config) {
	if cfg.MinVersion == "" {
		cfg.MinVersion = trust.DefaultMinVersion
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
