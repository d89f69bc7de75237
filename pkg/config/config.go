package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/saslgate/pkg/directory"
	"github.com/marmos91/saslgate/pkg/realm"
	"github.com/marmos91/saslgate/pkg/realm/kerberos"
	"github.com/marmos91/saslgate/pkg/realm/sqlrealm"
	"github.com/marmos91/saslgate/pkg/trust"
)

// Config represents the saslgate configuration.
//
// It describes one side of a negotiation:
//   - Logging, telemetry and metrics
//   - Negotiation (side, mechanism filters, property layers, forced names)
//   - The realm verifying credentials on the server side
//   - Trust material for directory connections
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SASLGATE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Negotiation configures the factory chain
	Negotiation NegotiationConfig `mapstructure:"negotiation" yaml:"negotiation"`

	// Realm selects where server-side credentials are verified
	Realm RealmConfig `mapstructure:"realm" yaml:"realm"`

	// Trust is the trust material for LDAPS and StartTLS connections
	Trust trust.Config `mapstructure:"trust" yaml:"trust"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// NegotiationConfig describes the factory chain, built inside out:
// base factory, property layers, allow and deny filters, protocol and
// server name, observation.
type NegotiationConfig struct {
	// Side is the role of the handles created. Valid values: client, server
	// Default: server
	Side string `mapstructure:"side" validate:"required,oneof=client server" yaml:"side"`

	// Allow restricts advertised mechanisms to these names. Empty allows all.
	Allow []string `mapstructure:"allow" yaml:"allow,omitempty"`

	// Deny removes these names after Allow.
	Deny []string `mapstructure:"deny" yaml:"deny,omitempty"`

	// PropertyLayers are applied in order, each one wrapping the previous
	// chain. A key set by several layers takes the value from the first
	// one. Every layer must be a mapping; nested mappings are flattened
	// into dotted keys, so `sasl: {policy: {noplaintext: true}}` configures
	// sasl.policy.noplaintext.
	PropertyLayers []any `mapstructure:"property_layers" yaml:"property_layers,omitempty" jsonschema:"type=array"`

	// Protocol forces the service name passed to mechanisms, e.g. "ldap".
	Protocol string `mapstructure:"protocol" yaml:"protocol,omitempty"`

	// ServerName forces the fully qualified server name.
	ServerName string `mapstructure:"server_name" yaml:"server_name,omitempty"`

	// AuthorizationID is the identity a client asks to act as.
	AuthorizationID string `mapstructure:"authorization_id" yaml:"authorization_id,omitempty"`
}

// Realm types.
const (
	RealmFile     = "file"
	RealmLDAP     = "ldap"
	RealmSQL      = "sql"
	RealmToken    = "token"
	RealmKerberos = "kerberos"
)

// RealmConfig selects and configures the credential realm.
type RealmConfig struct {
	// Type is one of file, ldap, sql, token, kerberos.
	// Default: file
	Type string `mapstructure:"type" yaml:"type"`

	// AllowAnonymous accepts ANONYMOUS logins.
	AllowAnonymous bool `mapstructure:"allow_anonymous" yaml:"allow_anonymous"`

	// LookupTimeout bounds every credential lookup.
	// Default: 10s
	LookupTimeout time.Duration `mapstructure:"lookup_timeout" validate:"omitempty,gt=0" yaml:"lookup_timeout"`

	File     FileRealmConfig      `mapstructure:"file" yaml:"file,omitempty"`
	LDAP     directory.LDAPConfig `mapstructure:"ldap" yaml:"ldap,omitempty"`
	SQL      sqlrealm.Config      `mapstructure:"sql" yaml:"sql,omitempty"`
	Kerberos kerberos.Config      `mapstructure:"kerberos" yaml:"kerberos,omitempty"`

	// Token verifies OAUTHBEARER tokens. It is used with any realm type
	// when a secret is set, and is the only verifier for type token.
	Token realm.TokenConfig `mapstructure:"token" yaml:"token,omitempty"`
}

// FileRealmConfig configures the YAML file realm.
type FileRealmConfig struct {
	// Path is the realm file.
	// Default: $XDG_CONFIG_HOME/saslgate/realm.yaml
	Path string `mapstructure:"path" yaml:"path"`

	// Watch reloads the file when it changes.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SASLGATE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  saslgate init\n\n"+
				"Or specify a custom config file:\n"+
				"  saslgate <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  saslgate init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Owner-only: the file may hold bind passwords and token secrets.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: SASLGATE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SASLGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "saslgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "saslgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
