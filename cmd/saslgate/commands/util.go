package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/internal/cli/output"
	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/internal/telemetry"
	"github.com/marmos91/saslgate/pkg/config"
	"github.com/marmos91/saslgate/pkg/provider"
)

// env is the process state shared by commands that run exchanges.
type env struct {
	cfg      *config.Config
	registry *provider.Registry
	metrics  config.MetricsResult
	stop     []func()
}

// Close releases everything setup acquired, in reverse order.
func (e *env) Close() {
	for i := len(e.stop) - 1; i >= 0; i-- {
		e.stop[i]()
	}
}

// setup loads configuration and starts logging, tracing, profiling and
// metrics as configured, then installs the builtin provider.
func setup(ctx context.Context) (*env, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, registry: provider.NewRegistry()}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "saslgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	e.stop = append(e.stop, func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	})

	stopProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "saslgate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}
	e.stop = append(e.stop, func() {
		if err := stopProfiling(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	})

	e.metrics = config.InitializeMetrics(cfg)

	guard, err := e.registry.Install(provider.Builtin())
	if err != nil {
		e.Close()
		return nil, err
	}
	e.stop = append(e.stop, guard.Release)

	logger.Debug("configuration loaded", logger.KeyPath, configSource(), logger.KeySide, cfg.Negotiation.Side, logger.Realm(cfg.Realm.Type))
	return e, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func configSource() string {
	if f := GetConfigFile(); f != "" {
		return f
	}
	return config.GetDefaultConfigPath()
}

// printer returns a Printer for the global --output and --no-color flags.
func printer(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, !noColor), nil
}
