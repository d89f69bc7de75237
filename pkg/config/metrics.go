package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/pkg/metrics"
	"github.com/marmos91/saslgate/pkg/metrics/prometheus"
)

// MetricsResult holds what InitializeMetrics created.
type MetricsResult struct {
	// Exchange records negotiation metrics. It is nil when metrics are
	// disabled, which every consumer treats as a no-op.
	Exchange metrics.ExchangeMetrics

	// Server exposes /metrics. Nil when metrics are disabled.
	Server *http.Server
}

// InitializeMetrics creates the Prometheus registry and the metrics HTTP
// server when cfg.Metrics.Enabled is set. The server is not started; see
// MetricsResult.Serve.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		metrics.Reset()
		return MetricsResult{}
	}

	metrics.InitRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	return MetricsResult{
		Exchange: prometheus.NewExchangeMetrics(),
		Server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Serve runs the metrics server until ctx is done. It returns immediately
// when metrics are disabled.
func (r MetricsResult) Serve(ctx context.Context) error {
	if r.Server == nil {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", r.Server.Addr)
		errCh <- r.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.Server.Shutdown(shutdownCtx)
	}
}
