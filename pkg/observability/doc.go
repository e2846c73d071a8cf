// Package observability provides structured logging, Prometheus metrics,
// health checks, panic recovery and graceful shutdown for the fishdeas
// backend.
//
// The logger emits JSON via log/slog and supports contextual fields:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("session issued")
//
// Metrics are registered on a private prometheus.Registry and exposed on
// the health port via RegisterMetricsEndpoint.
package observability
