package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a functional option for configuring the collector
type Option func(*collectorOptions)

type collectorOptions struct {
	registerer prometheus.Registerer
	logger     *slog.Logger
}

// WithRegisterer registers the gauges on a custom registry instead of the
// process-global default.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *collectorOptions) {
		if r != nil {
			o.registerer = r
		}
	}
}

// WithLogger sets the logger for the collector
func WithLogger(logger *slog.Logger) Option {
	return func(o *collectorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
