package metrics

import "time"

// Config holds the metrics sampling settings consumed by NewCollector,
// loadable from the environment with pkg/config.
type Config struct {
	SampleInterval time.Duration `env:"METRICS_SAMPLE_INTERVAL" envDefault:"10s"`
}
