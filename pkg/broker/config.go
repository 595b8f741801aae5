package broker

import "time"

// Config holds the Redis broker settings.
type Config struct {
	RedisURL             string        `env:"BROKER_REDIS_URL,required"`              // RedisURL is the redis connection string, e.g. redis://localhost:6379/0.
	Concurrency          int           `env:"BROKER_CONCURRENCY" envDefault:"10"`     // Concurrency is the number of handler goroutines per consumer.
	CompletedRetention   time.Duration `env:"BROKER_COMPLETED_RETENTION" envDefault:"168h"` // CompletedRetention is how long broker-side completed job records are kept.
	ConnectTimeout       time.Duration `env:"BROKER_CONNECT_TIMEOUT" envDefault:"10s"`
	ConnectRetries       int           `env:"BROKER_CONNECT_RETRIES" envDefault:"3"`
	ConnectRetryInterval time.Duration `env:"BROKER_CONNECT_RETRY_INTERVAL" envDefault:"2s"`
}
