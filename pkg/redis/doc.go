// Package redis provides the go-redis client factory used by the broker:
// URL-based configuration, ping-verified connection with retry, and a
// healthcheck helper.
package redis
