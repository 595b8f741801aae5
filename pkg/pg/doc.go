// Package pg bootstraps the PostgreSQL layer of the task engine: a pgx/v5
// connection pool opened with retry, goose schema migrations routed through
// the application logger, a healthcheck helper, and pgx error classification
// helpers used by the task store.
//
// Configuration comes from environment variables via the Config struct; see
// its field tags for variable names and defaults.
package pg
