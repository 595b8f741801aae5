// Package logger builds the slog loggers used across the task engine:
// JSON or text handlers, level control, static attributes, and development
// and production presets.
package logger
