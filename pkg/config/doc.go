// Package config loads environment-driven configuration structs via
// caarlos0/env with optional .env support. Each config type is parsed once
// per process and cached; sentinel errors signal parse failures.
package config
