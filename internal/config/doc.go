// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > YAML config >
// Environment variables > Defaults. Files and environment variables are read
// through koanf; environment variables use the KEYFLAT_ prefix.
package config
