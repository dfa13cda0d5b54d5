// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, backend URLs, the scorer and breaker timeout of the
// upstream selector, and the metrics pipeline.
package config
