// Package config handles loading and parsing of configuration from YAML files,
// environment variables and command-line overrides. It defines the file server
// settings (port, workers, document root, timeouts), the transfer mode, logging
// sinks, the optional metrics endpoint and the backend list used for load-based
// server selection together with its sampling and circuit breaker settings.
package config
