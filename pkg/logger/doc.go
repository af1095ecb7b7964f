// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package: New builds the console logger used
// across the application, and NewFile builds the append-only error and
// connection logs written next to the server.
package logger
