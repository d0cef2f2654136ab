// Package logger provides structured logging for PageFinder
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with PageFinder-specific helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "pagefinder").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger, for packages that accept
// one directly
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// With returns a logger carrying an extra string field
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(key, value).Logger()}
}

func (l *Logger) component(name, key, value string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", name).
			Str(key, value).
			Logger(),
	}
}

// GrpcLogger returns a logger for gRPC operations
func (l *Logger) GrpcLogger(method string) *Logger {
	return l.component("grpc", "method", method)
}

// StoreLogger returns a logger for text store operations
func (l *Logger) StoreLogger(operation string) *Logger {
	return l.component("store", "operation", operation)
}

// SearchLogger returns a logger for a table search run
func (l *Logger) SearchLogger(runID string) *Logger {
	return l.component("search", "run_id", runID)
}

// IngestLogger returns a logger for an ingestion run
func (l *Logger) IngestLogger(runID string) *Logger {
	return l.component("ingest", "run_id", runID)
}

// LogGrpcRequest logs a completed gRPC request
func (l *Logger) LogGrpcRequest(method string, duration time.Duration, err error) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "grpc").
		Str("method", method).
		Dur("duration_ms", duration).
		Msg("gRPC request completed")
}

// LogHTTPRequest logs a completed HTTP request
func (l *Logger) LogHTTPRequest(method, path string, status int, duration time.Duration) {
	event := l.zlog.Info()
	if status >= 500 {
		event = l.zlog.Error()
	}
	event.
		Str("component", "http").
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration_ms", duration).
		Msg("HTTP request completed")
}

// LogStoreOperation logs a text store operation
func (l *Logger) LogStoreOperation(operation string, duration time.Duration, recordCount int, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "store").
		Str("operation", operation).
		Dur("duration_ms", duration).
		Int("record_count", recordCount).
		Msg("Store operation completed")
}

// LogDocumentSearch logs the outcome of searching one document
func (l *Logger) LogDocumentSearch(docID string, tablesFound int, duration time.Duration, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Warn().Err(err)
	}
	event.
		Str("component", "search").
		Str("doc_id", docID).
		Int("tables_found", tablesFound).
		Dur("duration_ms", duration).
		Msg("Document searched")
}

// LogIngestFile logs the outcome of ingesting one file
func (l *Logger) LogIngestFile(path, status string, pages int, duration time.Duration, err error) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "ingest").
		Str("file", path).
		Str("status", status).
		Int("pages", pages).
		Dur("duration_ms", duration).
		Msg("File processed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(grpcPort, httpPort int, dbPath string) {
	l.zlog.Info().
		Str("event", "server_start").
		Int("grpc_port", grpcPort).
		Int("http_port", httpPort).
		Str("database", dbPath).
		Msg("PageFinder server starting")
}

// LogServerReady logs when server is ready
func (l *Logger) LogServerReady(grpcPort int) {
	l.zlog.Info().
		Str("event", "server_ready").
		Int("port", grpcPort).
		Msg("PageFinder server ready to accept connections")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("PageFinder server shutting down")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = globalLogger.zlog
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
