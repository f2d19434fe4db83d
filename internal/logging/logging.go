// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"

	"paper-trader/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	JSON       bool // console output as raw JSON instead of the pretty writer
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days

	// Out overrides stdout for the console writer. Used by tests.
	Out io.Writer
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "paper-trader", "logs", "paper-trader.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	if cfg.Console {
		if cfg.JSON {
			writers = append(writers, out)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:         out,
				TimeFormat:  time.RFC3339,
				FormatLevel: formatLevel,
			})
		}
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

func formatLevel(i interface{}) string {
	if ll, ok := i.(string); ok {
		switch ll {
		case "debug":
			return "\033[36mDBG\033[0m"
		case "info":
			return "\033[32mINF\033[0m"
		case "warn":
			return "\033[33mWRN\033[0m"
		case "error":
			return "\033[31mERR\033[0m"
		default:
			return ll
		}
	}
	return "???"
}

// ParseLevel maps a level name to a zerolog level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

const (
	// LoggerKey is the context key for the logger.
	LoggerKey ContextKey = "logger"
	// RequestIDKey is the context key for request ID.
	RequestIDKey ContextKey = "request_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithAccount adds an account ID to the logger context.
func WithAccount(logger zerolog.Logger, accountID string) zerolog.Logger {
	return logger.With().Str("account", accountID).Logger()
}

// WithOrderID adds an order ID to the logger context.
func WithOrderID(logger zerolog.Logger, orderID string) zerolog.Logger {
	return logger.With().Str("order_id", orderID).Logger()
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogOrder logs an order state change.
func LogOrder(logger zerolog.Logger, o *models.Order) {
	logger.Info().
		Str("event", "order").
		Str("order_id", o.ID).
		Str("symbol", o.Symbol).
		Str("segment", string(o.Segment)).
		Str("side", string(o.Side)).
		Str("type", string(o.Type)).
		Int("quantity", o.Quantity).
		Str("status", string(o.Status)).
		Str("reserved", o.ReservedMargin.StringFixed(2)).
		Msg("Order update")
}

// LogFill logs an execution.
func LogFill(logger zerolog.Logger, o *models.Order, price, realized decimal.Decimal) {
	logger.Info().
		Str("event", "fill").
		Str("order_id", o.ID).
		Str("symbol", o.Symbol).
		Str("side", string(o.Side)).
		Int("quantity", o.Quantity).
		Str("price", price.StringFixed(2)).
		Str("realized_pnl", realized.StringFixed(2)).
		Msg("Order executed")
}

// LogRejection logs a rejected order request.
func LogRejection(logger zerolog.Logger, req models.OrderRequest, err error) {
	logger.Warn().
		Str("event", "rejection").
		Str("symbol", req.Symbol).
		Str("segment", string(req.Segment)).
		Str("side", string(req.Side)).
		Int("quantity", req.Quantity).
		Err(err).
		Msg("Order rejected")
}

// LogRequest logs a served HTTP request.
func LogRequest(logger zerolog.Logger, method, path string, status int, duration time.Duration) {
	logger.Debug().
		Str("event", "http").
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration).
		Msg("Request served")
}
