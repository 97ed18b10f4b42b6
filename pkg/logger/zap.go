package logger

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger wraps uber/zap logger to implement the Logger interface
type ZapLogger struct {
	zap         *zap.Logger
	serviceName string
}

// ZapOptions configures the Zap logger
type ZapOptions struct {
	ServiceName string
	IsPretty    bool  // Enable pretty console output (for development)
	Level       Level // Minimum log level
}

// Level represents log levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel converts a LOG_LEVEL string to Level
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// ToZapLevel converts our Level to zap's level
func (l Level) ToZapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewZap creates a new Zap-based logger
func NewZap(opts ZapOptions) (Logger, error) {
	var config zap.Config

	if opts.IsPretty {
		// Development mode: pretty console output
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		// Production mode: JSON output
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
	}
	config.Level = zap.NewAtomicLevelAt(opts.Level.ToZapLevel())
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := config.Build(
		zap.AddCallerSkip(1), // Skip one level to show correct caller
	)
	if err != nil {
		return nil, err
	}

	return &ZapLogger{
		zap:         zapLogger,
		serviceName: opts.ServiceName,
	}, nil
}

// NewZapMust creates a new Zap logger and panics on error
func NewZapMust(opts ZapOptions) Logger {
	logger, err := NewZap(opts)
	if err != nil {
		panic(err)
	}
	return logger
}

func (z *ZapLogger) convertContext(context []any) []zap.Field {
	contextMap := ParseContext(context)

	fields := make([]zap.Field, 0, len(contextMap)+1)
	fields = append(fields, zap.String("service", z.serviceName))

	keys := make([]string, 0, len(contextMap))
	for key := range contextMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err, ok := contextMap[key].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, contextMap[key]))
	}

	return fields
}

func (z *ZapLogger) Info(msg string, context ...any) {
	z.zap.Info(msg, z.convertContext(context)...)
}

func (z *ZapLogger) Error(msg string, context ...any) {
	z.zap.Error(msg, z.convertContext(context)...)
}

func (z *ZapLogger) Warn(msg string, context ...any) {
	z.zap.Warn(msg, z.convertContext(context)...)
}

func (z *ZapLogger) Debug(msg string, context ...any) {
	z.zap.Debug(msg, z.convertContext(context)...)
}

// Sync flushes any buffered log entries
// Should be called before application exits
func (z *ZapLogger) Sync() error {
	return z.zap.Sync()
}
