package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Case lifecycle
	LogCaseOpened(ctx context.Context, caseID, userID string) error
	LogStatusChanged(ctx context.Context, caseID string, turn int, from, to string) error
	LogCaseClosed(ctx context.Context, caseID, reason string) error

	// Turns
	LogTurnProcessed(ctx context.Context, caseID string, turn int, outcome string, duration time.Duration) error
	LogTurnFailed(ctx context.Context, caseID string, err error) error

	// Degraded mode
	LogDegradedEntered(ctx context.Context, caseID string, turn int, mode, reason string) error
	LogDegradedExited(ctx context.Context, caseID string, turn int) error

	// Configuration
	LogConfigLoaded(ctx context.Context, path string) error

	// AppLogger returns the application logger sharing this logger's encoder and rotation.
	AppLogger() *zap.Logger

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file; empty disables the audit file
	AuditLogPath string

	// AppLogPath is the path to the application log file; empty logs to stderr
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string

	// Format is "json" or "console"
	Format string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
		Format:       "json",
	}
}

const bufferSize = 100

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appEncoder := zapcore.NewJSONEncoder(encoderConfig)
	if config.Format == "console" {
		appEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	// Application logger with rotation, or stderr when no path is configured
	appSink := zapcore.Lock(os.Stderr)
	if config.AppLogPath != "" {
		appSink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.AppLogPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	appCore := zapcore.NewCore(appEncoder, appSink, level)
	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Audit logger with rotation (always INFO level, append-only)
	auditCore := zapcore.NewNopCore()
	if config.AuditLogPath != "" {
		auditCore = zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   config.AuditLogPath,
				MaxSize:    config.MaxSize,
				MaxBackups: config.MaxBackups,
				MaxAge:     config.MaxAge,
				Compress:   config.Compress,
			}),
			zapcore.InfoLevel,
		)
	}

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: zap.New(auditCore),
		config:      config,
		buffer:      make([]*Event, 0, bufferSize),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// AppLogger returns the application logger
func (l *auditLogger) AppLogger() *zap.Logger {
	return l.appLogger
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = GetCorrelationID(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= bufferSize {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogCaseOpened logs when a case is created
func (l *auditLogger) LogCaseOpened(ctx context.Context, caseID, userID string) error {
	event := NewEvent(EventCaseOpened).
		WithCase(caseID, 0).
		WithUser(userID).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Case %s opened", caseID))

	return l.Log(ctx, event)
}

// LogStatusChanged logs a case status transition
func (l *auditLogger) LogStatusChanged(ctx context.Context, caseID string, turn int, from, to string) error {
	event := NewEvent(EventCaseStatusChanged).
		WithCase(caseID, turn).
		WithResult(ResultSuccess).
		WithMetadata("from", from).
		WithMetadata("to", to).
		WithDescription(fmt.Sprintf("Case %s status: %s → %s", caseID, from, to))

	return l.Log(ctx, event)
}

// LogCaseClosed logs an explicit case closure
func (l *auditLogger) LogCaseClosed(ctx context.Context, caseID, reason string) error {
	event := NewEvent(EventCaseClosed).
		WithCase(caseID, 0).
		WithResult(ResultSuccess).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Case %s closed: %s", caseID, reason))

	return l.Log(ctx, event)
}

// LogTurnProcessed logs a successfully processed turn
func (l *auditLogger) LogTurnProcessed(ctx context.Context, caseID string, turn int, outcome string, duration time.Duration) error {
	event := NewEvent(EventTurnProcessed).
		WithCase(caseID, turn).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("outcome", outcome).
		WithDescription(fmt.Sprintf("Case %s turn %d processed", caseID, turn))

	return l.Log(ctx, event)
}

// LogTurnFailed logs a turn that raised an error
func (l *auditLogger) LogTurnFailed(ctx context.Context, caseID string, err error) error {
	event := NewEvent(EventTurnFailed).
		WithCase(caseID, 0).
		WithError(err, "turn_error").
		WithDescription(fmt.Sprintf("Case %s turn failed", caseID))

	return l.Log(ctx, event)
}

// LogDegradedEntered logs degraded mode entry
func (l *auditLogger) LogDegradedEntered(ctx context.Context, caseID string, turn int, mode, reason string) error {
	event := NewEvent(EventDegradedEntered).
		WithCase(caseID, turn).
		WithResult(ResultSuccess).
		WithMetadata("mode", mode).
		WithDescription(reason)

	return l.Log(ctx, event)
}

// LogDegradedExited logs degraded mode exit
func (l *auditLogger) LogDegradedExited(ctx context.Context, caseID string, turn int) error {
	event := NewEvent(EventDegradedExited).
		WithCase(caseID, turn).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Case %s left degraded mode", caseID))

	return l.Log(ctx, event)
}

// LogConfigLoaded logs a configuration load
func (l *auditLogger) LogConfigLoaded(ctx context.Context, path string) error {
	event := NewEvent(EventConfigLoaded).
		WithResult(ResultSuccess).
		WithMetadata("path", path).
		WithDescription("Configuration loaded")

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	// stderr cannot be synced on most platforms
	_ = l.appLogger.Sync()
	return nil
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
	})

	return l.Sync()
}

type correlationKey struct{}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return uuid.NewString()
}
