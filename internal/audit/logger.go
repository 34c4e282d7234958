// Package audit provides the daemon's two-logger discipline: an
// application logger (debug/info/warn/error, rotated) and an append-only
// event logger, each backed by a lumberjack-rotated zapcore, with a
// buffered async writer flushed on a 1-second ticker or at 100 buffered
// events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the daemon's event logging interface.
type Logger interface {
	Log(ctx context.Context, event *Event) error

	LogSignificanceEvaluated(ctx context.Context, decision, reason string) error
	LogPipelineStarted(ctx context.Context, fingerprint string) error
	LogPipelineCommitted(ctx context.Context, insightID int64, duration time.Duration) error
	LogPipelineFailed(ctx context.Context, err error) error
	LogFrontendRegistered(ctx context.Context, frontendID string) error
	LogFrontendEvicted(ctx context.Context, frontendID string) error
	LogConfigReloaded(ctx context.Context) error
	LogConfigRejected(ctx context.Context, err error) error

	Sync() error
	Close() error
}

// Config configures the application and event log files.
type Config struct {
	EventLogPath string
	AppLogPath   string
	MaxSize      int
	MaxBackups   int
	MaxAge       int
	Compress     bool
	LogLevel     string
}

func DefaultConfig() *Config {
	return &Config{
		EventLogPath: "logs/events.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     "info",
	}
}

type auditLogger struct {
	appLogger   *zap.Logger
	eventLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger builds a Logger from config, defaulting to DefaultConfig when
// config is nil.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

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

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	appCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(appRotator), level)
	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	eventRotator := &lumberjack.Logger{
		Filename:   config.EventLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	eventCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(eventRotator), zapcore.InfoLevel)
	eventZapLogger := zap.New(eventCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		eventLogger: eventZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(time.Second),
		stopCh:      make(chan struct{}),
	}
	go logger.autoFlush()
	return logger, nil
}

func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}
	return nil
}

func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal event", zap.Error(err), zap.String("event_type", string(event.EventType)))
			continue
		}
		l.eventLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}
	l.buffer = l.buffer[:0]
	return nil
}

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

func (l *auditLogger) LogSignificanceEvaluated(ctx context.Context, decision, reason string) error {
	event := NewEvent(EventSignificanceEvaluated).
		WithResult(ResultSuccess).
		WithMetadata("decision", decision).
		WithDescription(reason)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogPipelineStarted(ctx context.Context, fingerprint string) error {
	event := NewEvent(EventPipelineStarted).
		WithResult(ResultPending).
		WithMetadata("context_fingerprint", fingerprint)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogPipelineCommitted(ctx context.Context, insightID int64, duration time.Duration) error {
	event := NewEvent(EventPipelineCommitted).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("insight_id", insightID)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogPipelineFailed(ctx context.Context, err error) error {
	event := NewEvent(EventPipelineFailed).WithError(err, "pipeline_error")
	return l.Log(ctx, event)
}

func (l *auditLogger) LogFrontendRegistered(ctx context.Context, frontendID string) error {
	event := NewEvent(EventFrontendRegistered).
		WithResult(ResultSuccess).
		WithCorrelationID(frontendID)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogFrontendEvicted(ctx context.Context, frontendID string) error {
	event := NewEvent(EventFrontendEvicted).
		WithResult(ResultSuccess).
		WithCorrelationID(frontendID)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogConfigReloaded(ctx context.Context) error {
	event := NewEvent(EventConfigReloaded).WithResult(ResultSuccess)
	return l.Log(ctx, event)
}

func (l *auditLogger) LogConfigRejected(ctx context.Context, err error) error {
	event := NewEvent(EventConfigRejected).WithError(err, "config_invalid")
	return l.Log(ctx, event)
}

func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(); err != nil {
		return err
	}
	if err := l.eventLogger.Sync(); err != nil {
		return err
	}
	return l.appLogger.Sync()
}

func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()
	return l.Sync()
}

type correlationIDKey struct{}

func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
