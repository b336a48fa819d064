package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// Logger is a key/value front for a zap logger. A nil *Logger logs through
// Default.
type Logger struct {
	base   *zap.Logger
	synced atomic.Bool
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewNop())
}

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel maps LOG_LEVEL values; unknown values fall back to info.
func ParseLevel(raw string) Level {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return level
	}
	return LevelInfo
}

func NewJSON(level Level) *Logger {
	return NewWriter(os.Stdout, level)
}

// NewWriter encodes JSON lines to w with upper-case levels and short callers.
func NewWriter(w io.Writer, level Level) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.MessageKey = "msg"
	enc.FunctionKey = zapcore.OmitKey
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), level)
	return FromZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(LevelError)))
}

func NewNop() *Logger {
	return FromZap(nil)
}

func FromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{base: z}
}

func Default() *Logger {
	if logger := defaultLogger.Load(); logger != nil {
		return logger
	}
	return NewNop()
}

func SetDefault(logger *Logger) {
	if logger == nil {
		logger = NewNop()
	}
	defaultLogger.Store(logger)
}

func (l *Logger) Zap() *zap.Logger {
	return l.orDefault().base
}

// Sync flushes the underlying core once; later calls are no-ops.
func (l *Logger) Sync() error {
	if l == nil || l.base == nil || !l.synced.CompareAndSwap(false, true) {
		return nil
	}
	return l.base.Sync()
}

// Named scopes the logger to a component, e.g. "scheduler" or "realsports".
func (l *Logger) Named(name string) *Logger {
	return FromZap(l.orDefault().base.Named(name))
}

func (l *Logger) With(args ...any) *Logger {
	return FromZap(l.orDefault().base.With(fieldsFor(args)...))
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(nil, LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(nil, LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(nil, LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(nil, LevelError, msg, args) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LevelDebug, msg, args)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LevelInfo, msg, args)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LevelWarn, msg, args)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, LevelError, msg, args)
}

func (l *Logger) orDefault() *Logger {
	if l == nil || l.base == nil {
		return Default()
	}
	return l
}

// emit writes one record when level is enabled. ctx may be nil; a span in ctx
// adds trace_id and span_id.
func (l *Logger) emit(ctx context.Context, level Level, msg string, args []any) {
	entry := l.orDefault().base.Check(level, msg)
	if entry == nil {
		return
	}
	entry.Write(appendTraceFields(fieldsFor(args), ctx)...)
	mirrorRecord(ctx, level, msg, args)
}
