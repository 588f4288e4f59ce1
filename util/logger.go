// Package util provides low-level helpers shared by all other packages.
package util

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no level between Debug and Info, so the agent's four levels
// are shifted down by one: Verbose sits on zap's Debug and Debug below it.
const (
	zapDebug   = zapcore.DebugLevel - 1
	zapVerbose = zapcore.DebugLevel
)

var levelTags = map[zapcore.Level]string{
	zapDebug:            "[DBG]",
	zapVerbose:          "[VRB]",
	zapcore.InfoLevel:   "[INF]",
	zapcore.WarnLevel:   "[WRN]",
	zapcore.ErrorLevel:  "[ERR]",
	zapcore.DPanicLevel: "[ERR]",
	zapcore.PanicLevel:  "[ERR]",
	zapcore.FatalLevel:  "[ERR]",
}

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes. It is a thin printf-style front for a zap core.
type Logger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	timestamps bool // if true, prepend wall-clock timestamps
	zl         *zap.Logger
	sugar      *zap.SugaredLogger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Zap exposes the underlying structured logger.
func (l *Logger) Zap() *zap.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

// Sync flushes buffered entries. Errors from syncing a terminal are
// ignored.
func (l *Logger) Sync() {
	_ = l.Zap().Sync()
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugared().Infof(format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugared().Warnf(format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.sugared().Logf(zapVerbose, format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugared().Logf(zapDebug, format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugared().Errorf(format, args...)
}

func (l *Logger) sugared() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}

// rebuild recreates the zap core after a setting changed. Callers hold
// l.mu (or own l exclusively).
func (l *Logger) rebuild() {
	enc := zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeLevel: func(lvl zapcore.Level, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString(levelTags[lvl])
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if l.timestamps {
		enc.TimeKey = "time"
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(zapcore.AddSync(l.output)),
		zap.NewAtomicLevelAt(thresholdFor(l.level)),
	)
	l.zl = zap.New(core)
	l.sugar = l.zl.Sugar()
}

// thresholdFor maps a verbosity to the lowest zap level that is written.
func thresholdFor(level LogLevel) zapcore.Level {
	switch {
	case level <= LogQuiet:
		return zapcore.ErrorLevel
	case level == LogNormal:
		return zapcore.InfoLevel
	case level == LogVerbose:
		return zapVerbose
	default:
		return zapDebug
	}
}
