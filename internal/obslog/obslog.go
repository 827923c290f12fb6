// Package obslog builds the structured loggers used throughout golsp.
// The teacher hand-rolls a three-level Logger interface with an in-memory
// ring buffer (internal/logger); this package keeps that same three-level
// shape (error/info/debug) but backs it with go.uber.org/zap instead of
// fmt.Sprintf-built strings, and with zap's own observer core instead of a
// bespoke ring buffer when tests need to assert on emitted log lines.
package obslog

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the teacher's LevelError/LevelInfo/LevelDebug ordering.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelError = zapcore.ErrorLevel
)

// New builds a *zap.Logger writing newline-delimited JSON to w at minLevel
// and above. Passing io.Discard yields a usable logger that drops
// everything, the structured equivalent of the teacher's NullLogger.
func New(w io.Writer, minLevel Level) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(w),
		minLevel,
	)
	return zap.New(core)
}

// Nop is the structured equivalent of the teacher's NullLogger: safe to
// pass anywhere a *zap.Logger is expected, discards everything.
func Nop() *zap.Logger { return zap.NewNop() }
