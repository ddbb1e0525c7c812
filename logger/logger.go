package logger

import (
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w at debug level. Timestamps are
// rendered in RFC3339 UTC and durations as their string form so operators can
// grep logs across hosts with skewed locales.
func New(w io.Writer) *zap.Logger {
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(newEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	))
}

func newEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}
	return config
}

// NewOperation logs the start of a named operation and returns a logger
// carrying the operation name plus a function that logs its completion with
// the elapsed time. Callers typically defer the returned func.
func NewOperation(log *zap.Logger, msg, name string, fields ...zap.Field) (*zap.Logger, func()) {
	f := make([]zap.Field, 0, len(fields)+1)
	f = append(f, zap.String("op_name", name))
	f = append(f, fields...)

	now := time.Now()
	log.Info(msg+" (start)", f...)

	return log.With(zap.String("op_name", name)), func() {
		log.Info(msg+" (end)", zap.String("op_name", name), zap.Duration("op_elapsed", time.Since(now)))
	}
}
