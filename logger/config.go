package logger

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how process-level loggers are built.
type Config struct {
	Format string        `toml:"format"`
	Level  zapcore.Level `toml:"level"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Format: "auto",
	}
}

// New builds a logger writing to w honoring the configured format and level.
// "auto" and "console" use the console encoding, "json" the production JSON
// encoding.
func (c Config) New(w io.Writer) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	switch c.Format {
	case "", "auto", "console":
		encoder = zapcore.NewConsoleEncoder(newEncoderConfig())
	case "json":
		encoder = zapcore.NewJSONEncoder(newEncoderConfig())
	default:
		return nil, errors.Errorf("unknown logging format %q", c.Format)
	}
	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		c.Level,
	)), nil
}
