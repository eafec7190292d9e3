package logger

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"` // json | console
	Development bool     `yaml:"development"`
	OutputPaths []string `yaml:"output_paths"`
}

func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stdout"}
	}
}

// New builds the process logger. service is attached to every entry.
func New(cfg Config, service string) (*zap.Logger, error) {
	cfg.SetDefaults()

	lvl, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = cfg.Format
	zc.OutputPaths = cfg.OutputPaths
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	if service != "" {
		l = l.With(zap.String("service", service))
	}
	return l, nil
}
