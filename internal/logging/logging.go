// Package logging builds the zap logger shared by the commands.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/handiism/bandcamp-verificator/internal/config"
	ioutils "github.com/handiism/bandcamp-verificator/internal/io"
)

// New returns a production zap logger for cfg.
//
// level, when non-empty, overrides cfg.Level. outputs are zap sink URLs such
// as "stderr"; cfg.File is appended when set. With no outputs at all the
// logger discards everything.
func New(cfg config.LoggingSettings, level string, outputs ...string) (*zap.Logger, error) {
	if level == "" {
		level = cfg.Level
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	if cfg.File != "" {
		if err := ioutils.EnsureParentDir(cfg.File); err != nil {
			return nil, err
		}
		outputs = append(outputs, cfg.File)
	}
	if len(outputs) == 0 {
		return zap.NewNop(), nil
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = outputs
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Format == "text" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
