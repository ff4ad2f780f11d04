// Package logging builds the zap logger. The TUI owns the terminal, so logs
// go to a rotated JSON file; the console core is only added on request.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Path is the log file. Empty disables the file core.
	Path string
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Console adds a human-readable stderr core at debug level.
	Console bool
}

// New builds a logger from opts. With neither a file nor a console core
// the logger discards everything.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(orDefault(opts.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var cores []zapcore.Core

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder(), zapcore.AddSync(rotator), level))
	}

	if opts.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			zap.DebugLevel,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.MessageKey = "message"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
