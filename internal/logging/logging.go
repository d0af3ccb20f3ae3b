// Package logging builds the zap loggers used by the agent and controller binaries.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultErrorLog is the file errors are appended to.
const DefaultErrorLog = "err.log"

type Options struct {
	Level zapcore.Level
	// ErrorLog is appended to with every entry at error level or above. Empty disables it.
	ErrorLog string
}

// New returns a logger writing human-readable entries to stderr, and JSON entries at error level to opts.ErrorLog.
// The returned func flushes and closes the error log.
func New(opts Options) (*zap.Logger, func(), error) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	stderrCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		opts.Level,
	)

	if opts.ErrorLog == "" {
		l := zap.New(stderrCore)
		return l, func() { _ = l.Sync() }, nil
	}

	sink, closeSink, err := zap.Open(opts.ErrorLog)
	if err != nil {
		return nil, nil, fmt.Errorf("opening error log %q: %w", opts.ErrorLog, err)
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		sink,
		zapcore.ErrorLevel,
	)

	l := zap.New(zapcore.NewTee(stderrCore, fileCore))
	return l, func() {
		_ = l.Sync()
		closeSink()
	}, nil
}
