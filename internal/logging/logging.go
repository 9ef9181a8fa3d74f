// Package logging builds the zap loggers used by the CLI: a console sink
// for the operator and an optional JSON log file per run.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the log level and sinks.
type Options struct {
	// Level is a zap level name such as "debug" or "info".
	Level string
	// Console receives human-readable output when set.
	Console io.Writer
	// JSONConsole switches the console sink to the JSON encoder.
	JSONConsole bool
	// Dir, when set, receives a timestamped JSON log file.
	Dir string
}

// Logger is a zap logger that remembers its log file.
type Logger struct {
	*zap.Logger
	logFile     *os.File
	logFilePath string
}

// New builds a Logger. With no sinks configured it discards everything.
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	var cores []zapcore.Core
	if opts.Console != nil {
		var enc zapcore.Encoder
		if opts.JSONConsole {
			enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		} else {
			encCfg := zap.NewDevelopmentEncoderConfig()
			encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(opts.Console)), level))
	}

	l := &Logger{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		filename := fmt.Sprintf("aks-egress-check-logs-%s.log", time.Now().Format("20060102-150405"))
		l.logFilePath = filepath.Join(opts.Dir, filename)
		f, err := os.Create(l.logFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		l.logFile = f
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(f),
			level,
		))
	}

	if len(cores) == 0 {
		l.Logger = zap.NewNop()
		return l, nil
	}
	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if l.logFilePath != "" {
		l.Debug("logging initialized", zap.String("log_file", filepath.Base(l.logFilePath)))
	}
	return l, nil
}

// FilePath returns the log file path, or "" when file logging is off.
func (l *Logger) FilePath() string {
	return l.logFilePath
}

// Close flushes the logger and closes the log file.
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}
