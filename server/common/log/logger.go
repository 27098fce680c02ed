package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogFilePath = "./logs/locker.log"
	envLogFilePath     = "LOG_FILE_PATH"
	envLogFormat       = "LOG_FORMAT"
	envLogLevel        = "LOG_LEVEL"
	logFormatText      = "text"
	logFormatJSON      = "json"
	logFileDisabled    = "-"
)

var (
	once   sync.Once
	global *zap.SugaredLogger
)

func logger() *zap.SugaredLogger {
	once.Do(func() {
		global = newLoggerFromEnv()
	})
	return global
}

func newLoggerFromEnv() *zap.SugaredLogger {
	path := strings.TrimSpace(os.Getenv(envLogFilePath))
	if path == "" {
		path = defaultLogFilePath
	}
	format := strings.ToLower(strings.TrimSpace(os.Getenv(envLogFormat)))
	if format != logFormatJSON {
		format = logFormatText
	}

	cfg := zap.NewProductionConfig()
	if raw := strings.TrimSpace(os.Getenv(envLogLevel)); raw != "" {
		if lv, err := zapcore.ParseLevel(raw); err == nil {
			cfg.Level.SetLevel(lv)
		}
	}
	if format == logFormatText {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.Sampling = nil

	cfg.OutputPaths = []string{"stdout"}
	if path != logFileDisabled {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logger open file error: %v\n", err)
		} else {
			cfg.OutputPaths = append(cfg.OutputPaths, path)
		}
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger build error: %v\n", err)
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func Debugf(format string, args ...any) {
	logger().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	logger().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	logger().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	logger().Errorf(format, args...)
}

// Exceptionf logs at error level with a stack trace attached.
func Exceptionf(format string, args ...any) {
	logger().Desugar().Error(fmt.Sprintf(format, args...), zap.Stack("stacktrace"))
}

func Sync() error {
	return logger().Sync()
}
