package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Leveled, printf-style logging facade used across the engine, backed by zap.
var (
	mu    sync.Mutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar = newLogger(zapcore.Lock(os.Stderr))
)

func newLogger(ws zapcore.WriteSyncer) *zap.SugaredLogger {
	encConf := zap.NewProductionEncoderConfig()
	encConf.EncodeTime = zapcore.ISO8601TimeEncoder
	encConf.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encConf), ws, level)
	return zap.New(core, zap.AddCallerSkip(1)).Sugar()
}

// InitFileLog switches the process logger to a file sink under dir,
// named after module.
func InitFileLog(dir, module, lvl string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, module+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	mu.Lock()
	old := sugar
	sugar = newLogger(zapcore.Lock(f))
	mu.Unlock()

	SetLevel(lvl)
	_ = old.Sync()
	return nil
}

// SetLevel adjusts the enabled level at runtime. Unknown names keep the
// current level.
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "info":
		level.SetLevel(zapcore.InfoLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	}
}

func logger() *zap.SugaredLogger {
	mu.Lock()
	l := sugar
	mu.Unlock()
	return l
}

// IsEnableDebug reports whether debug logging is enabled.
func IsEnableDebug() bool { return level.Enabled(zapcore.DebugLevel) }

// IsEnableInfo reports whether info logging is enabled.
func IsEnableInfo() bool { return level.Enabled(zapcore.InfoLevel) }

// IsEnableWarn reports whether warn logging is enabled.
func IsEnableWarn() bool { return level.Enabled(zapcore.WarnLevel) }

// Debug logs a debug message.
func Debug(format string, v ...interface{}) { logger().Debugf(format, v...) }

// Info logs an info message.
func Info(format string, v ...interface{}) { logger().Infof(format, v...) }

// Warn logs a warning message.
func Warn(format string, v ...interface{}) { logger().Warnf(format, v...) }

// Error logs an error message.
func Error(format string, v ...interface{}) { logger().Errorf(format, v...) }

// Fatal logs a message and exits the process.
func Fatal(format string, v ...interface{}) { logger().Fatalf(format, v...) }

// Sync flushes buffered log entries.
func Sync() error { return logger().Sync() }
