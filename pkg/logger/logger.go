package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log   *zap.Logger
	Sugar *zap.SugaredLogger
)

// envLevel returns the level named by LANFETCH_LOG_LEVEL or LOG_LEVEL.
func envLevel() string {
	if s := strings.TrimSpace(os.Getenv("LANFETCH_LOG_LEVEL")); s != "" {
		return s
	}
	return strings.TrimSpace(os.Getenv("LOG_LEVEL"))
}

func init() {
	level := zapcore.InfoLevel
	if levelStr := envLevel(); levelStr != "" {
		_ = level.UnmarshalText([]byte(strings.ToLower(levelStr)))
	}

	set(zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level))
}

func encoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006/01/02 15:04:05"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return encoderConfig
}

func set(core zapcore.Core) {
	// AddCaller ensures the log includes filename and line number
	Log = zap.New(core, zap.AddCaller())
	Sugar = Log.Sugar()
}

// Configure rebuilds the global logger. An empty level falls back to the
// environment, then Info; a non-empty file tees output into that file in
// append mode.
func Configure(levelStr, file string) error {
	level := zapcore.InfoLevel
	if levelStr == "" {
		if env := envLevel(); env != "" {
			_ = level.UnmarshalText([]byte(strings.ToLower(env)))
		}
	} else {
		if err := level.UnmarshalText([]byte(strings.ToLower(levelStr))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", levelStr, err)
		}
	}

	enc := encoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level),
	}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", file, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(f), level))
	}

	set(zapcore.NewTee(cores...))
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}
