package app

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a rotating JSON file logger. Output goes to the file
// only so the TUI and one-shot commands keep a clean terminal.
func NewLogger(logFilePath string) *zap.Logger {
	if logFilePath == "" {
		logFilePath = DefaultLogPath()
	}

	rotator := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		zap.InfoLevel,
	)

	return zap.New(core)
}

// LogPathFor resolves the log file for a config, defaulting next to the
// config file itself.
func LogPathFor(cfg Config) string {
	if cfg.LogFile != "" {
		return cfg.LogFile
	}
	if p := DefaultConfigPath(); p != "" {
		return filepath.Join(filepath.Dir(p), "docai.log")
	}
	return DefaultLogPath()
}
