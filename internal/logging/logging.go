package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"kbassist/internal/config"
)

// New builds the process logger: JSON to a rotated app.log, errors duplicated to
// error.log, and a console core when cfg.Console is set.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("create log dir failed: %w", err)
		}
		encoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores,
			zapcore.NewCore(encoder, zapcore.AddSync(&lumberjack.Logger{
				Filename: filepath.Join(cfg.Dir, "app.log"),
				MaxSize:  orDefault(cfg.MaxSize, 100),
				MaxAge:   orDefault(cfg.MaxAge, 28),
				Compress: true,
			}), level),
			zapcore.NewCore(encoder, zapcore.AddSync(&lumberjack.Logger{
				Filename: filepath.Join(cfg.Dir, "error.log"),
				MaxSize:  orDefault(cfg.MaxSize, 100),
				MaxAge:   orDefault(cfg.MaxAge, 28),
				Compress: true,
			}), zapcore.ErrorLevel),
		)
	}
	if cfg.Console || len(cores) == 0 {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
