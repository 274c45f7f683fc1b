// Package logging builds the zap-backed zlog.ZLogger used by taskschedd.
//
// Console output always goes to stdout. When a file is configured, JSON
// records are also written there and rotated by lumberjack.
package logging

import (
	"errors"
	"os"
	"strings"
	"syscall"

	lg "github.com/Andrej220/go-utils/zlog"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/azargarov/tasksched/internal/config"
)

// Logger adapts a *zap.Logger to lg.ZLogger and owns the rotating file
// sink, if any.
type Logger struct {
	l    *zap.Logger
	file *lumberjack.Logger
}

var _ lg.ZLogger = (*Logger)(nil)

func New(cfg config.Log) *Logger {
	level := parseLevel(cfg.Level)
	encCfg := encoderConfig()

	var consoleEnc zapcore.Encoder
	if strings.EqualFold(cfg.Format, lg.ZLoggerJsonFormat) {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		consoleEnc = zapcore.NewConsoleEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(os.Stdout), level),
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	return &Logger{l: l, file: file}
}

func encoderConfig() zapcore.EncoderConfig {
	c := zap.NewProductionEncoderConfig()
	c.TimeKey = "timestamp"
	c.EncodeTime = zapcore.RFC3339TimeEncoder
	c.EncodeLevel = zapcore.CapitalLevelEncoder
	return c
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (z *Logger) Info(msg string, fields ...lg.Field)  { z.l.Info(msg, fields...) }
func (z *Logger) Error(msg string, fields ...lg.Field) { z.l.Error(msg, fields...) }
func (z *Logger) Debug(msg string, fields ...lg.Field) { z.l.Debug(msg, fields...) }
func (z *Logger) Warn(msg string, fields ...lg.Field)  { z.l.Warn(msg, fields...) }

func (z *Logger) With(fields ...lg.Field) lg.ZLogger {
	return &Logger{l: z.l.With(fields...), file: z.file}
}

func (z *Logger) Sync() error { return z.l.Sync() }

// Close flushes buffered entries and closes the rotating file. Stdout
// cannot be synced when it is a terminal or a pipe; that is not reported.
func (z *Logger) Close() error {
	err := z.l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		err = nil
	}
	if z.file != nil {
		err = multierr.Append(err, z.file.Close())
	}
	return err
}
