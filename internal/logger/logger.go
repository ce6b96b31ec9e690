// Package logger собирает логгеры процесса: zap для компонентов и zerolog
// для мигратора и издателя событий. Оба пишут в один и тот же вывод с одним уровнем.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config содержит настройки логгера.
type Config struct {
	Level      string // debug, info, warn, error
	Encoding   string // json или console
	OutputPath string // пусто или stdout - стандартный вывод
}

func (c Config) level() (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(c.Level))
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return lvl, nil
}

func (c Config) encoding() string {
	if strings.ToLower(c.Encoding) == "console" {
		return "console"
	}
	return "json"
}

func (c Config) outputPath() string {
	if c.OutputPath == "" {
		return "stdout"
	}
	return c.OutputPath
}

// New создает zap.Logger. Неизвестный уровень заменяется info с сообщением в stderr.
func New(cfg Config) (*zap.Logger, error) {
	lvl, err := cfg.level()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using 'info'\n", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(lvl),
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          cfg.encoding(),
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{cfg.outputPath()},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// NewZerolog создает zerolog.Logger с теми же уровнем и форматом, что и New.
// Вывод в файл не поддерживается: OutputPath, отличный от stdout/stderr, пишет в stdout.
func NewZerolog(cfg Config) zerolog.Logger {
	lvl, _ := cfg.level()

	var out io.Writer = os.Stdout
	if cfg.outputPath() == "stderr" {
		out = os.Stderr
	}
	if cfg.encoding() == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02T15:04:05.000Z0700"}
	}
	return zerolog.New(out).Level(zerologLevel(lvl)).With().Timestamp().Logger()
}

func zerologLevel(lvl zapcore.Level) zerolog.Level {
	switch lvl {
	case zapcore.DebugLevel:
		return zerolog.DebugLevel
	case zapcore.WarnLevel:
		return zerolog.WarnLevel
	case zapcore.ErrorLevel:
		return zerolog.ErrorLevel
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		return zerolog.PanicLevel
	case zapcore.FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
