// Package applog builds the process logger: zap does the encoding and
// slog is the API every package logs through.
package applog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level and encoding.
type Config struct {
	Level     string // debug | info | warn | error
	Format    string // json | console
	AddSource bool
	Output    io.Writer
}

// New returns a slog logger backed by zap. Call the returned flush before
// exiting.
func New(cfg Config) (*slog.Logger, func()) {
	zl := buildZap(cfg)
	h := slogzap.Option{
		Level:     slogLevel(cfg.Level),
		Logger:    zl,
		AddSource: cfg.AddSource,
	}.NewZapHandler()
	return slog.New(h), func() { _ = zl.Sync() }
}

// Init builds the logger, installs it as slog's default and returns it.
func Init(cfg Config, service string) (*slog.Logger, func()) {
	log, flush := New(cfg)
	log = log.With("service", service)
	slog.SetDefault(log)
	return log, flush
}

func buildZap(cfg Config) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "time"

	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "console") {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(out), zapLevel(cfg.Level))

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...)
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
