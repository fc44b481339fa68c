// Package pltlog provides structured logging shared by every layer that
// sits around the elfhook core (registry, the pltgotctl CLI).
package pltlog

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arlobrandt/pltgot/internal/elfhook"
)

// Logger wraps zap.Logger with hook-domain helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger. Safe to call multiple times; only
// the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// HookInstalled logs a successful Hook call at INFO, per spec.md §7's
// "successful hooks ... are emitted at INFO".
func (l *Logger) HookInstalled(pattern, symbol string, old, newAddr uintptr) {
	l.Info("hook installed",
		zap.String("pattern", pattern),
		zap.String("symbol", symbol),
		zap.String("old", Hex(uint64(old))),
		zap.String("new", Hex(uint64(newAddr))),
	)
}

// HookFailed logs a failed Hook call at ERROR.
func (l *Logger) HookFailed(pattern, symbol string, err error) {
	l.Error("hook failed",
		zap.String("pattern", pattern),
		zap.String("symbol", symbol),
		zap.Error(err),
	)
}

// ParseSummary logs a successful ImageView parse at INFO, per spec.md §7's
// "parse summaries are emitted at INFO".
func (l *Logger) ParseSummary(path string, view *elfhook.ImageView) {
	l.Info("parsed image",
		zap.String("path", path),
		zap.String("hash", hashKind(view)),
		zap.Bool("use_rela", view.IsUseRela),
		zap.Uint64("relplt_size", view.RelPLTSz),
		zap.Uint64("reldyn_size", view.RelDynSz),
		zap.Uint64("relandroid_size", view.RelAndroidSz),
	)
}

func hashKind(view *elfhook.ImageView) string {
	if view.IsUseGNUHash {
		return "gnu"
	}
	return "classic"
}

// Hex formats a uint64 as a 0x-prefixed hex string.
func Hex(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}
