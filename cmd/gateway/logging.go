package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger monta o logr sobre zap. LOG_LEVEL=debug habilita V(1).
func newLogger(level string, development bool) (logr.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zc := uberzap.NewProductionConfig()
	if development {
		zc = uberzap.NewDevelopmentConfig()
	}
	zc.Level = uberzap.NewAtomicLevelAt(lvl)

	z, err := zc.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("build logger: %w", err)
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}
