// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package commons carries the ambient concerns every other package is built
// against — logging today, so that no package reaches for a package-level
// global logger or the standard library's log package directly.
package commons

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging contract every component depends on via
// constructor injection. It is deliberately narrow: printf-style methods for
// the common levels, a structured Warnw for key/value pairs, and Benchmark
// for stage timing.
type Logger interface {
	Level() zapcore.Level

	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, kv ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})

	// Benchmark logs the wall time an upstream stage took, at debug level.
	Benchmark(stage string, d time.Duration)
}

type zapLogger struct {
	*zap.SugaredLogger
	level zapcore.Level
}

// NewLogger builds a production zap logger at the given level. Pass
// zapcore.DebugLevel in development.
func NewLogger(level zapcore.Level) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{SugaredLogger: z.Sugar(), level: level}, nil
}

func (l *zapLogger) Level() zapcore.Level { return l.level }

func (l *zapLogger) Warnw(msg string, kv ...interface{}) {
	l.SugaredLogger.Warnw(msg, kv...)
}

func (l *zapLogger) Benchmark(stage string, d time.Duration) {
	l.SugaredLogger.Debugw("benchmark", "stage", stage, "duration_ms", d.Milliseconds())
}
