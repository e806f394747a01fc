// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Command gateway runs the voice ordering engine's duplex HTTP endpoint
// (spec §6.1) as a standalone process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/rapidaai/freya-voice-gateway/internal/commons"
	"github.com/rapidaai/freya-voice-gateway/internal/config"
	"github.com/rapidaai/freya-voice-gateway/internal/engine"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		return 1
	}

	logger, err := commons.NewLogger(logLevelFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: failed to build logger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := engine.New(cfg, logger)
	if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("gateway: run error: %v", err)
		return 1
	}
	return 0
}

// logLevelFromEnv reads LOG_LEVEL (debug|info|warn|error), defaulting to
// info — the engine has no config key of its own for this since it governs
// local observability, not pipeline behavior.
func logLevelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
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
