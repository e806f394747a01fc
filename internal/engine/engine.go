// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package engine wires the gateway's process lifecycle (spec §9
// "process-wide warm-keeper ... engine-scoped service initialised during
// engine start and shut down during engine shutdown"): it builds the
// shared HTTP client, the concurrency-limited remote clients, the
// warm-keeper, and the gin-based duplex endpoint, and owns their
// start/stop ordering.
package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/rapidaai/freya-voice-gateway/internal/bridge"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
	"github.com/rapidaai/freya-voice-gateway/internal/config"
	"github.com/rapidaai/freya-voice-gateway/internal/driver"
	"github.com/rapidaai/freya-voice-gateway/internal/httpclient"
	"github.com/rapidaai/freya-voice-gateway/internal/llm"
	"github.com/rapidaai/freya-voice-gateway/internal/menu"
	"github.com/rapidaai/freya-voice-gateway/internal/session"
	"github.com/rapidaai/freya-voice-gateway/internal/stt"
	"github.com/rapidaai/freya-voice-gateway/internal/tts"
	"github.com/rapidaai/freya-voice-gateway/internal/warmkeeper"
)

// ShutdownTimeout bounds how long Run waits for in-flight HTTP connections
// (distinct from a session's own registry-drain timeout) to finish once the
// context is cancelled.
const ShutdownTimeout = 10 * time.Second

// Engine is the process-wide lifecycle owner: one instance per process,
// built once at startup from config.AppConfig.
type Engine struct {
	cfg    *config.AppConfig
	logger commons.Logger

	warmKeeper *warmkeeper.Keeper
	router     *gin.Engine
	server     *http.Server
}

// New builds the full dependency graph: shared HTTP client, the
// concurrency-limited STT/LLM/TTS clients, the persistence collaborator,
// the streaming bridge, the duplex driver, and the warm-keeper — then
// registers the engine's two routes: the duplex endpoint (spec §6.1) and
// GET /healthz.
func New(cfg *config.AppConfig, logger commons.Logger) *Engine {
	httpClient := httpclient.New(httpclient.DefaultConfig())
	sem := semaphore.NewWeighted(int64(cfg.MaxUpstreamConcurrency))

	var sttClient stt.Client = &limitedSTT{inner: stt.NewClient(httpClient, cfg.STTBaseURL, cfg.STTAPIKey, logger), sem: sem}
	var llmClient llm.Client = &limitedLLM{inner: llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, logger), sem: sem}
	var ttsClient tts.Client = &limitedTTS{inner: tts.NewClient(cfg.TTSBaseURL, cfg.TTSAPIKey, logger), sem: sem}

	collaborator := menu.NewCollaborator(httpClient, cfg.CollaboratorBaseURL, logger)

	b := bridge.New(llmClient, ttsClient, collaborator, logger)

	sessCfg := session.Config{
		PartialSTTMinGap:          cfg.PartialSTTMinGap,
		PartialSTTMinAudioDur:     cfg.PartialSTTMinAudioDur,
		EarlyTriggerSilenceThresh: cfg.EarlyTriggerSilenceThresh,
	}
	d := driver.New(sttClient, b, collaborator, logger, sessCfg, cfg.RegistryDrainTimeout)

	wk := warmkeeper.New(sttClient, ttsClient, cfg.WarmKeeperInterval, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/voice/:qrToken", d.HandleVoice)
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		warmKeeper: wk,
		router:     router,
		server: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: router,
		},
	}
}

// Run starts the warm-keeper and the HTTP listener, and blocks until ctx is
// cancelled or the listener fails. On return, both have been stopped.
func (e *Engine) Run(ctx context.Context) error {
	e.warmKeeper.Start()
	defer e.warmKeeper.Stop()

	if e.logger != nil {
		e.logger.Infof("engine: listening on %s", e.cfg.ListenAddr)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		return e.shutdown()
	case err := <-serveErr:
		return err
	}
}

func (e *Engine) shutdown() error {
	if e.logger != nil {
		e.logger.Infof("engine: shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return e.server.Shutdown(shutdownCtx)
}
