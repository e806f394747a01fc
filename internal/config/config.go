// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package config loads the gateway's environment-driven configuration the
// way the pack's tooling does: viper bound to the process environment with
// registered defaults, not a hand-rolled os.Getenv scatter.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the process-wide configuration surface, covering every key
// named in spec §6.3.
type AppConfig struct {
	// Upstream credentials — required at startup (§7 ConfigurationFailure).
	STTAPIKey string
	LLMAPIKey string
	TTSAPIKey string

	// Upstream base URLs.
	STTBaseURL string
	LLMBaseURL string
	TTSBaseURL string

	// Persistence collaborator (§6.2).
	CollaboratorBaseURL string

	// HTTP listen address for the duplex endpoint.
	ListenAddr string

	WarmKeeperInterval        time.Duration
	MaxUpstreamConcurrency    int
	PartialSTTMinGap          time.Duration
	PartialSTTMinAudioDur     time.Duration
	EarlyTriggerSilenceThresh time.Duration
	SessionIdleTimeout        time.Duration

	// RegistryDrainTimeout bounds how long channel-close waits for
	// in-flight tasks before abandoning them (spec §5, ≈2s).
	RegistryDrainTimeout time.Duration
}

// Load reads configuration from the process environment only (viper's
// automatic env binding; no config file is read), applying the defaults
// from spec §6.3, and validates the required upstream API keys are present.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen.addr", ":8080")
	v.SetDefault("stt.base_url", "https://api.stt.example.com")
	v.SetDefault("llm.base_url", "https://api.llm.example.com")
	v.SetDefault("tts.base_url", "https://api.tts.example.com")
	v.SetDefault("collaborator.base_url", "http://localhost:8090")

	v.SetDefault("warmkeeper.interval_seconds", 30)
	v.SetDefault("upstream.max_concurrency", 10)
	v.SetDefault("partial_stt.min_gap_ms", 500)
	v.SetDefault("partial_stt.min_audio_ms", 1200)
	v.SetDefault("early_trigger.silence_ms", 400)
	v.SetDefault("session.idle_timeout_seconds", 300)
	v.SetDefault("registry.drain_timeout_ms", 2000)

	cfg := &AppConfig{
		STTAPIKey:           v.GetString("stt.api_key"),
		LLMAPIKey:           v.GetString("llm.api_key"),
		TTSAPIKey:           v.GetString("tts.api_key"),
		STTBaseURL:          v.GetString("stt.base_url"),
		LLMBaseURL:          v.GetString("llm.base_url"),
		TTSBaseURL:          v.GetString("tts.base_url"),
		CollaboratorBaseURL: v.GetString("collaborator.base_url"),
		ListenAddr:          v.GetString("listen.addr"),

		WarmKeeperInterval:        clampSeconds(v.GetInt("warmkeeper.interval_seconds"), 10, 120),
		MaxUpstreamConcurrency:    v.GetInt("upstream.max_concurrency"),
		PartialSTTMinGap:          time.Duration(v.GetInt("partial_stt.min_gap_ms")) * time.Millisecond,
		PartialSTTMinAudioDur:     time.Duration(v.GetInt("partial_stt.min_audio_ms")) * time.Millisecond,
		EarlyTriggerSilenceThresh: time.Duration(v.GetInt("early_trigger.silence_ms")) * time.Millisecond,
		SessionIdleTimeout:        time.Duration(v.GetInt("session.idle_timeout_seconds")) * time.Second,
		RegistryDrainTimeout:      time.Duration(v.GetInt("registry.drain_timeout_ms")) * time.Millisecond,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func clampSeconds(v, min, max int) time.Duration {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return time.Duration(v) * time.Second
}

// validate enforces ConfigurationFailure (spec §7): missing upstream
// credentials refuse the engine from starting at all.
func (c *AppConfig) validate() error {
	missing := make([]string, 0, 3)
	if c.STTAPIKey == "" {
		missing = append(missing, "STT_API_KEY")
	}
	if c.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if c.TTSAPIKey == "" {
		missing = append(missing, "TTS_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration failure: missing required keys: %s", strings.Join(missing, ", "))
	}
	if c.MaxUpstreamConcurrency <= 0 {
		return fmt.Errorf("configuration failure: upstream.max_concurrency must be positive")
	}
	return nil
}
