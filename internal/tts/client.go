// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package tts is the remote streaming text-to-speech client (spec §4.3): a
// finite, non-restartable raw-PCM frame stream over a websocket connection.
// Each upstream chunk carries base64 PCM16; the client decodes it and emits
// the raw bytes as one frame.
package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
)

// IdleGap is the max time allowed between audio chunks before the turn
// fails (spec §5: "TTS chunk idle gap: 15s").
const IdleGap = 15 * time.Second

// Voice and Rate are fixed per spec §4.3 ("voice and speaking-rate fixed").
const (
	Voice    = "tr-TR-female-1"
	Rate     = 1.15
	Language = "tr"
)

type wsRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Rate     float64 `json:"rate"`
	Language string  `json:"language"`
}

type wsChunk struct {
	Data string `json:"data"` // base64 PCM16
	Done bool   `json:"done"`
}

// Client is the remote-TTS contract (spec §4.3).
type Client interface {
	// SpeakStream starts a finite, non-restartable audio-frame stream for
	// text. Cancelling ctx tears down the underlying stream promptly. The
	// returned channel of raw PCM16 frames is closed on completion,
	// cancellation, or terminal error.
	SpeakStream(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

type wsClient struct {
	baseURL string
	apiKey  string
	logger  commons.Logger
}

// NewClient builds the websocket-backed TTS client.
func NewClient(baseURL, apiKey string, logger commons.Logger) Client {
	return &wsClient{baseURL: baseURL, apiKey: apiKey, logger: logger}
}

func (c *wsClient) SpeakStream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, 32)
	errs := make(chan error, 1)

	go func() {
		start := time.Now()
		defer close(frames)
		defer close(errs)
		defer func() {
			if c.logger != nil {
				c.logger.Benchmark("tts.speak_stream", time.Since(start))
			}
		}()

		u, err := url.Parse(c.baseURL)
		if err != nil {
			errs <- apperr.New(apperr.TransientUpstream, "tts.speak_stream", err)
			return
		}
		dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
		headers := map[string][]string{"Authorization": {"Bearer " + c.apiKey}}
		conn, _, err := dialer.DialContext(ctx, u.String(), headers)
		if err != nil {
			errs <- apperr.New(apperr.TransientUpstream, "tts.speak_stream", fmt.Errorf("failed to connect to tts websocket: %w", err))
			return
		}
		defer conn.Close()

		req := wsRequest{Text: text, Voice: Voice, Rate: Rate, Language: Language}
		if err := conn.WriteJSON(req); err != nil {
			errs <- apperr.New(apperr.TransientUpstream, "tts.speak_stream", err)
			return
		}

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(IdleGap))
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					errs <- apperr.ErrCancelled
					return
				}
				errs <- apperr.New(apperr.TransientUpstream, "tts.speak_stream", err)
				return
			}

			var chunk wsChunk
			if err := json.Unmarshal(raw, &chunk); err != nil {
				if c.logger != nil {
					c.logger.Errorf("tts: malformed chunk: %v", err)
				}
				continue
			}
			if chunk.Done {
				return
			}
			if chunk.Data == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(chunk.Data)
			if err != nil {
				if c.logger != nil {
					c.logger.Errorf("tts: failed to decode audio payload: %v", err)
				}
				continue
			}
			select {
			case frames <- decoded:
			case <-ctx.Done():
				errs <- apperr.ErrCancelled
				return
			}
		}
	}()

	return frames, errs
}
