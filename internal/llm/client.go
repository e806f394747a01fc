// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package llm is the remote streaming-LLM client (spec §4.2): a finite,
// non-restartable token stream over a websocket connection, torn down
// promptly on cancellation. Messages in both directions use a typed
// {type, data} envelope.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
)

// IdleGap is the max time allowed between tokens before the turn fails
// (spec §5: "LLM token idle gap: 30s").
const IdleGap = 30 * time.Second

// wsMessageType discriminates the request/response envelope exchanged with
// the LLM upstream.
type wsMessageType string

const (
	wsTypeConfiguration wsMessageType = "configuration"
	wsTypeUserMessage   wsMessageType = "user_message"
	wsTypeToken         wsMessageType = "token"
	wsTypeDone          wsMessageType = "done"
	wsTypeError         wsMessageType = "error"
)

type wsRequest struct {
	Type wsMessageType `json:"type"`
	Data interface{}   `json:"data,omitempty"`
}

type wsResponse struct {
	Type wsMessageType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsConfigData struct {
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

type wsUserMessageData struct {
	Content string `json:"content"`
}

type wsTokenData struct {
	Token    string `json:"token"`
	FullText string `json:"full_text"`
}

type wsErrorData struct {
	Message string `json:"message"`
}

// Token is one item in the lazy token sequence (spec §4.2
// generate_stream → lazy sequence of {token, full_text}).
type Token struct {
	Token    string
	FullText string
}

// Client is the remote-LLM contract (spec §4.2).
type Client interface {
	// GenerateStream starts a finite, non-restartable token stream. Callers
	// cancel ctx to tear down the underlying stream promptly; the returned
	// channel is closed on completion, cancellation, or terminal error. A
	// terminal error is reported on errCh before the token channel closes.
	GenerateStream(ctx context.Context, userMessage, menuContext string) (<-chan Token, <-chan error)
}

type wsClient struct {
	baseURL string
	apiKey  string
	logger  commons.Logger
}

// NewClient builds the websocket-backed LLM client.
func NewClient(baseURL, apiKey string, logger commons.Logger) Client {
	return &wsClient{baseURL: baseURL, apiKey: apiKey, logger: logger}
}

func (c *wsClient) GenerateStream(ctx context.Context, userMessage, menuContext string) (<-chan Token, <-chan error) {
	tokens := make(chan Token, 16)
	errs := make(chan error, 1)

	go func() {
		start := time.Now()
		defer close(tokens)
		defer close(errs)
		defer func() {
			if c.logger != nil {
				c.logger.Benchmark("llm.generate_stream", time.Since(start))
			}
		}()

		conn, err := c.dial(ctx)
		if err != nil {
			errs <- apperr.New(apperr.TransientUpstream, "llm.generate_stream", err)
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		send := func(msg wsRequest) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			payload, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		if err := send(wsRequest{
			Type: wsTypeConfiguration,
			Data: wsConfigData{
				SystemPrompt: systemPrompt(menuContext),
				Temperature:  0.7,
				MaxTokens:    100,
			},
		}); err != nil {
			errs <- apperr.New(apperr.TransientUpstream, "llm.generate_stream", err)
			return
		}

		if err := send(wsRequest{
			Type: wsTypeUserMessage,
			Data: wsUserMessageData{Content: userMessage},
		}); err != nil {
			errs <- apperr.New(apperr.TransientUpstream, "llm.generate_stream", err)
			return
		}

		// Tear down the connection promptly when ctx is cancelled, even
		// while ReadMessage is blocked (spec §5: "within one stream-read
		// interval").
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
				errs <- apperr.New(apperr.TransientUpstream, "llm.generate_stream", err)
				return
			}

			var resp wsResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				if c.logger != nil {
					c.logger.Errorf("llm: malformed response: %v", err)
				}
				continue
			}

			switch resp.Type {
			case wsTypeToken:
				var data wsTokenData
				if err := json.Unmarshal(resp.Data, &data); err != nil {
					continue
				}
				select {
				case tokens <- Token{Token: data.Token, FullText: data.FullText}:
				case <-ctx.Done():
					errs <- apperr.ErrCancelled
					return
				}
			case wsTypeDone:
				return
			case wsTypeError:
				var data wsErrorData
				_ = json.Unmarshal(resp.Data, &data)
				errs <- apperr.New(apperr.TransientUpstream, "llm.generate_stream", fmt.Errorf("%s", data.Message))
				return
			}
		}
	}()

	return tokens, errs
}

func (c *wsClient) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid llm base url: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	headers := map[string][]string{"Authorization": {"Bearer " + c.apiKey}}
	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to llm websocket: %w", err)
	}
	return conn, nil
}

// systemPrompt builds the compact system prompt required by spec §4.2: a
// brief restaurant assistant, capped reply length, single JSON object
// output.
func systemPrompt(menuContext string) string {
	return "You are a brief, friendly restaurant voice assistant. Keep spoken_response " +
		"to about 10 words or fewer. Respond with exactly one JSON object: " +
		`{"spoken_response":"...","intent":"add|info|greet|check|recommend|other",` +
		`"product_name":"...","quantity":N}. Menu:\n` + menuContext
}
