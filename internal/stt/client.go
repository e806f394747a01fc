// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package stt is the remote speech-to-text client (spec §4.1): rate
// limiting, a tiny-input filter, retried upload-and-invoke, and the
// transcript merge algorithm that compensates for resending the whole
// buffer on every partial call.
package stt

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/audio"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
	"github.com/rapidaai/freya-voice-gateway/internal/retry"
)

// Result is one transcription outcome.
type Result struct {
	Text           string
	IsFinal        bool
	Confidence     float64
	ProcessingTime time.Duration
}

// Gate is the per-session serialization and rate-limit state required by
// spec §4.1 rules 1 and 5. It is owned by the session, not the client,
// so it is garbage-collected with the session rather than leaking in a
// process-wide map.
type Gate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewGate builds a per-session gate enforcing the minimum gap between
// consecutive STT calls (default 500ms, spec §6.3 partial-STT minimum gap).
func NewGate(minGap time.Duration) *Gate {
	if minGap <= 0 {
		minGap = 500 * time.Millisecond
	}
	// A limiter with burst 1 and refill period minGap enforces "at least
	// minGap between consecutive calls" directly.
	return &Gate{limiter: rate.NewLimiter(rate.Every(minGap), 1)}
}

// Client is the remote-STT contract (spec §4.1).
type Client interface {
	// TranscribePartial implements transcribe_partial. A nil result with a
	// nil error means the call was skipped (tiny input).
	TranscribePartial(ctx context.Context, gate *Gate, audioBytes []byte, isFinal bool) (*Result, error)
}

type httpClient struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	logger  commons.Logger
	policy  retry.Policy
}

// NewClient builds the HTTP-backed STT client (spec §4.1 rule 3: "upload to
// a CDN and call the async-subscribe API ... or stream as multipart; fall
// back on the former"). This implementation uses the multipart fallback
// directly since the shared HTTP client already pools connections.
func NewClient(http *resty.Client, baseURL, apiKey string, logger commons.Logger) Client {
	return &httpClient{
		http:    http,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
		policy:  retry.DefaultSTTPolicy(logger),
	}
}

func (c *httpClient) TranscribePartial(ctx context.Context, gate *Gate, audioBytes []byte, isFinal bool) (*Result, error) {
	if len(audioBytes) < audio.MinSendBytes {
		return nil, nil
	}

	gate.mu.Lock()
	defer gate.mu.Unlock()

	if err := gate.limiter.Wait(ctx); err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "stt.transcribe_partial", err)
	}

	var result *Result
	start := time.Now()
	err := c.policy.Execute(ctx, func(attempt int) error {
		res, err := c.invoke(ctx, audioBytes, isFinal)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	elapsed := time.Since(start)
	if c.logger != nil {
		c.logger.Benchmark("stt.transcribe_partial", elapsed)
	}
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "stt.transcribe_partial", err)
	}
	result.ProcessingTime = elapsed
	return result, nil
}

type sttResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

func (c *httpClient) invoke(ctx context.Context, audioBytes []byte, isFinal bool) (*Result, error) {
	var out sttResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetFileReader("audio", "segment.webm", bytes.NewReader(audioBytes)).
		SetFormData(map[string]string{
			"language": "tr",
			"task":     "transcribe",
		}).
		SetResult(&out).
		ForceContentType("application/json").
		Post(fmt.Sprintf("%s/v1/transcribe", c.baseURL))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == 429 {
		return nil, fmt.Errorf("stt upstream rate limited: %d", resp.StatusCode())
	}
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("stt upstream error: %d", resp.StatusCode())
	}
	if resp.IsError() {
		return nil, apperr.New(apperr.InvalidInput, "stt.invoke", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return &Result{
		Text:       out.Text,
		IsFinal:    isFinal,
		Confidence: out.Confidence,
	}, nil
}
