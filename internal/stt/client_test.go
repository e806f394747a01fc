// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribePartialSkipsTinyInput(t *testing.T) {
	called := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
	}))
	defer srv.Close()

	c := NewClient(resty.New(), srv.URL, "key", nil)
	gate := NewGate(10 * time.Millisecond)
	result, err := c.TranscribePartial(context.Background(), gate, make([]byte, 999), false)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int32(0), called)
}

func TestTranscribePartialSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sttResponse{Text: "test", Confidence: 0.92})
	}))
	defer srv.Close()

	c := NewClient(resty.New(), srv.URL, "key", nil)
	gate := NewGate(10 * time.Millisecond)
	result, err := c.TranscribePartial(context.Background(), gate, make([]byte, 2048), false)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "test", result.Text)
	assert.Equal(t, 0.92, result.Confidence)
}

func TestTranscribePartialFailsFastOnClientError(t *testing.T) {
	attempts := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(resty.New(), srv.URL, "key", nil)
	gate := NewGate(10 * time.Millisecond)
	_, err := c.TranscribePartial(context.Background(), gate, make([]byte, 2048), false)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts)
}

func TestGateEnforcesMinimumGap(t *testing.T) {
	gate := NewGate(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, gate.limiter.Wait(context.Background()))
	require.NoError(t, gate.limiter.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
