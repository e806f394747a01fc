// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package httpclient builds the one process-wide HTTP client every remote
// collaborator shares (spec §5: "share a process-wide HTTP client with
// keep-alive and a small connection pool ... callers do not open new
// connections per request").
package httpclient

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config tunes the shared transport's connection pool.
type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Timeout             time.Duration
}

// DefaultConfig matches spec §5's "≈5-10 keepalive connections".
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		Timeout:             60 * time.Second, // spec §5 STT hard timeout upper bound
	}
}

// New builds a shared resty client. All remote clients (STT upload/subscribe,
// the persistence collaborator) take this same *resty.Client rather than
// constructing their own http.Client, so the pool is actually shared.
func New(cfg Config) *resty.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	client := resty.New()
	client.SetTransport(transport)
	client.SetTimeout(cfg.Timeout)
	return client
}
