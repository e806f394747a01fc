// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package retry encodes retry/backoff as a small policy object (spec §9:
// "Encode as a small policy object ... rather than hand-rolled sleeps in
// each caller"), built on cenkalti/backoff rather than a manual sleep loop.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
)

// Policy is a retry policy: a maximum attempt count, a base/max delay, and a
// predicate on the error kind that decides whether an attempt is worth
// retrying at all.
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	ShouldRetry  func(err error) bool
	Logger       commons.Logger
	Op           string
}

// DefaultSTTPolicy implements spec §4.1.4: up to 3 total attempts with
// exponential backoff (2s before the second attempt, 4s before the third;
// delays are capped at 8s), retry on 5xx/429/transient I/O, fail fast on
// other 4xx.
func DefaultSTTPolicy(logger commons.Logger) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    8 * time.Second,
		Multiplier:  2,
		ShouldRetry: func(err error) bool {
			return apperr.KindOf(err) == apperr.TransientUpstream
		},
		Logger: logger,
		Op:     "stt.transcribe",
	}
}

// Execute runs fn, retrying per the policy until it succeeds, ShouldRetry
// returns false, MaxAttempts is exhausted, or ctx is cancelled. The last
// error is returned on exhaustion.
func (p Policy) Execute(ctx context.Context, fn func(attempt int) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall clock

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	bounded := backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	attempt := 0
	var lastErr error
	op := func() error {
		attempt++
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if apperr.IsCancelled(err) {
			return backoff.Permanent(err)
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return backoff.Permanent(err)
		}
		if attempt >= maxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.Logger != nil {
			p.Logger.Warnw("retrying after transient failure",
				"op", p.Op, "attempt", attempt, "wait", wait.String(), "error", err.Error())
		}
	}

	if err := backoff.RetryNotify(op, withCtx, notify); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
