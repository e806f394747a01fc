// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package engine

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/llm"
	"github.com/rapidaai/freya-voice-gateway/internal/stt"
	"github.com/rapidaai/freya-voice-gateway/internal/tts"
)

// limitedSTT, limitedLLM, and limitedTTS each wrap a remote client with the
// process-wide concurrency limiter of spec §5: "≤N in-flight upstream
// calls across all sessions ... prevents thundering herds under load". All
// three share one semaphore so the bound is over the upstream fleet as a
// whole, not per-stage.

type limitedSTT struct {
	inner stt.Client
	sem   *semaphore.Weighted
}

func (l *limitedSTT) TranscribePartial(ctx context.Context, gate *stt.Gate, audioBytes []byte, isFinal bool) (*stt.Result, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "engine.limiter.stt", err)
	}
	defer l.sem.Release(1)
	return l.inner.TranscribePartial(ctx, gate, audioBytes, isFinal)
}

type limitedLLM struct {
	inner llm.Client
	sem   *semaphore.Weighted
}

func (l *limitedLLM) GenerateStream(ctx context.Context, userMessage, menuContext string) (<-chan llm.Token, <-chan error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return closedLLMStream(apperr.New(apperr.TransientUpstream, "engine.limiter.llm", err))
	}

	tokens, errs := l.inner.GenerateStream(ctx, userMessage, menuContext)
	outTokens := make(chan llm.Token, 16)
	outErrs := make(chan error, 1)
	go func() {
		defer l.sem.Release(1)
		defer close(outTokens)
		defer close(outErrs)
		for t := range tokens {
			outTokens <- t
		}
		for e := range errs {
			outErrs <- e
		}
	}()
	return outTokens, outErrs
}

func closedLLMStream(err error) (<-chan llm.Token, <-chan error) {
	tokens := make(chan llm.Token)
	errs := make(chan error, 1)
	errs <- err
	close(tokens)
	close(errs)
	return tokens, errs
}

type limitedTTS struct {
	inner tts.Client
	sem   *semaphore.Weighted
}

func (l *limitedTTS) SpeakStream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return closedTTSStream(apperr.New(apperr.TransientUpstream, "engine.limiter.tts", err))
	}

	frames, errs := l.inner.SpeakStream(ctx, text)
	outFrames := make(chan []byte, 32)
	outErrs := make(chan error, 1)
	go func() {
		defer l.sem.Release(1)
		defer close(outFrames)
		defer close(outErrs)
		for f := range frames {
			outFrames <- f
		}
		for e := range errs {
			outErrs <- e
		}
	}()
	return outFrames, outErrs
}

func closedTTSStream(err error) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error, 1)
	errs <- err
	close(frames)
	close(errs)
	return frames, errs
}
