// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package warmkeeper is the process-wide cold-start mitigation task
// (spec §4.4 / §9 "process-wide warm-keeper"): a single engine-scoped
// service, started once at engine init and stopped at shutdown, with no
// global mutable state beyond its own task handle.
package warmkeeper

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/freya-voice-gateway/internal/commons"
	"github.com/rapidaai/freya-voice-gateway/internal/stt"
	"github.com/rapidaai/freya-voice-gateway/internal/tts"
)

// trivialAudio is a minimal PCM16 payload large enough to clear the STT
// tiny-input filter, used only to keep the upstream container warm.
var trivialAudio = make([]byte, 2048)

const trivialText = "merhaba"

// Keeper is a process-wide, idempotent start/stop warm-keeper.
type Keeper struct {
	stt      stt.Client
	tts      tts.Client
	interval time.Duration
	logger   commons.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Keeper. interval is clamped by config to the accepted
// 10-120s range (spec §6.3) before reaching here.
func New(sttClient stt.Client, ttsClient tts.Client, interval time.Duration, logger commons.Logger) *Keeper {
	return &Keeper{stt: sttClient, tts: ttsClient, interval: interval, logger: logger}
}

// Start launches the background ticker. Calling Start while already
// running is a no-op (idempotent, spec §5).
func (k *Keeper) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	k.done = make(chan struct{})
	go k.run(ctx, k.done)
}

// Stop halts the ticker and waits for the current tick to settle. Calling
// Stop when not running is a no-op.
func (k *Keeper) Stop() {
	k.mu.Lock()
	cancel := k.cancel
	done := k.done
	k.cancel = nil
	k.done = nil
	k.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (k *Keeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

// tick issues one trivial STT call and one trivial TTS call in parallel,
// swallowing every error (spec §4.4: "must survive individual call
// failures silently").
func (k *Keeper) tick(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer k.recoverAndLog("warmkeeper.stt")
		gate := stt.NewGate(0)
		if _, err := k.stt.TranscribePartial(ctx, gate, trivialAudio, false); err != nil && k.logger != nil {
			k.logger.Debugf("warmkeeper: stt call failed (expected, tolerated): %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		defer k.recoverAndLog("warmkeeper.tts")
		frames, errs := k.tts.SpeakStream(ctx, trivialText)
		for range frames {
		}
		if err := <-errs; err != nil && k.logger != nil {
			k.logger.Debugf("warmkeeper: tts call failed (expected, tolerated): %v", err)
		}
	}()

	wg.Wait()
}

func (k *Keeper) recoverAndLog(op string) {
	if r := recover(); r != nil && k.logger != nil {
		k.logger.Errorf("warmkeeper: recovered panic in %s: %v", op, r)
	}
}
