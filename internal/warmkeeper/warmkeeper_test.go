// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package warmkeeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/freya-voice-gateway/internal/stt"
	"github.com/rapidaai/freya-voice-gateway/internal/tts"
)

type fakeSTT struct{ calls int32 }

func (f *fakeSTT) TranscribePartial(ctx context.Context, gate *stt.Gate, audio []byte, isFinal bool) (*stt.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return &stt.Result{Text: "warm"}, nil
}

type fakeTTS struct{ calls int32 }

func (f *fakeTTS) SpeakStream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	atomic.AddInt32(&f.calls, 1)
	frames := make(chan []byte)
	errs := make(chan error, 1)
	close(frames)
	errs <- nil
	close(errs)
	return frames, errs
}

func TestWarmKeeperTicksBothClients(t *testing.T) {
	fs := &fakeSTT{}
	ft := &fakeTTS{}
	k := New(fs, ft, 20*time.Millisecond, nil)
	k.Start()
	defer k.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fs.calls) >= 2 && atomic.LoadInt32(&ft.calls) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestWarmKeeperStartStopIdempotent(t *testing.T) {
	k := New(&fakeSTT{}, &fakeTTS{}, time.Second, nil)
	k.Start()
	k.Start() // no-op, must not deadlock or double-run
	k.Stop()
	k.Stop() // no-op
}
