// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnTask(ctx context.Context) (context.CancelFunc, <-chan struct{}) {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-taskCtx.Done()
	}()
	return cancel, done
}

func TestRegistrySetReplacesCancelsPrevious(t *testing.T) {
	r := NewRegistry()
	cancelled := make(chan struct{})
	ctx, firstCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		close(cancelled)
	}()
	r.Set(TaskLLM, firstCancel, done)

	cancel2, done2 := spawnTask(context.Background())
	r.Set(TaskLLM, cancel2, done2)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("previous task was not cancelled on replace")
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistryCancelAllClearsRegistry(t *testing.T) {
	r := NewRegistry()
	c1, d1 := spawnTask(context.Background())
	c2, d2 := spawnTask(context.Background())
	r.Set(TaskSTT, c1, d1)
	r.Set(TaskTTS, c2, d2)
	require.Equal(t, 2, r.Len())

	r.CancelAll()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryReleaseRemovesOwnSlot(t *testing.T) {
	r := NewRegistry()
	cancel, done := spawnTask(context.Background())
	r.Set(TaskTTS, cancel, done)
	require.Equal(t, 1, r.Len())

	r.Release(TaskTTS, done)
	assert.Equal(t, 0, r.Len())
	cancel()
}

func TestRegistryReleaseIsNoOpAfterSupersedingSet(t *testing.T) {
	r := NewRegistry()
	cancel1, done1 := spawnTask(context.Background())
	r.Set(TaskSTT, cancel1, done1)

	cancel2, done2 := spawnTask(context.Background())
	r.Set(TaskSTT, cancel2, done2)
	require.Equal(t, 1, r.Len())

	// A stale Release from the task that Set already cancelled and replaced
	// must not clobber the newer task's slot.
	r.Release(TaskSTT, done1)
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Has(TaskSTT))

	r.Cancel(TaskSTT)
}

func TestRegistryNeverExceedsFourKeys(t *testing.T) {
	r := NewRegistry()
	for _, k := range []TaskKey{TaskSTT, TaskLLM, TaskTTS, "warmer"} {
		c, d := spawnTask(context.Background())
		r.Set(k, c, d)
	}
	assert.LessOrEqual(t, r.Len(), 4)
	r.CancelAll()
}
