// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationBytesAtFixedRate(t *testing.T) {
	assert.Equal(t, 38400, DurationBytes(1200*time.Millisecond))
	assert.Equal(t, 32000, BytesPerSecond())
}

func TestBufferAppendAndSnapshot(t *testing.T) {
	b := NewBuffer()
	now := time.Now()
	b.Append([]byte{1, 2, 3}, now)
	require.Equal(t, 3, b.Len())
	assert.Equal(t, []byte{1, 2, 3}, b.Snapshot())
	assert.Equal(t, now, b.LastChunkAt())
}

func TestBufferOverrunTruncatesToTail(t *testing.T) {
	b := NewBuffer()
	now := time.Now()
	full := make([]byte, MaxBufferBytes)
	for i := range full {
		full[i] = byte(i)
	}
	b.Append(full, now)
	require.Equal(t, MaxBufferBytes, b.Len())

	// One more byte pushes it over the hard cap; only the most recent
	// TruncateKeepBytes should survive.
	b.Append([]byte{0xAA}, now)
	assert.Equal(t, TruncateKeepBytes, b.Len())
	snap := b.Snapshot()
	assert.Equal(t, byte(0xAA), snap[len(snap)-1])
}

func TestBufferClearWithoutOverlap(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte{1, 2, 3, 4}, time.Now())
	b.Clear(false)
	assert.Equal(t, 0, b.Len())
}

func TestBufferClearKeepsOverlapTail(t *testing.T) {
	b := NewBuffer()
	tailBytes := DurationBytes(OverlapDuration)
	data := make([]byte, tailBytes*3)
	for i := range data {
		data[i] = byte(i % 256)
	}
	b.Append(data, time.Now())
	b.Clear(true)
	require.Equal(t, tailBytes, b.Len())
	assert.Equal(t, data[len(data)-tailBytes:], b.Snapshot())
}

func TestBufferClearKeepOverlapShorterThanTailIsNoop(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte{1, 2, 3}, time.Now())
	b.Clear(true)
	assert.Equal(t, 3, b.Len())
}
