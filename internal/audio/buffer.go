// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package audio holds the PCM16 byte-duration math and the rolling capture
// buffer (spec §3 "Audio buffer"). Duration<->byte conversion follows the
// same bytesPerSecond/durationBytes shape as the teacher's
// internal/audio/recorder/internal/default_audio_recorder.go, fixed to
// 16kHz mono 16-bit linear PCM per spec §9's "Audio sample rate of inbound
// chunks" open-question resolution.
package audio

import (
	"sync"
	"time"
)

const (
	SampleRate     = 16000 // Hz
	Channels       = 1
	BytesPerSample = 2 // LINEAR16

	// MaxBufferBytes is the hard upper bound on the rolling capture buffer
	// (spec §3, "Hard upper bound ≈ 1 MB").
	MaxBufferBytes = 1 << 20

	// TruncateKeepBytes is how much of the tail survives an overrun (spec
	// §3/§8, "truncation to the most recent 500 KB").
	TruncateKeepBytes = MaxBufferBytes / 2

	// OverlapDuration is the acoustic context retained across a turn
	// boundary (spec §3, "≈500 ms ... to preserve context into the next turn").
	OverlapDuration = 500 * time.Millisecond

	// PartialSTTMinAudioBytes is the minimum buffered audio before a partial
	// STT call may fire (spec §4.6, "≈1.2 s worth of audio ... ≈38.4 KB").
	PartialSTTMinAudioBytes = 38400

	// MinSendBytes is the floor below which a chunk is too small to bother
	// sending to STT (spec §4.1.2, "below ~1 KB").
	MinSendBytes = 1024
)

// BytesPerSecond is the byte rate of the fixed wire format.
func BytesPerSecond() int {
	return SampleRate * Channels * BytesPerSample
}

// DurationBytes converts a wall-clock duration into a frame-aligned byte
// count at the fixed sample rate.
func DurationBytes(d time.Duration) int {
	raw := int(d.Seconds() * float64(BytesPerSecond()))
	frame := BytesPerSample * Channels
	return (raw / frame) * frame
}

// BytesDuration converts a byte count back into a duration.
func BytesDuration(n int) time.Duration {
	if BytesPerSecond() == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(BytesPerSecond()) * float64(time.Second))
}

// Buffer is the per-session rolling capture buffer described in spec §3. It
// is safe for concurrent use; the session state machine is the only
// intended caller but the lock keeps it independently correct.
type Buffer struct {
	mu            sync.Mutex
	data          []byte
	lastChunkAt   time.Time
	lastSTTCallAt time.Time
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds audio bytes and records the wall-clock of this chunk (spec
// §4.5 add_audio_chunk). On overrun the buffer keeps only the most recent
// TruncateKeepBytes (spec §3/§8).
func (b *Buffer) Append(chunk []byte, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, chunk...)
	if len(b.data) > MaxBufferBytes {
		keep := b.data[len(b.data)-TruncateKeepBytes:]
		b.data = append([]byte(nil), keep...)
	}
	b.lastChunkAt = now
}

// Snapshot returns a copy of the whole buffer contents — STT is always sent
// the entire buffer, never a delta (spec §3).
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the current buffered byte count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// LastChunkAt returns the wall-clock of the most recently appended chunk.
func (b *Buffer) LastChunkAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastChunkAt
}

// MarkSTTCall records that an STT call was just issued against the current
// buffer contents, for the partial-STT scheduler's minimum-gap check.
func (b *Buffer) MarkSTTCall(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSTTCallAt = now
}

// LastSTTCallAt returns the wall-clock of the last STT submission.
func (b *Buffer) LastSTTCallAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSTTCallAt
}

// Clear drops the buffered audio. When keepOverlap is true, the last
// OverlapDuration worth of bytes survive to seed the next turn's context
// (spec §3/§4.5 clear_processed_audio).
func (b *Buffer) Clear(keepOverlap bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !keepOverlap || len(b.data) == 0 {
		b.data = nil
		return
	}
	tailBytes := DurationBytes(OverlapDuration)
	if tailBytes >= len(b.data) {
		return
	}
	tail := b.data[len(b.data)-tailBytes:]
	b.data = append([]byte(nil), tail...)
}
