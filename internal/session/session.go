// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package session is the per-session state machine (spec §4.5): state
// enum, rolling audio buffer, partial transcript, timing marks, and task
// registry. State, transcript, and timing marks are serialized by a
// per-session lock; the buffer and the registry each carry their own lock.
// None of these locks is held across upstream I/O (spec §5 locking
// discipline).
package session

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rapidaai/freya-voice-gateway/internal/audio"
	"github.com/rapidaai/freya-voice-gateway/internal/menu"
	"github.com/rapidaai/freya-voice-gateway/internal/stt"
)

// State is one of the six states of spec §3 "Session state".
type State int

const (
	Idle State = iota
	Listening
	ProcessingSTT
	GeneratingLLM
	StreamingTTS
	Interrupted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case ProcessingSTT:
		return "processing_stt"
	case GeneratingLLM:
		return "generating_llm"
	case StreamingTTS:
		return "streaming_tts"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Config carries the tunables from spec §6.3 that govern scheduling
// predicates.
type Config struct {
	PartialSTTMinGap          time.Duration
	PartialSTTMinAudioDur     time.Duration
	EarlyTriggerSilenceThresh time.Duration
}

// Session is a single table's live duplex conversation (spec §3
// "Session"). It owns its buffer, transcript, and task registry
// exclusively; all are destroyed when the channel closes.
type Session struct {
	ID      string
	TableID string

	mu    sync.Mutex
	state State

	Buffer   *audio.Buffer
	Registry *Registry
	STTGate  *stt.Gate
	Menu     *menu.Menu
	cfg      Config

	transcript        string
	transcriptUpdated time.Time

	sessionStart time.Time
	lastSTTTime  time.Time

	sttSeq         int64
	lastEmittedSeq int64
	turnEpoch      int64
}

// New builds a fresh session in the Idle state for the given table.
func New(tableID string, cfg Config) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		TableID:      tableID,
		state:        Idle,
		Buffer:       audio.NewBuffer(),
		Registry:     NewRegistry(),
		STTGate:      stt.NewGate(cfg.PartialSTTMinGap),
		cfg:          cfg,
		sessionStart: now,
	}
}

// State returns the current state under the session lock.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transitionLocked moves to next. Caller must hold s.mu.
func (s *Session) transitionLocked(next State) {
	s.state = next
}

// Transition moves the session to next, acquiring the session lock. Public
// entry point for driver-level transitions not already covered by a more
// specific method below.
func (s *Session) Transition(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionLocked(next)
}

// AddAudioChunk appends inbound audio to the buffer and updates
// last_chunk_time (spec §4.5 add_audio_chunk). Idle sessions transition to
// Listening on first audio.
func (s *Session) AddAudioChunk(chunk []byte, now time.Time) {
	s.mu.Lock()
	if s.state == Idle {
		s.transitionLocked(Listening)
	}
	s.mu.Unlock()

	s.Buffer.Append(chunk, now)
}

// LastChunkTime returns the wall-clock of the most recently appended audio
// chunk.
func (s *Session) LastChunkTime() time.Time {
	return s.Buffer.LastChunkAt()
}

// CanProcessPartialSTT implements spec §4.6: buffer duration at or above
// the minimum threshold, AND time since the last STT call at or above that
// same threshold, AND no STT call already in flight (tie-break: skip rather
// than queue behind the per-session mutex).
func (s *Session) CanProcessPartialSTT(now time.Time) bool {
	s.mu.Lock()
	inFlight := s.Registry.Has(TaskSTT)
	s.mu.Unlock()
	if inFlight {
		return false
	}

	min := s.cfg.PartialSTTMinAudioDur
	if min <= 0 {
		min = 1200 * time.Millisecond
	}

	if s.Buffer.Len() < audio.DurationBytes(min) {
		return false
	}
	last := s.Buffer.LastSTTCallAt()
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= min
}

// MarkSTTCallStarted records that a partial-STT call has just been
// submitted against the current buffer contents.
func (s *Session) MarkSTTCallStarted(now time.Time) {
	s.Buffer.MarkSTTCall(now)
	s.mu.Lock()
	s.lastSTTTime = now
	s.mu.Unlock()
}

// NextSTTSeq returns a fresh, monotonically increasing sequence number for
// an about-to-be-dispatched partial-STT call.
func (s *Session) NextSTTSeq() int64 {
	return atomic.AddInt64(&s.sttSeq, 1)
}

// TryAcceptSTTResult reports whether a result computed for seq is still the
// newest one seen, atomically marking it as emitted if so. Spec §5/§8: "the
// engine MUST NOT emit a stale partial after a newer one has been produced
// — if an older call returns after a newer one, its result is dropped."
func (s *Session) TryAcceptSTTResult(seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastEmittedSeq {
		return false
	}
	s.lastEmittedSeq = seq
	return true
}

// Transcript returns the current best-guess transcript for the turn.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// MergeTranscript folds a fresh partial-STT result into the running
// transcript via stt.Merge and records the update time.
func (s *Session) MergeTranscript(fresh string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = stt.Merge(s.transcript, fresh)
	s.transcriptUpdated = now
	return s.transcript
}

// ClearTranscript resets the transcript at a turn boundary or barge-in
// (spec §3 "Cleared on turn boundary and on barge-in").
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = ""
}

// ShouldTriggerLLM implements spec §4.7: the trimmed transcript ends in a
// sentence terminator, or it has ≥3 words and the client has been silent
// for ≥ the configured threshold. forceTrue lets audio_end override the
// predicate unconditionally.
func (s *Session) ShouldTriggerLLM(now time.Time, forceTrue bool) bool {
	if forceTrue {
		return true
	}
	transcript := strings.TrimSpace(s.Transcript())
	if transcript == "" {
		return false
	}
	if endsInSentenceTerminator(transcript) {
		return true
	}
	words := strings.Fields(transcript)
	if len(words) < 3 {
		return false
	}
	thresh := s.cfg.EarlyTriggerSilenceThresh
	if thresh <= 0 {
		thresh = 400 * time.Millisecond
	}
	return now.Sub(s.LastChunkTime()) >= thresh
}

func endsInSentenceTerminator(s string) bool {
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '.' || r == '!' || r == '?'
}

// ReturnToListeningIfProcessing transitions ProcessingSTT back to
// Listening (spec §3 "Listening↔Processing-STT"); a no-op if the state has
// since moved on (a turn began, a barge-in occurred) so a slow STT
// response can't clobber a newer transition.
func (s *Session) ReturnToListeningIfProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ProcessingSTT {
		s.transitionLocked(Listening)
	}
}

// ReturnToIdleIfStreamingTTS transitions StreamingTTS back to Idle
// (spec §4.9 "Enter Idle" after the channel-open greeting); a no-op if the
// state has since moved on, e.g. a partial-STT tick or an interrupt already
// moved the session out of StreamingTTS, so a slow-draining greeting can't
// clobber a transition that already superseded it.
func (s *Session) ReturnToIdleIfStreamingTTS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StreamingTTS {
		s.transitionLocked(Idle)
	}
}

// BeginTurn transitions the session into GeneratingLLM and returns a fresh
// turn epoch, unless a turn is already in flight (GeneratingLLM or
// StreamingTTS), in which case it reports false and leaves the state
// untouched. This is the single gate that keeps the early-trigger
// predicate from spawning a second concurrent turn while one is still
// running (spec §4.7/§4.8). The epoch lets a later EndTurn tell whether it
// is still closing out the turn it was given, or a stale one superseded by
// a corrective restart (spec §4.7 paragraph 2).
func (s *Session) BeginTurn() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == GeneratingLLM || s.state == StreamingTTS {
		return 0, false
	}
	s.turnEpoch++
	s.transitionLocked(GeneratingLLM)
	return s.turnEpoch, true
}

// RestartTurn unconditionally starts a fresh turn epoch, regardless of
// current state. Used only by the corrective-restart path, which already
// owns the turn (it just cancelled the stale one) and must not be rejected
// by the in-flight check BeginTurn applies to a fresh trigger.
func (s *Session) RestartTurn() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnEpoch++
	s.transitionLocked(GeneratingLLM)
	return s.turnEpoch
}

// TurnLive reports whether epoch is still the session's current turn —
// i.e. no corrective restart has since begun a newer one. It does not by
// itself prove the turn's tasks are still running (it completes and calls
// EndTurn without bumping turnEpoch again); callers that need to know a
// task is still actually in flight should pair this with a check against
// the task registry (spec §8 S6: a corrective restart must never fire
// against a turn that has already finished and emitted its one
// ai_complete).
func (s *Session) TurnLive(epoch int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnEpoch == epoch
}

// EndTurn returns the session to Idle once both the LLM and TTS streams of
// the turn identified by epoch have drained (spec §3 "Streaming-TTS→Idle").
// It is a no-op if epoch is no longer the active turn — either a barge-in
// already moved the session elsewhere, or a corrective restart has since
// begun a newer turn — so a stale turn's own cleanup can never clobber a
// transition that superseded it.
func (s *Session) EndTurn(epoch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnEpoch == epoch && (s.state == GeneratingLLM || s.state == StreamingTTS) {
		s.transitionLocked(Idle)
	}
}

// CancelActiveStreams cancels every task in the registry and transitions
// through Interrupted back to Listening (spec §3 Interrupted state, §4.5
// cancel_active_streams).
func (s *Session) CancelActiveStreams() {
	s.Transition(Interrupted)
	s.Registry.CancelAll()
	s.Transition(Listening)
}

// ClearProcessedAudio drops the buffer, optionally retaining the overlap
// tail (spec §4.5 clear_processed_audio).
func (s *Session) ClearProcessedAudio(keepOverlap bool) {
	s.Buffer.Clear(keepOverlap)
}

// SessionStart returns the wall-clock the session was created.
func (s *Session) SessionStart() time.Time {
	return s.sessionStart
}
