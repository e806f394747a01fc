// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package bridge is the streaming bridge (spec §4.8): pipes LLM tokens into
// a sentence-boundary detector, spawns the first TTS task on the first
// boundary, and serializes outbound control messages and audio frames to
// the duplex channel in the exact order spec §5 requires.
package bridge

import "github.com/rapidaai/freya-voice-gateway/internal/menu"

// Emitter is the outbound half of the duplex channel (spec §6.1). The
// driver owns the actual channel write; the bridge only ever goes through
// this interface so cancellation never leaves a write in flight from two
// goroutines at once (spec §9 "the driver, not the task, writes to the
// duplex channel").
type Emitter interface {
	EmitJSON(v interface{}) error
	EmitBinary(frame []byte) error
}

// GreetingMessage is emitted once on channel-open (spec §4.9).
type GreetingMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewGreeting(text string) GreetingMessage {
	return GreetingMessage{Type: "greeting", Text: text}
}

// StatusMessage reports coarse pipeline progress.
type StatusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	StatusReceiving    = "receiving"
	StatusTranscribing = "transcribing"
	StatusThinking     = "thinking"
	StatusProcessing   = "processing"
)

func NewStatus(message string) StatusMessage {
	return StatusMessage{Type: "status", Message: message}
}

// PartialTranscriptMessage carries the merged best-guess transcript
// (spec §4.6).
type PartialTranscriptMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

func NewPartialTranscript(text string, confidence float64) PartialTranscriptMessage {
	return PartialTranscriptMessage{Type: "partial_transcript", Text: text, Confidence: confidence, IsFinal: false}
}

// TranscriptMessage is the turn's committed-final transcript.
type TranscriptMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

func NewTranscript(text string) TranscriptMessage {
	return TranscriptMessage{Type: "transcript", Text: text, IsFinal: true}
}

// AITokenMessage is one LLM token plus the running full_text (spec §4.8
// step 2).
type AITokenMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	FullText string `json:"full_text"`
}

// AICompleteMessage carries the final structured intent (spec §3).
type AICompleteMessage struct {
	Type string     `json:"type"`
	Data IntentData `json:"data"`
}

type IntentData struct {
	SpokenResponse string `json:"spoken_response"`
	Intent         string `json:"intent"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
}

// RecommendationMessage surfaces a menu item alongside a recommend intent.
type RecommendationMessage struct {
	Type    string       `json:"type"`
	Product menu.Product `json:"product"`
}

// TTSStartMessage / TTSCompleteMessage bracket the binary audio frames of
// one TTS task (spec §8 ordering invariant).
type TTSStartMessage struct {
	Type string `json:"type"`
}

func NewTTSStart() TTSStartMessage { return TTSStartMessage{Type: "tts_start"} }

type TTSCompleteMessage struct {
	Type string `json:"type"`
}

func NewTTSComplete() TTSCompleteMessage { return TTSCompleteMessage{Type: "tts_complete"} }

// InterruptAckMessage acknowledges a barge-in (spec §4.9).
type InterruptAckMessage struct {
	Type string `json:"type"`
}

func NewInterruptAck() InterruptAckMessage { return InterruptAckMessage{Type: "interrupt_ack"} }

// ErrorMessage reports a terminal, non-retriable failure for the turn
// (spec §7).
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorMessage { return ErrorMessage{Type: "error", Message: message} }

// PongMessage answers a client ping.
type PongMessage struct {
	Type string `json:"type"`
}

func NewPong() PongMessage { return PongMessage{Type: "pong"} }
