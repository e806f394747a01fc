// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/freya-voice-gateway/internal/llm"
	"github.com/rapidaai/freya-voice-gateway/internal/menu"
	"github.com/rapidaai/freya-voice-gateway/internal/session"
	"github.com/rapidaai/freya-voice-gateway/internal/tts"
)

type recordingEmitter struct {
	mu    sync.Mutex
	types []string
}

func (e *recordingEmitter) EmitJSON(v interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch m := v.(type) {
	case AITokenMessage:
		e.types = append(e.types, "ai_token")
	case AICompleteMessage:
		e.types = append(e.types, "ai_complete")
		_ = m
	case TTSStartMessage:
		e.types = append(e.types, "tts_start")
	case TTSCompleteMessage:
		e.types = append(e.types, "tts_complete")
	case ErrorMessage:
		e.types = append(e.types, "error")
	case RecommendationMessage:
		e.types = append(e.types, "recommendation")
	default:
		e.types = append(e.types, "other")
	}
	return nil
}

func (e *recordingEmitter) EmitBinary(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, "binary")
	return nil
}

type fakeLLM struct {
	tokens []llm.Token
}

func (f *fakeLLM) GenerateStream(ctx context.Context, userMessage, menuContext string) (<-chan llm.Token, <-chan error) {
	tokCh := make(chan llm.Token, len(f.tokens))
	errCh := make(chan error, 1)
	for _, t := range f.tokens {
		tokCh <- t
	}
	close(tokCh)
	close(errCh)
	return tokCh, errCh
}

type fakeTTS struct{}

func (f *fakeTTS) SpeakStream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, 2)
	errs := make(chan error, 1)
	frames <- []byte{1, 2}
	frames <- []byte{3, 4}
	close(frames)
	close(errs)
	return frames, errs
}

type fakeCollaborator struct{ placed []menu.OrderItem }

func (f *fakeCollaborator) GetMenu(ctx context.Context, qrToken string) (*menu.Menu, error) {
	return &menu.Menu{}, nil
}
func (f *fakeCollaborator) PlaceOrder(ctx context.Context, qrToken string, items []menu.OrderItem) (*menu.OrderResult, error) {
	f.placed = append(f.placed, items...)
	return &menu.OrderResult{OrderID: "o1", Status: "placed"}, nil
}
func (f *fakeCollaborator) RequestCheck(ctx context.Context, qrToken string) error { return nil }

func TestBridgeRunOrdersTTSAroundFrames(t *testing.T) {
	tokens := []llm.Token{
		{Token: `{"spoken_response":"Tamam.`, FullText: `{"spoken_response":"Tamam.`},
		{Token: `"`, FullText: `{"spoken_response":"Tamam."`},
		{Token: `,"intent":"add","product_name":"Pizza","quantity":2}`,
			FullText: `{"spoken_response":"Tamam.","intent":"add","product_name":"Pizza","quantity":2}`},
	}
	b := New(&fakeLLM{tokens: tokens}, &fakeTTS{}, &fakeCollaborator{}, nil)
	sess := session.New("T1", session.Config{})
	emitter := &recordingEmitter{}

	err := b.Run(context.Background(), sess, "qr1", "iki pizza lütfen", &menu.Menu{}, emitter)
	require.NoError(t, err)

	idxStart := indexOf(emitter.types, "tts_start")
	idxComplete := indexOf(emitter.types, "tts_complete")
	idxAIComplete := indexOf(emitter.types, "ai_complete")
	idxBinary := indexOf(emitter.types, "binary")
	require.GreaterOrEqual(t, idxStart, 0)
	require.GreaterOrEqual(t, idxComplete, 0)
	require.GreaterOrEqual(t, idxBinary, 0)
	assert.Less(t, idxStart, idxBinary)
	assert.Less(t, idxBinary, idxComplete)
	assert.Equal(t, "binary", emitter.types[idxComplete-1])
	assert.Less(t, idxStart, idxComplete)
	assert.Less(t, idxComplete, idxAIComplete)
	assert.Equal(t, 0, sess.Registry.Len())
}

func TestBridgeRunPlacesOrderOnAddIntent(t *testing.T) {
	tokens := []llm.Token{
		{Token: `{"spoken_response":"Tamam.","intent":"add","product_name":"Pizza","quantity":2}`,
			FullText: `{"spoken_response":"Tamam.","intent":"add","product_name":"Pizza","quantity":2}`},
	}
	collab := &fakeCollaborator{}
	b := New(&fakeLLM{tokens: tokens}, &fakeTTS{}, collab, nil)
	sess := session.New("T1", session.Config{})
	emitter := &recordingEmitter{}

	err := b.Run(context.Background(), sess, "qr1", "iki pizza", &menu.Menu{}, emitter)
	require.NoError(t, err)
	require.Len(t, collab.placed, 1)
	assert.Equal(t, "Pizza", collab.placed[0].ProductName)
	assert.Equal(t, 2, collab.placed[0].Quantity)
}

func TestBridgeRunFallsBackToFinalTTSWhenNoBoundary(t *testing.T) {
	tokens := []llm.Token{
		{Token: `{"spoken_response":"merhaba","intent":"greet"`, FullText: `{"spoken_response":"merhaba","intent":"greet"`},
		{Token: `}`, FullText: `{"spoken_response":"merhaba","intent":"greet"}`},
	}
	b := New(&fakeLLM{tokens: tokens}, &fakeTTS{}, &fakeCollaborator{}, nil)
	sess := session.New("T1", session.Config{})
	emitter := &recordingEmitter{}

	err := b.Run(context.Background(), sess, "qr1", "merhaba", &menu.Menu{}, emitter)
	require.NoError(t, err)
	assert.Contains(t, emitter.types, "tts_start")
	assert.Contains(t, emitter.types, "tts_complete")
}

func TestBridgeRunEmitsRecommendationForRecommendIntent(t *testing.T) {
	tokens := []llm.Token{
		{Token: `{"spoken_response":"Pizzamızı önerebilirim.","intent":"recommend","product_name":"Pizza","quantity":0}`,
			FullText: `{"spoken_response":"Pizzamızı önerebilirim.","intent":"recommend","product_name":"Pizza","quantity":0}`},
	}
	b := New(&fakeLLM{tokens: tokens}, &fakeTTS{}, &fakeCollaborator{}, nil)
	sess := session.New("T1", session.Config{})
	emitter := &recordingEmitter{}
	m := &menu.Menu{Products: []menu.Product{{ID: "p1", Name: "Pizza", Price: 150}}}

	err := b.Run(context.Background(), sess, "qr1", "ne önerirsin", m, emitter)
	require.NoError(t, err)
	assert.Contains(t, emitter.types, "recommendation")
}

func indexOf(haystack []string, needle string) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}
