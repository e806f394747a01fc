// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package bridge

import (
	"context"
	"strings"
	"sync"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
	"github.com/rapidaai/freya-voice-gateway/internal/llm"
	"github.com/rapidaai/freya-voice-gateway/internal/menu"
	"github.com/rapidaai/freya-voice-gateway/internal/session"
	"github.com/rapidaai/freya-voice-gateway/internal/tts"
)

// Bridge drives one turn's LLM generation and TTS relay (spec §4.8).
type Bridge struct {
	LLM          llm.Client
	TTS          tts.Client
	Collaborator menu.Collaborator
	Logger       commons.Logger
}

// New builds a Bridge.
func New(llmClient llm.Client, ttsClient tts.Client, collaborator menu.Collaborator, logger commons.Logger) *Bridge {
	return &Bridge{LLM: llmClient, TTS: ttsClient, Collaborator: collaborator, Logger: logger}
}

// Run implements spec §4.8's algorithm for one turn: start the LLM stream,
// emit each token, spawn TTS on the first sentence boundary, relay audio
// frames in order, and emit the final structured intent. The TTS relay runs
// in its own goroutine once spawned (spec §2 "parallel-TTS spawner", §9
// "TTS tasks ... outlive the LLM task in wall-clock") so a slow/long TTS
// stream never stalls the LLM token loop; Run still waits for it to finish
// before emitting ai_complete, preserving the tts_complete-before-ai_complete
// ordering invariant (spec §8). ctx is the channel's context, cancelled on
// channel close; a barge-in instead cancels the LLM and TTS tasks through
// the session registry. Either way both streams are torn down promptly via
// their own cancellation-aware clients.
func (b *Bridge) Run(ctx context.Context, sess *session.Session, qrToken, transcript string, m *menu.Menu, emit Emitter) error {
	llmCtx, cancelLLM := context.WithCancel(ctx)
	llmDone := make(chan struct{})
	sess.Registry.Set(session.TaskLLM, cancelLLM, llmDone)
	defer func() {
		cancelLLM()
		close(llmDone)
		sess.Registry.Release(session.TaskLLM, llmDone)
	}()

	tokens, llmErrs := b.LLM.GenerateStream(llmCtx, transcript, m.Context())

	var finalText string
	ttsStarted := false
	var ttsWG sync.WaitGroup
	defer ttsWG.Wait()

	for tok := range tokens {
		finalText = tok.FullText

		if err := emit.EmitJSON(AITokenMessage{Type: "ai_token", Token: tok.Token, FullText: finalText}); err != nil {
			return err
		}

		if !ttsStarted {
			if idx := firstSentenceBoundary(finalText); idx >= 0 {
				// Only spawn once spoken_response has genuinely closed; a
				// boundary landing mid-string (e.g. `{"spoken_response":"Tamam.`)
				// would otherwise hand TTS a truncated fragment that diverges
				// from the eventual ai_complete.spoken_response (spec §8
				// round-trip property).
				if spoken, ok := extractSpokenResponse(finalText, idx); ok {
					ttsStarted = true
					ttsWG.Add(1)
					go func(text string) {
						defer ttsWG.Done()
						if err := b.Speak(ctx, sess, text, emit); err != nil && b.Logger != nil {
							b.Logger.Errorf("bridge: tts task failed: %v", err)
						}
					}(spoken)
				}
			}
		}
	}

	if err := drainErr(llmErrs); err != nil {
		ttsWG.Wait()
		if apperr.IsCancelled(err) {
			// Barge-in or a corrective restart already tore this turn down;
			// spec §8: no further ai_token/binary frame/ai_complete may
			// follow for the cancelled turn.
			return err
		}
		emit.EmitJSON(NewError(err.Error()))
		return err
	}
	if ctx.Err() != nil {
		ttsWG.Wait()
		return apperr.ErrCancelled
	}

	intent, err := llm.ParseIntent(finalText)
	if err != nil {
		spoken, _ := extractSpokenResponse(finalText, len(finalText))
		intent = &llm.Intent{SpokenResponse: spoken, Intent: llm.IntentOther}
	}

	if !ttsStarted {
		// No sentence boundary with an extractable spoken_response was ever
		// seen: fall back to a single TTS call over the final spoken_response
		// (spec §4.8 step 5).
		if err := b.Speak(ctx, sess, intent.SpokenResponse, emit); err != nil && b.Logger != nil {
			b.Logger.Errorf("bridge: fallback tts failed: %v", err)
		}
	} else {
		ttsWG.Wait()
	}

	if err := emit.EmitJSON(AICompleteMessage{
		Type: "ai_complete",
		Data: IntentData{
			SpokenResponse: intent.SpokenResponse,
			Intent:         string(intent.Intent),
			ProductName:    intent.ProductName,
			Quantity:       intent.Quantity,
		},
	}); err != nil {
		return err
	}

	if intent.Intent == llm.IntentRecommend {
		if product, ok := m.FindProduct(intent.ProductName); ok {
			if err := emit.EmitJSON(RecommendationMessage{Type: "recommendation", Product: product}); err != nil {
				return err
			}
		}
	}

	return b.handleIntent(ctx, qrToken, intent)
}

// Speak registers a TTS task under the registry's "tts" key (replacing any
// previous) and relays frames to the client, bracketed by tts_start /
// tts_complete (spec §4.8 step 4, §8 ordering invariant). Exported so the
// driver can reuse it for the channel-open greeting (spec §4.9).
func (b *Bridge) Speak(ctx context.Context, sess *session.Session, text string, emit Emitter) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sess.Transition(session.StreamingTTS)

	ttsCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	sess.Registry.Set(session.TaskTTS, cancel, done)
	defer func() {
		cancel()
		close(done)
		sess.Registry.Release(session.TaskTTS, done)
	}()

	if err := emit.EmitJSON(NewTTSStart()); err != nil {
		return err
	}

	frames, errs := b.TTS.SpeakStream(ttsCtx, text)
	for frame := range frames {
		if err := emit.EmitBinary(frame); err != nil {
			return err
		}
	}
	if err := emit.EmitJSON(NewTTSComplete()); err != nil {
		return err
	}
	return drainErr(errs)
}

// handleIntent hands the structured intent to the persistence collaborator
// when it indicates an order addition or check request (spec §4.8 step 6).
func (b *Bridge) handleIntent(ctx context.Context, qrToken string, intent *llm.Intent) error {
	switch intent.Intent {
	case llm.IntentAdd:
		if intent.ProductName == "" || intent.Quantity <= 0 {
			return nil
		}
		_, err := b.Collaborator.PlaceOrder(ctx, qrToken, []menu.OrderItem{
			{ProductName: intent.ProductName, Quantity: intent.Quantity},
		})
		return err
	case llm.IntentCheck:
		return b.Collaborator.RequestCheck(ctx, qrToken)
	default:
		return nil
	}
}

func drainErr(errs <-chan error) error {
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
