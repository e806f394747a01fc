// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package driver

import (
	"context"
	"strings"
	"time"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/bridge"
	"github.com/rapidaai/freya-voice-gateway/internal/session"
)

// earlyTriggerPollInterval is how often pollEarlyTrigger re-evaluates the
// silence-based half of spec §4.7 while no new audio frame is arriving to
// drive the check itself.
const earlyTriggerPollInterval = 100 * time.Millisecond

// tickPartialSTT implements the partial-STT scheduler (spec §4.6): if the
// predicate fires, submit the whole buffer to STT off the read-loop
// goroutine, merge the result into the transcript on return, and let a
// freshly-merged transcript immediately re-check the early-trigger
// predicate (spec §4.7).
func (d *Driver) tickPartialSTT(ctx context.Context, sess *session.Session, qrToken string, emit *wsEmitter) {
	now := time.Now()
	if !sess.CanProcessPartialSTT(now) {
		return
	}

	sess.MarkSTTCallStarted(now)
	seq := sess.NextSTTSeq()
	audioBytes := sess.Buffer.Snapshot()
	sess.Transition(session.ProcessingSTT)

	sttCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	done := make(chan struct{})
	sess.Registry.Set(session.TaskSTT, cancel, done)

	go d.runPartialSTT(ctx, sttCtx, cancel, done, sess, qrToken, seq, audioBytes, emit)
}

func (d *Driver) runPartialSTT(parentCtx, sttCtx context.Context, cancel context.CancelFunc, done chan struct{}, sess *session.Session, qrToken string, seq int64, audioBytes []byte, emit *wsEmitter) {
	result, err := d.STT.TranscribePartial(sttCtx, sess.STTGate, audioBytes, false)

	cancel()
	close(done)
	sess.Registry.Release(session.TaskSTT, done)
	sess.ReturnToListeningIfProcessing()

	if err != nil {
		if !apperr.IsCancelled(err) && d.Logger != nil {
			d.Logger.Errorf("driver: partial stt failed: %v", err)
		}
		return
	}
	if result == nil {
		// Tiny-input skip (spec §4.1 rule 2): nothing to merge or emit.
		return
	}

	// §5/§8: an older call returning after a newer one has already been
	// accepted must be dropped, never emitted.
	if !sess.TryAcceptSTTResult(seq) {
		return
	}

	merged := sess.MergeTranscript(result.Text, time.Now())
	if err := emit.EmitJSON(bridge.NewPartialTranscript(merged, result.Confidence)); err != nil {
		return
	}

	d.maybeTriggerLLM(parentCtx, sess, qrToken, emit, false)
}

// pollEarlyTrigger re-checks the silence half of the early-trigger
// predicate on a fixed tick, since nothing else drives it while the user
// has simply stopped sending audio (spec §4.7 "silent for ≥400ms").
func (d *Driver) pollEarlyTrigger(ctx context.Context, sess *session.Session, qrToken string, emit *wsEmitter) {
	ticker := time.NewTicker(earlyTriggerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.State() == session.Listening {
				d.maybeTriggerLLM(ctx, sess, qrToken, emit, false)
			}
		}
	}
}

// maybeTriggerLLM implements spec §4.7: when the predicate fires (or
// forceTrue overrides it on audio_end), capture the current transcript as
// the turn's committed text and hand it to the streaming bridge. A turn
// already in flight is never double-triggered (session.BeginTurn guards
// that). The buffer is snapshotted here, before any caller-side
// ClearProcessedAudio, so the opportunistic corrective-restart STT call
// (spec §4.7 paragraph 2) sees exactly the audio that produced the
// triggering transcript.
func (d *Driver) maybeTriggerLLM(ctx context.Context, sess *session.Session, qrToken string, emit *wsEmitter, forceTrue bool) {
	now := time.Now()
	if !sess.ShouldTriggerLLM(now, forceTrue) {
		return
	}
	epoch, ok := sess.BeginTurn()
	if !ok {
		return
	}

	transcript := strings.TrimSpace(sess.Transcript())
	if transcript == "" {
		sess.Transition(session.Listening)
		return
	}

	audioSnapshot := sess.Buffer.Snapshot()
	sess.ClearTranscript()

	_ = emit.EmitJSON(bridge.NewTranscript(transcript))
	_ = emit.EmitJSON(bridge.NewStatus(bridge.StatusThinking))

	go d.runTurn(ctx, sess, qrToken, transcript, emit, epoch)
	go d.correctiveRestart(ctx, sess, qrToken, transcript, audioSnapshot, emit, epoch)
}

// runTurn drives one full turn through the streaming bridge and returns the
// session to Idle once the LLM and TTS streams have both drained (spec §3
// "Streaming-TTS→Idle", §7 "the client always receives either tts_complete
// ... or error ... it is never left hanging"). epoch identifies the turn
// this call is closing out; EndTurn is a no-op if a corrective restart has
// since begun a newer one.
func (d *Driver) runTurn(ctx context.Context, sess *session.Session, qrToken, transcript string, emit *wsEmitter, epoch int64) {
	err := d.Bridge.Run(ctx, sess, qrToken, transcript, sess.Menu, emit)
	if err != nil && !apperr.IsCancelled(err) {
		if d.Logger != nil {
			d.Logger.Errorf("driver: turn failed: %v", err)
		}
		_ = emit.EmitJSON(bridge.NewError(err.Error()))
	}
	sess.ClearProcessedAudio(true)
	sess.EndTurn(epoch)
}

// correctiveRestart is the optional opportunistic path of spec §4.7: run
// one more STT call over the exact audio that produced the triggering
// transcript, and if it diverges (word-level Jaccard below
// CorrectiveJaccardThreshold) cancel the in-flight LLM/TTS tasks and
// restart the turn with the corrected text (spec §9 scenario S6). epoch is
// the turn this call may supersede — the gated final-STT call above queues
// behind the shared STTGate rate limiter, so it can easily return well
// after the original turn already finished naturally and emitted its one
// ai_complete; restarting unconditionally at that point would emit a
// second one (spec §8 S6: "exactly one ai_complete is eventually emitted
// for this turn"). Guard against that by requiring both that epoch is
// still the session's active turn and that its LLM task was still live to
// cancel.
func (d *Driver) correctiveRestart(ctx context.Context, sess *session.Session, qrToken, triggerText string, audioBytes []byte, emit *wsEmitter, epoch int64) {
	if len(audioBytes) == 0 {
		return
	}

	result, err := d.STT.TranscribePartial(ctx, sess.STTGate, audioBytes, true)
	if err != nil || result == nil {
		return
	}

	finalText := strings.TrimSpace(result.Text)
	if finalText == "" {
		return
	}
	if bridge.WordJaccard(triggerText, finalText) >= CorrectiveJaccardThreshold {
		return
	}

	if !sess.TurnLive(epoch) {
		return
	}
	if !sess.Registry.Cancel(session.TaskLLM) {
		// The original turn already completed and released its own task
		// before we got here; it has already emitted its ai_complete.
		return
	}
	sess.Registry.Cancel(session.TaskTTS)

	if d.Logger != nil {
		d.Logger.Infof("driver: corrective restart %q -> %q", triggerText, finalText)
	}

	newEpoch := sess.RestartTurn()
	go d.runTurn(ctx, sess, qrToken, finalText, emit, newEpoch)
}
