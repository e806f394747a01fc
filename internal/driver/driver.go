// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package driver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/freya-voice-gateway/internal/apperr"
	"github.com/rapidaai/freya-voice-gateway/internal/bridge"
	"github.com/rapidaai/freya-voice-gateway/internal/commons"
	"github.com/rapidaai/freya-voice-gateway/internal/menu"
	"github.com/rapidaai/freya-voice-gateway/internal/session"
	"github.com/rapidaai/freya-voice-gateway/internal/stt"
)

// Close codes (spec §6.1).
const (
	CloseUnknownTable = 4004
	CloseNormal       = 1000
	CloseInternal     = 1011
)

// GreetingText is the short spoken welcome emitted on channel-open
// (spec §4.9). It is deliberately static and Turkish to match the STT/LLM/
// TTS language fixed throughout §4.
const GreetingText = "Hoş geldiniz, sipariş vermek için dilediğiniz zaman konuşabilirsiniz."

// CorrectiveJaccardThreshold is spec §4.7's divergence bound: below this, a
// final-STT result that disagrees with the partial transcript used to
// trigger LLM generation forces a restart.
const CorrectiveJaccardThreshold = 0.7

// Driver is the duplex session driver. One instance is shared across all
// channels; it holds no per-channel state itself.
type Driver struct {
	STT                  stt.Client
	Bridge               *bridge.Bridge
	Collaborator         menu.Collaborator
	Logger               commons.Logger
	SessionConfig        session.Config
	RegistryDrainTimeout time.Duration

	upgrader websocket.Upgrader
}

// New builds a Driver.
func New(sttClient stt.Client, b *bridge.Bridge, collaborator menu.Collaborator, logger commons.Logger, cfg session.Config, drainTimeout time.Duration) *Driver {
	return &Driver{
		STT:                  sttClient,
		Bridge:               b,
		Collaborator:         collaborator,
		Logger:               logger,
		SessionConfig:        cfg,
		RegistryDrainTimeout: drainTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleVoice is the gin handler for GET /voice/:qrToken (spec §6.1).
func (d *Driver) HandleVoice(c *gin.Context) {
	qrToken := c.Param("qrToken")

	conn, err := d.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Errorf("driver: websocket upgrade failed: %v", err)
		}
		return
	}
	defer conn.Close()

	emit := newEmitter(conn)

	m, err := d.Collaborator.GetMenu(c.Request.Context(), qrToken)
	if err != nil {
		if apperr.KindOf(err) == apperr.TableUnknown {
			_ = emit.closeWithCode(CloseUnknownTable, "unknown table")
			return
		}
		_ = emit.EmitJSON(bridge.NewError("failed to load menu"))
		_ = emit.closeWithCode(CloseInternal, "menu load failed")
		return
	}

	sess := session.New(qrToken, d.SessionConfig)
	sess.Menu = m

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := emit.EmitJSON(bridge.NewGreeting(GreetingText)); err != nil {
		return
	}
	// Speak the greeting off the handler goroutine so its TTS stream doesn't
	// hold up entering the inbound read loop below: a client that starts
	// talking over the greeting must still have its audio read and buffered
	// promptly (spec §4.9 "Inbound demultiplexer" runs independently of the
	// greeting). A frame arriving mid-greeting is appended to the buffer and
	// drives the partial-STT scheduler as usual; AddAudioChunk moves only an
	// Idle session to Listening, so it leaves the greeting's StreamingTTS
	// state in place.
	go func() {
		if err := d.Bridge.Speak(ctx, sess, GreetingText, emit); err != nil && d.Logger != nil {
			d.Logger.Errorf("driver: greeting tts failed: %v", err)
		}
		// Speak leaves the session in StreamingTTS; the greeting precedes
		// the session's first turn, so settle back to Idle once it
		// completes (spec §4.9 "Enter Idle"), unless the client has since
		// moved the session on its own (first audio already arrived).
		sess.ReturnToIdleIfStreamingTTS()
	}()

	go d.pollEarlyTrigger(ctx, sess, qrToken, emit)

	d.serve(ctx, sess, qrToken, conn, emit)

	d.cleanup(sess)
}

// serve runs the inbound demultiplexer loop until the connection closes
// (spec §4.9 "Inbound demultiplexer").
func (d *Driver) serve(ctx context.Context, sess *session.Session, qrToken string, conn *websocket.Conn, emit *wsEmitter) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			d.handleBinaryFrame(ctx, sess, qrToken, data, emit)
		case websocket.TextMessage:
			msg, err := parseInbound(data)
			if err != nil {
				if d.Logger != nil {
					d.Logger.Debugf("driver: dropping unparseable control message: %v", err)
				}
				continue
			}
			d.handleControlMessage(ctx, sess, qrToken, msg.Type, emit)
		}
	}
}

func (d *Driver) handleBinaryFrame(ctx context.Context, sess *session.Session, qrToken string, data []byte, emit *wsEmitter) {
	now := time.Now()
	sess.AddAudioChunk(data, now)
	d.tickPartialSTT(ctx, sess, qrToken, emit)
}

func (d *Driver) handleControlMessage(ctx context.Context, sess *session.Session, qrToken string, msgType string, emit *wsEmitter) {
	switch msgType {
	case inAudioEnd:
		d.maybeTriggerLLM(ctx, sess, qrToken, emit, true)
		sess.ClearProcessedAudio(true)
	case inInterrupt:
		sess.CancelActiveStreams()
		sess.ClearProcessedAudio(false)
		sess.ClearTranscript()
		_ = emit.EmitJSON(bridge.NewInterruptAck())
	case inPing:
		_ = emit.EmitJSON(bridge.NewPong())
	case inPlaybackComplete:
		// Bookkeeping only; no state transition required beyond normal
		// drain (spec §4.9).
	default:
		if d.Logger != nil {
			d.Logger.Debugf("driver: ignoring unknown control message type %q", msgType)
		}
	}
}

// cleanup cancels every registry task and waits up to RegistryDrainTimeout
// for them to settle (spec §4.9 "Cleanup", §5 "≈2s").
func (d *Driver) cleanup(sess *session.Session) {
	drainTimeout := d.RegistryDrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 2 * time.Second
	}
	doneCh := make(chan struct{})
	go func() {
		sess.Registry.CancelAll()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(drainTimeout):
		if d.Logger != nil {
			d.Logger.Warnw("driver: registry drain timed out, abandoning tasks", "session", sess.ID)
		}
	}
}
