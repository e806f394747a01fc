// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package driver is the duplex session driver (spec §4.9): the gin/
// gorilla-websocket endpoint at /voice/{qr_token} that multiplexes inbound
// audio frames and control messages with outbound transcript, token, and
// audio messages.
package driver

import (
	"sync"

	"github.com/gorilla/websocket"
)

// wsEmitter is the bridge.Emitter backed by one gorilla/websocket
// connection. All outbound writes go through writeMu so the bridge's
// concurrent token/frame production never races a control message written
// by the driver's own inbound-handling goroutine (spec §9 "the driver, not
// the task, writes to the duplex channel").
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newEmitter(conn *websocket.Conn) *wsEmitter {
	return &wsEmitter{conn: conn}
}

func (e *wsEmitter) EmitJSON(v interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(v)
}

func (e *wsEmitter) EmitBinary(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (e *wsEmitter) closeWithCode(code int, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		deadlineNow(),
	)
}
