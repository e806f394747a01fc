// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package driver

import (
	"encoding/json"
	"time"
)

// inboundMessage is the envelope for the four inbound control message types
// (spec §6.1): audio_end, interrupt, ping, playback_complete. None of them
// carry a payload beyond the type discriminator.
type inboundMessage struct {
	Type string `json:"type"`
}

const (
	inAudioEnd         = "audio_end"
	inInterrupt        = "interrupt"
	inPing             = "ping"
	inPlaybackComplete = "playback_complete"
)

func parseInbound(raw []byte) (*inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func deadlineNow() time.Time {
	return time.Now().Add(2 * time.Second)
}
