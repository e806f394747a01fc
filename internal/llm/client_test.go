// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestGenerateStreamEmitsTokensThenDone(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		// configuration, then user_message
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()

		send := func(typ wsMessageType, data interface{}) {
			raw, _ := json.Marshal(data)
			_ = conn.WriteMessage(websocket.TextMessage, mustMarshal(wsResponse{Type: typ, Data: raw}))
		}
		send(wsTypeToken, wsTokenData{Token: "Tamam", FullText: "Tamam"})
		send(wsTypeToken, wsTokenData{Token: " pizza", FullText: "Tamam pizza"})
		send(wsTypeDone, struct{}{})
	})

	c := NewClient(wsURL(srv.URL), "key", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tokens, errs := c.GenerateStream(ctx, "iki pizza", "menu")

	var got []Token
	for tok := range tokens {
		got = append(got, tok)
	}
	require.NoError(t, <-errs)
	require.Len(t, got, 2)
	assert.Equal(t, "Tamam pizza", got[1].FullText)
}

func TestGenerateStreamCancellationTearsDownPromptly(t *testing.T) {
	blocked := make(chan struct{})
	srv := newTestServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
		<-blocked
	})

	c := NewClient(wsURL(srv.URL), "key", nil)
	ctx, cancel := context.WithCancel(context.Background())

	tokens, errs := c.GenerateStream(ctx, "merhaba", "menu")

	start := time.Now()
	cancel()
	for range tokens {
	}
	err := <-errs
	close(blocked)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Error(t, err)
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
