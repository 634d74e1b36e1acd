package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"reign-dash/internal/correlator"
	"reign-dash/internal/protocol"
	"reign-dash/internal/transport"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
}

func TestFormatLogMessage(t *testing.T) {
	msg := formatLogMessage("INFO", "Backend configured", "component", "Main", "uri", "ws://x")
	assert.True(t, strings.HasPrefix(msg, `{"time":"`))
	assert.Contains(t, msg, `"level":"INFO","msg":"Backend configured","component":"Main","uri":"ws://x"}`)
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	t.Setenv("REIGN_BACKEND_URI", "ws://env:1/ws")
	t.Setenv("REIGN_DASH_CONFIG", "")

	cfg, err := loadConfig(flags{backend: "ws://flag:2/ws", fragment: "prod/api"})
	require.NoError(t, err)
	assert.Equal(t, "ws://flag:2/ws", cfg.BackendURI)
	assert.Equal(t, "prod/api", cfg.Fragment)

	_, err = loadConfig(flags{classifier: "guess"})
	assert.Error(t, err)
}

// echoBackend answers every request with an OK response echoing its id.
func echoBackend(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_, id, err := protocol.SplitRequest(string(data))
			if err != nil {
				return
			}
			status := protocol.StatusOK
			if strings.HasPrefix(string(data), "coord:") {
				status = protocol.StatusErrorTimedOut
			}
			reply := `{"id":` + strconv.Itoa(id) + `,"status":` + strconv.Itoa(status) + `,"body":["prod"]}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSendAndPrint(t *testing.T) {
	uri := echoBackend(t)
	tr := transport.New(uri, transport.Options{})
	defer tr.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, sendAndPrint(ctx, tr, protocol.EnvelopeClassifier{}, "presence:/ > 6", false, &out))
	assert.Equal(t, `{"id":6,"status":0,"body":["prod"]}`+"\n", out.String())
}

func TestSendAndPrintStatusError(t *testing.T) {
	uri := echoBackend(t)
	tr := transport.New(uri, transport.Options{})
	defer tr.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := sendAndPrint(ctx, tr, protocol.EnvelopeClassifier{}, "coord:/prod/leader", false, &out)
	var se *correlator.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.ID, "the first implicit id is 0")
	assert.Equal(t, protocol.StatusErrorTimedOut, se.Status)
}
