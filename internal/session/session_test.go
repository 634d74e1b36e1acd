package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reign-dash/internal/protocol"
	"reign-dash/internal/state"
	"reign-dash/internal/subscription"
	"reign-dash/internal/transport"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ subscription.Navigator = (*Session)(nil)
var _ View = (*state.AppState)(nil)

// fakeBackend answers known request texts with canned frames and records
// everything it receives.
type fakeBackend struct {
	srv      *httptest.Server
	received chan string
	replies  map[string]string
}

func newFakeBackend(t *testing.T, replies map[string]string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{received: make(chan string, 256), replies: replies}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
			text := string(data)
			b.received <- text
			if reply, ok := b.replies[text]; ok {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) uri() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBackend) expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-b.received:
			require.Equal(t, w, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func nextEvent(t *testing.T, s *Session) transport.Event {
	t.Helper()
	select {
	case ev := <-s.tr.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return transport.Event{}
	}
}

func TestQueuedNavigationFollowsDefaults(t *testing.T) {
	b := newFakeBackend(t, nil)
	view := state.New(50, "")
	s := New(view, Options{URI: b.uri()})
	t.Cleanup(s.tr.Shutdown)

	// Selecting before the connection exists queues the requests and dials.
	s.handleIntent(intent{kind: intentCluster, arg: "prod"})
	ev := nextEvent(t, s)
	require.Equal(t, transport.EventOpen, ev.Kind)
	s.handleEvent(ev)

	b.expect(t,
		"presence:/#observe > 5",
		"presence:/ > 6",
		"presence:/prod > 1",
		"presence:/prod#observe > 1",
	)
	assert.Empty(t, s.tr.TakePending())
}

func TestDeepLinkRestoredOverConnection(t *testing.T) {
	b := newFakeBackend(t, map[string]string{
		"presence:/ > 6":           `{"id":6,"status":0,"body":["dev","prod"]}`,
		"presence:/prod > 1":       `{"id":1,"status":0,"body":["api","web"]}`,
		"presence:/prod/api > 4":   `{"id":4,"status":0,"body":{"clusterId":"prod","serviceId":"api","nodeIdList":[{"h":"n2","ip":"10.0.0.2","mp":1},{"h":"n1","ip":"10.0.0.1","mp":2}]}}`,
		"metrics:/prod/api > 2":    `{"id":2,"status":0,"body":{"clusterId":"prod","serviceId":"api","counters":{"requests":{"count":41.7}}}}`,
		"presence:/prod/web > 3":   `{"id":3,"status":0,"body":{"clusterId":"prod","serviceId":"web","nodeIdList":[{"h":"w1","ip":"10.0.1.1","mp":1}]}}`,
		"metrics:/prod/web > 2":    `{"id":2,"status":-1,"comment":"unexpected"}`,
		"coord:/prod/leader > 100": `{"id":100,"status":0,"body":["b","a"]}`,
	})
	view := state.New(50, "")
	view.SetFragment("#/prod/api/")
	s := New(view, Options{URI: b.uri(), Classifier: protocol.EnvelopeClassifier{}})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})

	require.Eventually(t, func() bool {
		snap := view.Snapshot()
		return snap.Metrics != nil && len(snap.Nodes) == 2
	}, 5*time.Second, 10*time.Millisecond)

	snap := view.Snapshot()
	assert.Equal(t, "open", snap.Connection.Status)
	assert.Equal(t, []string{"dev", "prod"}, snap.Clusters)
	assert.Equal(t, subscription.Selection{Cluster: "prod", Service: "api"}, snap.Selection)
	assert.Equal(t, "prod/api", snap.Fragment)
	assert.Equal(t, "n1", snap.Nodes[0].Host)
	assert.Equal(t, "--", snap.Nodes[0].PID)
	require.Len(t, snap.Metrics.Counters, 1)
	assert.Equal(t, []int64{42}, snap.Metrics.Counters[0].Values)
	assert.Contains(t, snap.Subscriptions, "presence:/prod/api")
	assert.Contains(t, snap.Subscriptions, "metrics:/prod/api")

	require.Eventually(t, func() bool {
		for _, svc := range view.Snapshot().Services {
			if svc.ID == "web" && svc.NodeCount == 1 {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	s.SelectCoordEntity("leader")
	require.Eventually(t, func() bool {
		return len(view.Snapshot().Locks) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, view.Snapshot().Locks)
	assert.Equal(t, "prod/leader", view.Fragment())

	s.SelectService("web")
	require.Eventually(t, func() bool {
		for _, l := range view.Snapshot().Logs {
			if l.Label == state.LabelError && strings.Contains(l.Message, "unexpected") {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDialFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	uri := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	view := state.New(50, "")
	s := New(view, Options{URI: uri})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})

	require.Eventually(t, func() bool {
		logs := view.Snapshot().Logs
		return len(logs) >= 2 && logs[len(logs)-1].Message == "Web Socket closed: "+uri
	}, 5*time.Second, 10*time.Millisecond)

	snap := view.Snapshot()
	assert.Equal(t, "closed", snap.Connection.Status)
	var found bool
	for _, l := range snap.Logs {
		if l.Label == state.LabelError && strings.HasPrefix(l.Message, "Web Socket connection error: "+uri) {
			found = true
		}
	}
	assert.True(t, found, "connection error should be logged")
}

func TestReconnectSwitchesBackend(t *testing.T) {
	first := newFakeBackend(t, nil)
	second := newFakeBackend(t, nil)

	view := state.New(50, "")
	s := New(view, Options{URI: first.uri()})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})

	first.expect(t, "presence:/#observe > 5", "presence:/ > 6")

	s.Reconnect(second.uri())
	second.expect(t, "presence:/#observe > 5", "presence:/ > 6")

	require.Eventually(t, func() bool {
		return view.Snapshot().Connection.URI == second.uri()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIntentAfterStopDoesNotBlock(t *testing.T) {
	view := state.New(10, "")
	s := New(view, Options{URI: "ws://127.0.0.1:1/ws", IntentBuffer: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))

	done := make(chan struct{})
	go func() {
		s.SelectCluster("a")
		s.SelectCluster("b")
		s.SelectCluster("c")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("intents blocked after the session stopped")
	}
}

func TestConnectionErrorUnwraps(t *testing.T) {
	inner := errors.New("refused")
	err := &ConnectionError{URI: "ws://x", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "Web Socket connection error: ws://x: refused", err.Error())
}
