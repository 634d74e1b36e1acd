package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"reign-dash/internal/protocol"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of the connection.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the state name shown on the dashboard.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// EventKind identifies a connection callback.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClose
	EventError
)

// Event is delivered on the Events channel in the order the connection
// produced it.
type Event struct {
	Kind EventKind
	URI  string
	Data string
	Err  error
}

// Options configures a Transport.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// Transport owns the single websocket connection to the backend.
type Transport struct {
	mu      sync.Mutex
	dialer  *websocket.Dialer
	opts    Options
	uri     string
	conn    *websocket.Conn
	state   State
	gen     uint64
	pending []string

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Transport for uri. Nothing is dialed until Open or Send.
func New(uri string, opts Options) *Transport {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		opts:   opts,
		uri:    uri,
		events: make(chan Event, opts.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Events returns the channel that carries open, message, close and error
// events for every connection made by this Transport.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// URI returns the address of the current or last connection.
func (t *Transport) URI() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uri
}

// Open starts connecting to uri. An empty uri reuses the previous one. A
// connection that is neither closed nor closing is closed first. Open does
// not wait for the dial; EventOpen or EventError reports the outcome.
func (t *Transport) Open(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openLocked(uri)
}

func (t *Transport) openLocked(uri string) {
	if uri != "" {
		t.uri = uri
	}
	// A closing connection may never see the peer's close reply.
	if t.conn != nil {
		logDebug("Closing existing connection before reopen", "uri", t.uri, "state", t.state.String())
		_ = t.conn.Close()
	}
	t.conn = nil
	t.gen++
	t.state = StateConnecting

	go t.dial(t.gen, t.uri)
}

func (t *Transport) dial(gen uint64, uri string) {
	conn, _, err := t.dialer.DialContext(t.ctx, uri, t.opts.Header)

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		t.state = StateClosed
		t.mu.Unlock()
		logDebug("Dial failed", "uri", uri, "error", err)
		t.emit(Event{Kind: EventError, URI: uri, Err: fmt.Errorf("dial %s: %w", uri, err)})
		t.emit(Event{Kind: EventClose, URI: uri})
		return
	}
	t.conn = conn
	t.state = StateOpen
	t.mu.Unlock()

	logDebug("Connection open", "uri", uri)
	t.emit(Event{Kind: EventOpen, URI: uri})
	go t.readLoop(gen, uri, conn)
}

func (t *Transport) readLoop(gen uint64, uri string, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			current := gen == t.gen
			if current {
				t.conn = nil
				t.state = StateClosed
			}
			t.mu.Unlock()
			if !current {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				t.emit(Event{Kind: EventError, URI: uri, Err: fmt.Errorf("read %s: %w", uri, err)})
			}
			t.emit(Event{Kind: EventClose, URI: uri})
			return
		}
		if msgType != websocket.TextMessage {
			t.emit(Event{Kind: EventError, URI: uri, Err: protocol.NewParseError(string(data), errors.New("non-text frame"))})
			continue
		}
		t.emit(Event{Kind: EventMessage, URI: uri, Data: string(data)})
	}
}

func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.ctx.Done():
	}
}

// Send writes text to the backend. If there is no connection, text is
// queued and a connection is opened; queued texts are handed back by
// TakePending once the connection is open. Sending while the connection is
// closing fails with protocol.ErrTransportUnavailable.
func (t *Transport) Send(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateClosed:
		t.pending = append(t.pending, text)
		t.openLocked("")
		return nil
	case StateConnecting:
		t.pending = append(t.pending, text)
		return nil
	case StateClosing:
		return fmt.Errorf("send to %s: %w", t.uri, protocol.ErrTransportUnavailable)
	}

	if len(t.pending) > 0 {
		t.pending = append(t.pending, text)
		return nil
	}
	return t.writeLocked(text)
}

func (t *Transport) writeLocked(text string) error {
	if t.opts.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("send to %s: %v: %w", t.uri, err, protocol.ErrTransportUnavailable)
	}
	return nil
}

// TakePending removes and returns the texts queued while the connection was
// not open, in send order.
func (t *Transport) TakePending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.pending
	t.pending = nil
	return out
}

func (t *Transport) pendingLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close performs a normal websocket close. EventClose follows once the
// backend acknowledges or the connection drops.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.state == StateClosed || t.state == StateClosing {
		return nil
	}
	t.state = StateClosing
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := t.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		_ = t.conn.Close()
		return fmt.Errorf("close %s: %w", t.uri, err)
	}
	return nil
}

// Shutdown closes the connection and stops its goroutines. Events of the
// closed connection are discarded.
func (t *Transport) Shutdown() {
	t.mu.Lock()
	t.gen++
	conn := t.conn
	t.conn = nil
	t.state = StateClosed
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

func logDebug(msg string, attrs ...any) {
	slog.Debug(msg, append([]any{"component", "Transport"}, attrs...)...)
}
