// Package session owns one backend connection and the single goroutine that
// reacts to it. Transport events and navigation intents are handled one at a
// time, in arrival order.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"reign-dash/internal/correlator"
	"reign-dash/internal/metrics"
	"reign-dash/internal/protocol"
	"reign-dash/internal/subscription"
	"reign-dash/internal/transport"
)

// View is what the session renders into: the subscription sink and location,
// plus connection status and the error and control log.
type View interface {
	subscription.Sink
	subscription.Location
	correlator.Reporter
	ReportControl(message string)
	SetConnection(status, uri string)
	SetSubscriptions(addrs []string)
}

// Options configures a Session.
type Options struct {
	URI        string
	Classifier protocol.Classifier
	Transport  transport.Options
	// IntentBuffer is the number of navigation intents that can wait for the
	// event loop.
	IntentBuffer int
}

type intentKind int

const (
	intentCluster intentKind = iota
	intentService
	intentCoord
	intentNavigate
	intentReconnect
)

type intent struct {
	kind intentKind
	arg  string
}

// ConnectionError reports a failed or broken connection.
type ConnectionError struct {
	URI string
	Err error
}

// Error returns a human-readable error message.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("Web Socket connection error: %s: %v", e.URI, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Session is the explicit context of one dashboard: the connection, the id
// sequence, the correlator and the subscription manager.
type Session struct {
	tr   *transport.Transport
	seq  *protocol.Sequence
	corr *correlator.Correlator
	mgr  *subscription.Manager
	view View

	intents chan intent
	done    chan struct{}

	reported transport.State
	subs     []string
}

// New wires a Session. Nothing is dialed until Run.
func New(view View, opts Options) *Session {
	if opts.IntentBuffer <= 0 {
		opts.IntentBuffer = 64
	}
	tr := transport.New(opts.URI, opts.Transport)
	seq := &protocol.Sequence{}
	corr := correlator.New(tr, seq, opts.Classifier, view)

	return &Session{
		tr:       tr,
		seq:      seq,
		corr:     corr,
		mgr:      subscription.New(corr, view, view),
		view:     view,
		intents:  make(chan intent, opts.IntentBuffer),
		done:     make(chan struct{}),
		reported: transport.StateClosed,
	}
}

// Run opens the connection and processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.tr.Shutdown()

	logInfo("Session started", "uri", s.tr.URI())
	s.tr.Open("")
	s.syncView()

	for {
		select {
		case <-ctx.Done():
			logInfo("Session stopped", "uri", s.tr.URI())
			return nil
		case ev := <-s.tr.Events():
			s.handleEvent(ev)
		case in := <-s.intents:
			s.handleIntent(in)
		}
		s.syncView()
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpen:
		logInfo("Connected", "uri", ev.URI)
		s.view.ReportControl("Web Socket opened: " + ev.URI)
		// Requests queued while connecting go out after the defaults.
		deferred := s.tr.TakePending()
		s.mgr.Connected()
		for _, text := range deferred {
			if err := s.tr.Send(text); err != nil {
				s.view.ReportError(err)
			}
		}

	case transport.EventMessage:
		s.corr.Handle(ev.Data, s.mgr)

	case transport.EventClose:
		logInfo("Disconnected", "uri", ev.URI)
		s.view.ReportControl("Web Socket closed: " + ev.URI)
		s.mgr.Disconnected()

	case transport.EventError:
		if protocol.IsParseFailure(ev.Err) {
			metrics.RecordDispatchError(metrics.ErrorParse)
			s.view.ReportError(ev.Err)
			return
		}
		logError("Connection error", "uri", ev.URI, "error", ev.Err)
		metrics.RecordDispatchError(metrics.ErrorTransport)
		s.view.ReportError(&ConnectionError{URI: ev.URI, Err: ev.Err})
	}
}

func (s *Session) handleIntent(in intent) {
	switch in.kind {
	case intentCluster:
		s.mgr.SelectCluster(in.arg)
	case intentService:
		s.mgr.SelectService(in.arg)
	case intentCoord:
		s.mgr.SelectCoordEntity(in.arg)
	case intentNavigate:
		s.mgr.Navigate(in.arg)
	case intentReconnect:
		logInfo("Reconnecting", "uri", in.arg)
		s.tr.Open(in.arg)
	}
}

// syncView pushes connection state and subscription changes to the view and
// metrics.
func (s *Session) syncView() {
	active := s.mgr.Active()
	subs := make([]string, 0, len(active))
	for _, a := range active {
		subs = append(subs, a.String())
	}
	if !slices.Equal(subs, s.subs) {
		s.subs = subs
		s.view.SetSubscriptions(subs)
	}

	st := s.tr.State()
	if st == s.reported {
		return
	}
	s.reported = st
	s.view.SetConnection(st.String(), s.tr.URI())
	metrics.SetConnectionState(st.String())
}

func (s *Session) enqueue(in intent) {
	select {
	case s.intents <- in:
	case <-s.done:
		logDebug("Intent dropped, session stopped", "kind", in.kind, "arg", in.arg)
	}
}

// SelectCluster implements subscription.Navigator.
func (s *Session) SelectCluster(clusterID string) {
	s.enqueue(intent{kind: intentCluster, arg: clusterID})
}

// SelectService implements subscription.Navigator.
func (s *Session) SelectService(serviceID string) {
	s.enqueue(intent{kind: intentService, arg: serviceID})
}

// SelectCoordEntity implements subscription.Navigator.
func (s *Session) SelectCoordEntity(entity string) {
	s.enqueue(intent{kind: intentCoord, arg: entity})
}

// Navigate follows a deep-link fragment such as "prod/api".
func (s *Session) Navigate(fragment string) {
	s.enqueue(intent{kind: intentNavigate, arg: fragment})
}

// Reconnect closes the current connection and dials uri, or the previous
// URI when uri is empty.
func (s *Session) Reconnect(uri string) {
	s.enqueue(intent{kind: intentReconnect, arg: uri})
}

func logDebug(msg string, attrs ...any) {
	slog.Debug(msg, append([]any{"component", "Session"}, attrs...)...)
}

func logInfo(msg string, attrs ...any) {
	slog.Info(msg, append([]any{"component", "Session"}, attrs...)...)
}

func logError(msg string, attrs ...any) {
	slog.Error(msg, append([]any{"component", "Session"}, attrs...)...)
}
