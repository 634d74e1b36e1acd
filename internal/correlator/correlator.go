// Package correlator tags outbound requests with ids and routes inbound
// messages back to a Handler: responses by id, pushed events by event type.
package correlator

import (
	"errors"
	"fmt"
	"log/slog"

	"reign-dash/internal/metrics"
	"reign-dash/internal/protocol"
)

// Sender is the outbound side of the transport.
type Sender interface {
	Send(text string) error
}

// Reporter receives non-fatal errors for display.
type Reporter interface {
	ReportError(err error)
}

// Handler receives decoded, routed messages. Responses and events for the
// same kind of data arrive through the same method.
type Handler interface {
	ClusterList(ids []string)
	ServiceList(ids []string)
	NodeCount(clusterID, serviceID string, nodes []protocol.Node)
	NodeList(clusterID, serviceID string, nodes []protocol.Node)
	Metrics(clusterID, serviceID string, snap *protocol.MetricsSnapshot)
	LockList(names []string)
}

// Correlator builds outbound requests and dispatches inbound messages.
type Correlator struct {
	out        Sender
	seq        *protocol.Sequence
	classifier protocol.Classifier
	reporter   Reporter
}

// New creates a Correlator. seq is the session's fallback id sequence.
func New(out Sender, seq *protocol.Sequence, classifier protocol.Classifier, reporter Reporter) *Correlator {
	if classifier == nil {
		classifier = protocol.EnvelopeClassifier{}
	}
	return &Correlator{
		out:        out,
		seq:        seq,
		classifier: classifier,
		reporter:   reporter,
	}
}

// BuildRequest resolves the id for text, drawing from the session sequence
// when text carries none.
func (c *Correlator) BuildRequest(text string) (protocol.Request, error) {
	return protocol.BuildRequest(text, c.seq)
}

// SendText builds a request from free-form text and sends it. It returns the
// resolved id.
func (c *Correlator) SendText(text string) (int, error) {
	req, err := c.BuildRequest(text)
	if err != nil {
		return 0, err
	}
	if err := c.send(req.Text); err != nil {
		return req.ID, err
	}
	if addr, _, err := protocol.SplitRequest(req.Text); err == nil {
		metrics.RecordRequest(string(addr.Namespace), string(addr.Modifier))
	}
	return req.ID, nil
}

// Request sends addr tagged with id. Transport failures are reported and
// returned; callers may ignore the error.
func (c *Correlator) Request(addr protocol.Address, id int) error {
	text := protocol.FormatRequest(addr, id)
	if err := c.send(text); err != nil {
		return err
	}
	metrics.RecordRequest(string(addr.Namespace), string(addr.Modifier))
	return nil
}

func (c *Correlator) send(text string) error {
	logDebug("Sending request", "request", text)
	if err := c.out.Send(text); err != nil {
		c.report(metrics.ErrorTransport, err)
		return err
	}
	return nil
}

// Handle classifies one inbound frame and dispatches it to h. Errors are
// reported, never returned: the next frame is processed regardless.
func (c *Correlator) Handle(raw string, h Handler) {
	msg, err := protocol.Decode(raw, c.classifier)
	if err != nil {
		metrics.RecordMessage(protocol.KindUnknown.String())
		c.report(metrics.ErrorParse, err)
		return
	}
	metrics.RecordMessage(msg.Kind.String())

	switch msg.Kind {
	case protocol.KindResponse:
		err = c.DispatchResponse(msg.Response, h)
	case protocol.KindEvent:
		err = c.DispatchEvent(msg.Event, h)
	default:
		err = &protocol.UnroutableError{ID: -1}
	}
	if err != nil {
		c.report(errorType(err), err)
	}
}

// DispatchResponse routes a response by its id.
func (c *Correlator) DispatchResponse(resp *protocol.Response, h Handler) error {
	if !resp.OK() {
		return &StatusError{ID: resp.ID, Status: resp.Status, Comment: resp.Comment}
	}
	if !protocol.KnownID(resp.ID) {
		return &protocol.UnroutableError{ID: resp.ID}
	}
	if len(resp.Body) == 0 {
		logDebug("Response without body", "id", resp.ID)
		return nil
	}

	switch resp.ID {
	case protocol.IDServiceList:
		ids, err := protocol.DecodeStringList(resp.Body)
		if err != nil {
			return protocol.NewParseError(string(resp.Body), err)
		}
		h.ServiceList(ids)

	case protocol.IDMetrics:
		snap, err := protocol.DecodeMetrics(resp.Body)
		if err != nil {
			return protocol.NewParseError(string(resp.Body), err)
		}
		h.Metrics(snap.ClusterID, snap.ServiceID, snap)

	case protocol.IDNodeCount:
		body, err := protocol.DecodePresence(resp.Body)
		if err != nil {
			return protocol.NewParseError(string(resp.Body), err)
		}
		h.NodeCount(body.ClusterID, body.ServiceID, body.NodeIDList)

	case protocol.IDNodeList:
		body, err := protocol.DecodePresence(resp.Body)
		if err != nil {
			return protocol.NewParseError(string(resp.Body), err)
		}
		h.NodeList(body.ClusterID, body.ServiceID, body.NodeIDList)

	case protocol.IDObserveAck:
		logDebug("Observe acknowledged")

	case protocol.IDClusterList:
		ids, err := protocol.DecodeStringList(resp.Body)
		if err != nil {
			return protocol.NewParseError(string(resp.Body), err)
		}
		h.ClusterList(ids)

	case protocol.IDCoordLocks:
		names, err := protocol.DecodeStringList(resp.Body)
		if err != nil {
			return protocol.NewParseError(string(resp.Body), err)
		}
		h.LockList(names)

	default:
		return &protocol.UnroutableError{ID: resp.ID}
	}
	return nil
}

// DispatchEvent routes a pushed event by its event type.
func (c *Correlator) DispatchEvent(ev *protocol.Event, h Handler) error {
	switch ev.Event {
	case protocol.EventMetrics:
		snap, err := protocol.DecodeMetrics(ev.Body.Updated)
		if err != nil {
			return protocol.NewParseError(string(ev.Body.Updated), err)
		}
		h.Metrics(ev.ClusterID, ev.ServiceID, snap)

	case protocol.EventPresence:
		update, err := protocol.DecodePresenceUpdate(ev.Body.Updated)
		if err != nil {
			return protocol.NewParseError(string(ev.Body.Updated), err)
		}
		h.NodeList(ev.ClusterID, ev.ServiceID, update.NodeIDList)

	default:
		event := ev.Event
		if event == "" {
			event = "(none)"
		}
		return &protocol.UnroutableError{Event: event}
	}
	return nil
}

func (c *Correlator) report(errType string, err error) {
	metrics.RecordDispatchError(errType)
	logWarn("Message not dispatched", "type", errType, "error", err)
	if c.reporter != nil {
		c.reporter.ReportError(err)
	}
}

// StatusError is a response the backend marked as failed.
type StatusError struct {
	ID      int
	Status  int
	Comment string
}

// Error returns a human-readable error message.
func (e *StatusError) Error() string {
	if e.Comment != "" {
		return fmt.Sprintf("request %d failed with status %d: %s", e.ID, e.Status, e.Comment)
	}
	return fmt.Sprintf("request %d failed with status %d", e.ID, e.Status)
}

func errorType(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return metrics.ErrorStatus
	case protocol.IsParseFailure(err):
		return metrics.ErrorParse
	case protocol.IsUnroutable(err):
		return metrics.ErrorUnroutable
	default:
		return metrics.ErrorTransport
	}
}

func logDebug(msg string, attrs ...any) {
	slog.Debug(msg, append([]any{"component", "Correlator"}, attrs...)...)
}

func logWarn(msg string, attrs ...any) {
	slog.Warn(msg, append([]any{"component", "Correlator"}, attrs...)...)
}
