package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Kind discriminates inbound messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindResponse
	KindEvent
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Response status codes sent by the backend.
const (
	StatusOK              = 0
	StatusErrorUnexpected = -1
	StatusErrorTimedOut   = -2
)

// Event types pushed by the backend.
const (
	EventMetrics  = "metrics"
	EventPresence = "presence"
)

// Response correlates to the request that carried the same id.
type Response struct {
	ID      int             `json:"id"`
	Status  int             `json:"status"`
	Comment string          `json:"comment,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// OK reports whether the backend handled the request.
func (r *Response) OK() bool {
	return r.Status == StatusOK
}

// Event is an uncorrelated push for an observed entity.
type Event struct {
	Event     string    `json:"event"`
	ClusterID string    `json:"clusterId"`
	ServiceID string    `json:"serviceId"`
	NodeID    string    `json:"nodeId,omitempty"`
	Body      EventBody `json:"body"`
}

// EventBody wraps the updated value of an observed entity.
type EventBody struct {
	Updated json.RawMessage `json:"updated"`
}

// Message is the decoded form of one inbound frame. Exactly one of Response
// and Event is set, unless Kind is KindUnknown.
type Message struct {
	Kind     Kind
	Response *Response
	Event    *Event
	Raw      string
}

// envelope is the superset of fields used to discriminate inbound frames.
type envelope struct {
	Kind   string          `json:"kind"`
	ID     *int            `json:"id"`
	Status *int            `json:"status"`
	Event  string          `json:"event"`
	Body   json.RawMessage `json:"body"`
}

// Classifier decides whether an inbound frame is a response or an event.
type Classifier interface {
	Classify(raw string) (Kind, error)
}

// SubstringClassifier is the compatibility classifier: any text containing
// "status" is a response, anything else is an event. A status-like string
// inside an event payload is misclassified; use EnvelopeClassifier where the
// backend allows it.
type SubstringClassifier struct{}

// Classify implements Classifier.
func (SubstringClassifier) Classify(raw string) (Kind, error) {
	if strings.Contains(raw, "status") {
		return KindResponse, nil
	}
	return KindEvent, nil
}

// EnvelopeClassifier decodes the envelope and classifies by an explicit
// "kind" discriminator when present, and by structure otherwise.
type EnvelopeClassifier struct{}

// Classify implements Classifier.
func (EnvelopeClassifier) Classify(raw string) (Kind, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return KindUnknown, NewParseError(raw, err)
	}
	switch env.Kind {
	case "response":
		return KindResponse, nil
	case "event":
		return KindEvent, nil
	case "":
	default:
		return KindUnknown, nil
	}
	if env.Event != "" {
		return KindEvent, nil
	}
	if env.ID != nil {
		return KindResponse, nil
	}
	return KindUnknown, nil
}

// NewClassifier returns the classifier registered under name. Unknown names
// fall back to the envelope classifier.
func NewClassifier(name string) Classifier {
	if strings.EqualFold(name, "substring") {
		return SubstringClassifier{}
	}
	return EnvelopeClassifier{}
}

// Decode classifies raw with c and decodes it into the matching variant.
func Decode(raw string, c Classifier) (*Message, error) {
	kind, err := c.Classify(raw)
	if err != nil {
		return nil, err
	}

	msg := &Message{Kind: kind, Raw: raw}
	switch kind {
	case KindResponse:
		var resp Response
		if err := strictUnmarshal(raw, &resp); err != nil {
			return nil, NewParseError(raw, err)
		}
		msg.Response = &resp
	case KindEvent:
		var ev Event
		if err := strictUnmarshal(raw, &ev); err != nil {
			return nil, NewParseError(raw, err)
		}
		msg.Event = &ev
	default:
		if !json.Valid([]byte(raw)) {
			return nil, NewParseError(raw, errors.New("invalid JSON"))
		}
	}
	return msg, nil
}

// strictUnmarshal decodes a single JSON object, rejecting trailing data.
func strictUnmarshal(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}
