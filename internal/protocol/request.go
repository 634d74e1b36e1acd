package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// IDDelimiter separates the address from the request id on the wire.
const IDDelimiter = ">"

// Well-known request ids. The set is closed: responses carrying any other id
// are unroutable.
const (
	IDServiceList = 1
	IDMetrics     = 2
	IDNodeCount   = 3
	IDNodeList    = 4
	IDObserveAck  = 5
	IDClusterList = 6
	IDCoordLocks  = 100
)

// KnownID reports whether id belongs to the response vocabulary.
func KnownID(id int) bool {
	switch id {
	case IDServiceList, IDMetrics, IDNodeCount, IDNodeList, IDObserveAck, IDClusterList, IDCoordLocks:
		return true
	}
	return false
}

// Sequence hands out fallback request ids, starting at 0. It is owned by a
// session; callers that supply their own id never consume it.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// Next returns the current value and advances the sequence.
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	return id
}

// Peek returns the id the next call to Next would return.
func (s *Sequence) Peek() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Request is a fully formed outbound request.
type Request struct {
	Text string
	ID   int
}

// BuildRequest resolves the id of a request text. If the text already
// carries "> <id>" that id is used as is; the id runs to the end of the text
// or to the first newline after the delimiter. Otherwise " > <n>" is appended
// with n taken from seq.
func BuildRequest(text string, seq *Sequence) (Request, error) {
	idx := strings.Index(text, IDDelimiter)
	if idx < 0 {
		id := seq.Next()
		return Request{Text: text + " " + IDDelimiter + " " + strconv.Itoa(id), ID: id}, nil
	}

	raw := text[idx+len(IDDelimiter):]
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[:nl]
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Request{}, fmt.Errorf("request %q: invalid id: %w", text, err)
	}
	return Request{Text: text, ID: id}, nil
}

// FormatRequest renders an address with an explicit id.
func FormatRequest(addr Address, id int) string {
	return addr.String() + " " + IDDelimiter + " " + strconv.Itoa(id)
}

// SplitRequest separates a request text into its address and id. The
// id is -1 when the text carries none.
func SplitRequest(text string) (Address, int, error) {
	addrText := text
	id := -1
	if idx := strings.Index(text, IDDelimiter); idx >= 0 {
		addrText = text[:idx]
		raw := text[idx+len(IDDelimiter):]
		if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
			raw = raw[:nl]
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Address{}, 0, fmt.Errorf("request %q: invalid id: %w", text, err)
		}
		id = n
	}
	addr, err := ParseAddress(addrText)
	if err != nil {
		return Address{}, 0, err
	}
	return addr, id, nil
}
