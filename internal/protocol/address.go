package protocol

import (
	"fmt"
	"strings"
)

// Namespace selects the backend service a request is addressed to.
type Namespace string

const (
	NamespacePresence Namespace = "presence"
	NamespaceMetrics  Namespace = "metrics"
	NamespaceCoord    Namespace = "coord"
)

// Modifier is the optional "#..." suffix of an address.
type Modifier string

const (
	ModifierNone        Modifier = ""
	ModifierObserve     Modifier = "observe"
	ModifierObserveStop Modifier = "observe-stop"
)

// Address identifies what a request or event is about. It renders as
// <namespace>:/<clusterId>[/<path>][#<modifier>].
type Address struct {
	Namespace Namespace
	ClusterID string
	// Path is the service id, or the coordination entity for the coord namespace.
	Path     string
	Modifier Modifier
}

// Presence returns the presence address for a cluster and optional service.
func Presence(clusterID, serviceID string) Address {
	return Address{Namespace: NamespacePresence, ClusterID: clusterID, Path: serviceID}
}

// Metrics returns the metrics address for a service.
func Metrics(clusterID, serviceID string) Address {
	return Address{Namespace: NamespaceMetrics, ClusterID: clusterID, Path: serviceID}
}

// Coord returns the coordination address for an entity within a cluster.
func Coord(clusterID, entity string) Address {
	return Address{Namespace: NamespaceCoord, ClusterID: clusterID, Path: entity}
}

// Observe returns a copy of a with the observe modifier.
func (a Address) Observe() Address {
	a.Modifier = ModifierObserve
	return a
}

// ObserveStop returns a copy of a with the observe-stop modifier.
func (a Address) ObserveStop() Address {
	a.Modifier = ModifierObserveStop
	return a
}

// Fetch returns a copy of a without a modifier, i.e. a one-shot snapshot request.
func (a Address) Fetch() Address {
	a.Modifier = ModifierNone
	return a
}

// Key identifies the observed entity regardless of modifier.
func (a Address) Key() Address {
	return a.Fetch()
}

// String renders the address in wire form.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(string(a.Namespace))
	b.WriteString(":/")
	b.WriteString(a.ClusterID)
	if a.Path != "" {
		b.WriteByte('/')
		b.WriteString(a.Path)
	}
	if a.Modifier != ModifierNone {
		b.WriteByte('#')
		b.WriteString(string(a.Modifier))
	}
	return b.String()
}

// ParseAddress parses the wire form of an address. Any "> id" suffix must
// already be stripped.
func ParseAddress(text string) (Address, error) {
	text = strings.TrimSpace(text)
	ns, rest, ok := strings.Cut(text, ":")
	if !ok {
		return Address{}, fmt.Errorf("address %q: missing namespace", text)
	}
	switch Namespace(ns) {
	case NamespacePresence, NamespaceMetrics, NamespaceCoord:
	default:
		return Address{}, fmt.Errorf("address %q: unknown namespace %q", text, ns)
	}
	if !strings.HasPrefix(rest, "/") {
		return Address{}, fmt.Errorf("address %q: path must start with /", text)
	}

	a := Address{Namespace: Namespace(ns)}
	rest = rest[1:]
	if path, mod, found := strings.Cut(rest, "#"); found {
		rest = path
		switch Modifier(strings.TrimSpace(mod)) {
		case ModifierObserve:
			a.Modifier = ModifierObserve
		case ModifierObserveStop:
			a.Modifier = ModifierObserveStop
		default:
			return Address{}, fmt.Errorf("address %q: unknown modifier %q", text, mod)
		}
	}
	a.ClusterID, a.Path, _ = strings.Cut(strings.TrimSpace(rest), "/")
	return a, nil
}
