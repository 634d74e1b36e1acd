package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks outbound requests with labels for namespace and modifier
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reign_dash_requests_total",
			Help: "Total number of requests sent to the backend",
		},
		[]string{"namespace", "modifier"},
	)

	// MessagesTotal tracks inbound messages by classified kind
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reign_dash_messages_total",
			Help: "Total number of messages received from the backend",
		},
		[]string{"kind"},
	)

	// DispatchErrorsTotal tracks non-fatal protocol errors by type
	DispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reign_dash_dispatch_errors_total",
			Help: "Total number of parse, routing and transport errors",
		},
		[]string{"type"},
	)

	// StaleUnsubscribesTotal tracks observe-stop requests triggered by pushes for deselected entities
	StaleUnsubscribesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reign_dash_stale_unsubscribes_total",
			Help: "Total number of implicit unsubscribes caused by stale pushes",
		},
		[]string{"namespace"},
	)

	// ActiveSubscriptions tracks the number of observe subscriptions believed active on the backend
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reign_dash_active_subscriptions",
			Help: "Number of observe subscriptions currently active",
		},
	)

	// ConnectionState is 1 for the current transport state and 0 for the others
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reign_dash_connection_state",
			Help: "Current state of the backend connection",
		},
		[]string{"state"},
	)
)

// Error type labels.
const (
	ErrorParse      = "parse"
	ErrorUnroutable = "unroutable"
	ErrorTransport  = "transport"
	ErrorStatus     = "status"
)

var connectionStates = []string{"connecting", "open", "closing", "closed"}

// RecordRequest records an outbound request.
func RecordRequest(namespace, modifier string) {
	if modifier == "" {
		modifier = "fetch"
	}
	RequestsTotal.WithLabelValues(namespace, modifier).Inc()
}

// RecordMessage records an inbound message of the given kind.
func RecordMessage(kind string) {
	MessagesTotal.WithLabelValues(kind).Inc()
}

// RecordDispatchError records a non-fatal error of the given type.
func RecordDispatchError(errType string) {
	DispatchErrorsTotal.WithLabelValues(errType).Inc()
}

// RecordStaleUnsubscribe records an implicit unsubscribe for a namespace.
func RecordStaleUnsubscribe(namespace string) {
	StaleUnsubscribesTotal.WithLabelValues(namespace).Inc()
}

// SetActiveSubscriptions sets the number of active subscriptions.
func SetActiveSubscriptions(n int) {
	ActiveSubscriptions.Set(float64(n))
}

// SetConnectionState marks state as the current connection state.
func SetConnectionState(state string) {
	for _, s := range connectionStates {
		if s == state {
			ConnectionState.WithLabelValues(s).Set(1)
		} else {
			ConnectionState.WithLabelValues(s).Set(0)
		}
	}
}
