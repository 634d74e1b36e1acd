package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	RequestsTotal.Reset()

	RecordRequest("presence", "observe")
	RecordRequest("presence", "observe")
	RecordRequest("metrics", "")

	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("presence", "observe")); got != 2.0 {
		t.Errorf("Expected 2 presence observe requests, got %f", got)
	}
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("metrics", "fetch")); got != 1.0 {
		t.Errorf("Expected empty modifier to be recorded as fetch, got %f", got)
	}
}

func TestRecordDispatchError(t *testing.T) {
	DispatchErrorsTotal.Reset()

	RecordDispatchError(ErrorParse)
	RecordDispatchError(ErrorUnroutable)
	RecordDispatchError(ErrorUnroutable)

	if got := testutil.ToFloat64(DispatchErrorsTotal.WithLabelValues(ErrorUnroutable)); got != 2.0 {
		t.Errorf("Expected 2 unroutable errors, got %f", got)
	}
	if got := testutil.ToFloat64(DispatchErrorsTotal.WithLabelValues(ErrorParse)); got != 1.0 {
		t.Errorf("Expected 1 parse error, got %f", got)
	}
}

func TestSetConnectionState(t *testing.T) {
	ConnectionState.Reset()

	SetConnectionState("connecting")
	SetConnectionState("open")

	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("open")); got != 1.0 {
		t.Errorf("Expected open to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("connecting")); got != 0.0 {
		t.Errorf("Expected connecting to be 0, got %f", got)
	}
}

func TestSetActiveSubscriptions(t *testing.T) {
	SetActiveSubscriptions(3)
	if got := testutil.ToFloat64(ActiveSubscriptions); got != 3.0 {
		t.Errorf("Expected 3 active subscriptions, got %f", got)
	}
}
