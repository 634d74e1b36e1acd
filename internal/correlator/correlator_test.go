package correlator

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"reign-dash/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

type fakeReporter struct {
	errs []error
}

func (f *fakeReporter) ReportError(err error) {
	f.errs = append(f.errs, err)
}

// recorder implements Handler by logging each call as a line.
type recorder struct {
	calls []string
	nodes []protocol.Node
	snap  *protocol.MetricsSnapshot
}

func (r *recorder) ClusterList(ids []string) {
	r.calls = append(r.calls, "clusters "+strings.Join(ids, ","))
}

func (r *recorder) ServiceList(ids []string) {
	r.calls = append(r.calls, "services "+strings.Join(ids, ","))
}

func (r *recorder) NodeCount(clusterID, serviceID string, nodes []protocol.Node) {
	r.calls = append(r.calls, fmt.Sprintf("count %s/%s %d", clusterID, serviceID, len(nodes)))
}

func (r *recorder) NodeList(clusterID, serviceID string, nodes []protocol.Node) {
	r.nodes = nodes
	r.calls = append(r.calls, fmt.Sprintf("nodes %s/%s %d", clusterID, serviceID, len(nodes)))
}

func (r *recorder) Metrics(clusterID, serviceID string, snap *protocol.MetricsSnapshot) {
	r.snap = snap
	r.calls = append(r.calls, fmt.Sprintf("metrics %s/%s", clusterID, serviceID))
}

func (r *recorder) LockList(names []string) {
	r.calls = append(r.calls, "locks "+strings.Join(names, ","))
}

func newTestCorrelator(classifier protocol.Classifier) (*Correlator, *fakeSender, *fakeReporter) {
	out := &fakeSender{}
	rep := &fakeReporter{}
	return New(out, &protocol.Sequence{}, classifier, rep), out, rep
}

func TestRequestFormatsWireText(t *testing.T) {
	c, out, _ := newTestCorrelator(nil)

	require.NoError(t, c.Request(protocol.Presence("clusterA", "serviceB").Observe(), 5))
	require.NoError(t, c.Request(protocol.Presence("", ""), 6))
	assert.Equal(t, []string{"presence:/clusterA/serviceB#observe > 5", "presence:/ > 6"}, out.sent)
}

func TestSendTextUsesSequence(t *testing.T) {
	c, out, _ := newTestCorrelator(nil)

	id1, err := c.SendText("presence:/prod")
	require.NoError(t, err)
	id2, err := c.SendText("presence:/prod")
	require.NoError(t, err)
	id3, err := c.SendText("presence:/prod > 42")
	require.NoError(t, err)
	id4, err := c.SendText("presence:/prod")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 42, 2}, []int{id1, id2, id3, id4})
	assert.Equal(t, "presence:/prod > 1", out.sent[1])
}

func TestTransportFailureIsReported(t *testing.T) {
	c, out, rep := newTestCorrelator(nil)
	out.err = fmt.Errorf("send: %w", protocol.ErrTransportUnavailable)

	err := c.Request(protocol.Presence("", ""), 6)
	require.Error(t, err)
	require.Len(t, rep.errs, 1)
	assert.True(t, protocol.IsTransportUnavailable(rep.errs[0]))
}

func TestHandleRoutesResponsesByID(t *testing.T) {
	c, _, rep := newTestCorrelator(protocol.SubstringClassifier{})
	h := &recorder{}

	frames := []string{
		`{"id":6,"status":0,"body":["prod","dev"]}`,
		`{"id":1,"status":0,"body":["api"]}`,
		`{"id":3,"status":0,"body":{"clusterId":"prod","serviceId":"api","nodeIdList":[{"h":"a","ip":"1","mp":1}]}}`,
		`{"id":4,"status":0,"body":{"clusterId":"prod","serviceId":"api","nodeIdList":[]}}`,
		`{"id":2,"status":0,"body":{"clusterId":"prod","serviceId":"api","counters":{"c":{"count":1}}}}`,
		`{"id":5,"status":0,"body":{}}`,
		`{"id":100,"status":0,"body":["l1"]}`,
	}
	for _, f := range frames {
		c.Handle(f, h)
	}

	assert.Empty(t, rep.errs)
	assert.Equal(t, []string{
		"clusters prod,dev",
		"services api",
		"count prod/api 1",
		"nodes prod/api 0",
		"metrics prod/api",
		"locks l1",
	}, h.calls)
	require.NotNil(t, h.snap)
	assert.Equal(t, float64(1), h.snap.Counters["c"].Count)
}

func TestHandleRoutesEventsByType(t *testing.T) {
	c, _, rep := newTestCorrelator(protocol.EnvelopeClassifier{})
	h := &recorder{}

	c.Handle(`{"event":"presence","clusterId":"c1","serviceId":"s1","body":{"updated":{"nodeIdList":[{"h":"n2","ip":"10.0.0.2","mp":1},{"h":"n1","ip":"10.0.0.1","mp":2}]}}}`, h)
	c.Handle(`{"event":"metrics","clusterId":"c1","serviceId":"s1","body":{"updated":{"meters":{"m":{"count":3}}}}}`, h)

	assert.Empty(t, rep.errs)
	assert.Equal(t, []string{"nodes c1/s1 2", "metrics c1/s1"}, h.calls)
	assert.Equal(t, float64(3), h.snap.Meters["m"].Count)
}

func TestHandleReportsAndContinues(t *testing.T) {
	c, _, rep := newTestCorrelator(protocol.SubstringClassifier{})
	h := &recorder{}

	c.Handle(`{not json`, h)
	c.Handle(`{"id":77,"status":0,"body":[]}`, h)
	c.Handle(`{"event":"config","clusterId":"c","body":{"updated":{}}}`, h)
	c.Handle(`{"id":1,"status":0,"body":{"oops":true}}`, h)
	c.Handle(`{"id":6,"status":-2,"comment":"timed out"}`, h)
	c.Handle(`{"id":9,"status":0}`, h)
	c.Handle(`{"id":6,"status":0,"body":["prod"]}`, h)

	require.Len(t, rep.errs, 6)
	assert.True(t, protocol.IsParseFailure(rep.errs[0]))
	assert.True(t, protocol.IsUnroutable(rep.errs[1]))
	assert.True(t, protocol.IsUnroutable(rep.errs[2]))
	assert.True(t, protocol.IsParseFailure(rep.errs[3]))
	var se *StatusError
	require.True(t, errors.As(rep.errs[4], &se))
	assert.Equal(t, protocol.StatusErrorTimedOut, se.Status)
	assert.Contains(t, se.Error(), "timed out")
	assert.True(t, protocol.IsUnroutable(rep.errs[5]), "an unknown id is unroutable even without a body")

	assert.Equal(t, []string{"clusters prod"}, h.calls, "processing continues after errors")
}

func TestSubstringHeuristicMisroutesEvents(t *testing.T) {
	c, _, rep := newTestCorrelator(protocol.SubstringClassifier{})
	h := &recorder{}

	// An event whose payload mentions "status" is read as a response without
	// an id and ends up unroutable instead of rendered.
	c.Handle(`{"event":"presence","clusterId":"status","serviceId":"s1","body":{"updated":{"nodeIdList":[]}}}`, h)

	assert.Empty(t, h.calls)
	require.Len(t, rep.errs, 1)
	assert.True(t, protocol.IsUnroutable(rep.errs[0]))

	c2, _, rep2 := newTestCorrelator(protocol.EnvelopeClassifier{})
	c2.Handle(`{"event":"presence","clusterId":"status","serviceId":"s1","body":{"updated":{"nodeIdList":[]}}}`, h)
	assert.Empty(t, rep2.errs)
	assert.Equal(t, []string{"nodes status/s1 0"}, h.calls)
}
