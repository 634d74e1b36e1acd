package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Node is one registered instance of a service.
type Node struct {
	PID  string `json:"pid,omitempty"`
	Host string `json:"h"`
	IP   string `json:"ip"`
	Port int    `json:"mp"`
}

// DisplayPID returns the process id, or "--" when the node did not report one.
func (n Node) DisplayPID() string {
	if n.PID == "" {
		return "--"
	}
	return n.PID
}

// SortNodes orders nodes ascending by host.
func SortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Host < nodes[j].Host
	})
}

// PresenceBody is the body of node count and node list responses.
type PresenceBody struct {
	ClusterID  string `json:"clusterId"`
	ServiceID  string `json:"serviceId"`
	NodeIDList []Node `json:"nodeIdList"`
}

// PresenceUpdate is the updated value of a presence event.
type PresenceUpdate struct {
	NodeIDList []Node `json:"nodeIdList"`
}

// Counter is a monotonically increasing count.
type Counter struct {
	Count float64 `json:"count"`
}

// Histogram is a distribution summary. Timers share the same shape.
type Histogram struct {
	Count float64 `json:"count"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P95   float64 `json:"p95"`
	P98   float64 `json:"p98"`
	P99   float64 `json:"p99"`
	P999  float64 `json:"p999"`
}

// Meter is a rate measurement.
type Meter struct {
	Count    float64 `json:"count"`
	MeanRate float64 `json:"meanRate"`
	M1Rate   float64 `json:"m1Rate"`
	M5Rate   float64 `json:"m5Rate"`
	M15Rate  float64 `json:"m15Rate"`
}

// MetricsSnapshot is the metrics state of one service.
type MetricsSnapshot struct {
	ClusterID  string               `json:"clusterId"`
	ServiceID  string               `json:"serviceId"`
	Counters   map[string]Counter   `json:"counters,omitempty"`
	Histograms map[string]Histogram `json:"histograms,omitempty"`
	Meters     map[string]Meter     `json:"meters,omitempty"`
	Timers     map[string]Histogram `json:"timers,omitempty"`
}

// MetricRow is one display row: a metric name and its values rounded to the
// nearest integer, in column order.
type MetricRow struct {
	Name   string  `json:"name"`
	Values []int64 `json:"values"`
}

// MetricsView is the display form of a snapshot with each group sorted by name.
type MetricsView struct {
	ClusterID  string      `json:"clusterId"`
	ServiceID  string      `json:"serviceId"`
	Counters   []MetricRow `json:"counters"`
	Histograms []MetricRow `json:"histograms"`
	Meters     []MetricRow `json:"meters"`
	Timers     []MetricRow `json:"timers"`
}

// Column headers for the display rows.
var (
	CounterColumns   = []string{"count"}
	HistogramColumns = []string{"count", "max", "mean", "min", "p50", "p75", "p95", "p98", "p99", "p999"}
	MeterColumns     = []string{"count", "meanRate", "m1Rate", "m5Rate", "m15Rate"}
)

// View rounds and sorts the snapshot for display.
func (s *MetricsSnapshot) View() MetricsView {
	v := MetricsView{ClusterID: s.ClusterID, ServiceID: s.ServiceID}
	for _, name := range sortedKeys(s.Counters) {
		c := s.Counters[name]
		v.Counters = append(v.Counters, MetricRow{Name: name, Values: round(c.Count)})
	}
	for _, name := range sortedKeys(s.Histograms) {
		v.Histograms = append(v.Histograms, MetricRow{Name: name, Values: s.Histograms[name].values()})
	}
	for _, name := range sortedKeys(s.Meters) {
		m := s.Meters[name]
		v.Meters = append(v.Meters, MetricRow{Name: name, Values: round(m.Count, m.MeanRate, m.M1Rate, m.M5Rate, m.M15Rate)})
	}
	for _, name := range sortedKeys(s.Timers) {
		v.Timers = append(v.Timers, MetricRow{Name: name, Values: s.Timers[name].values()})
	}
	return v
}

func (h Histogram) values() []int64 {
	return round(h.Count, h.Max, h.Mean, h.Min, h.P50, h.P75, h.P95, h.P98, h.P99, h.P999)
}

func round(vals ...float64) []int64 {
	out := make([]int64, len(vals))
	for i, f := range vals {
		out[i] = int64(math.Round(f))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeStringList decodes a list body (cluster, service and lock lists).
func DecodeStringList(body json.RawMessage) ([]string, error) {
	var out []string
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode list body: %w", err)
	}
	return out, nil
}

// DecodePresence decodes a node count or node list body.
func DecodePresence(body json.RawMessage) (*PresenceBody, error) {
	var out PresenceBody
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode presence body: %w", err)
	}
	return &out, nil
}

// DecodePresenceUpdate decodes the updated value of a presence event.
func DecodePresenceUpdate(updated json.RawMessage) (*PresenceUpdate, error) {
	var out PresenceUpdate
	if err := json.Unmarshal(updated, &out); err != nil {
		return nil, fmt.Errorf("decode presence update: %w", err)
	}
	return &out, nil
}

// DecodeMetrics decodes a metrics snapshot body or event update.
func DecodeMetrics(body json.RawMessage) (*MetricsSnapshot, error) {
	var out MetricsSnapshot
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode metrics body: %w", err)
	}
	return &out, nil
}
