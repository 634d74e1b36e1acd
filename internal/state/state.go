package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"reign-dash/internal/protocol"
	"reign-dash/internal/subscription"
)

// Log labels used for entries that do not come from a component logger.
const (
	LabelControl = "Control"
	LabelError   = "Error"
)

// ConnectionInfo describes the backend connection as shown in the header.
type ConnectionInfo struct {
	Status string    `json:"status"`
	URI    string    `json:"uri"`
	Since  time.Time `json:"since"`
}

// ServiceInfo is one entry of the service list with its node count badge.
type ServiceInfo struct {
	ID        string `json:"id"`
	NodeCount int    `json:"nodeCount"`
}

// NodeInfo is one row of the node table.
type NodeInfo struct {
	PID  string `json:"pid"`
	Host string `json:"host"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// LogEntry holds a single log entry.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Label     string    `json:"label"`
	Message   string    `json:"message"`
}

// SnapshotData holds a point-in-time copy of AppState for JSON serialization.
type SnapshotData struct {
	Connection    ConnectionInfo         `json:"connection"`
	Clusters      []string               `json:"clusters"`
	Services      []ServiceInfo          `json:"services"`
	Selection     subscription.Selection `json:"selection"`
	Nodes         []NodeInfo             `json:"nodes"`
	Metrics       *protocol.MetricsView  `json:"metrics,omitempty"`
	Locks         []string               `json:"locks"`
	Subscriptions []string               `json:"subscriptions"`
	Fragment      string                 `json:"fragment"`
	Logs          []LogEntry             `json:"logs"`
	Columns       map[string][]string    `json:"columns"`
}

// persisted is the subset of the model kept across restarts.
type persisted struct {
	Fragment string `json:"fragment"`
}

// AppState is the dashboard model. It implements subscription.Sink and
// subscription.Location, and collects reported errors and control messages.
type AppState struct {
	mu         sync.RWMutex
	connection ConnectionInfo
	clusters   []string
	services   []ServiceInfo
	selection  subscription.Selection
	nodes      []NodeInfo
	metrics    *protocol.MetricsView
	locks      []string
	subs       []string
	fragment   string
	logs       []LogEntry
	maxLogs    int
	stateFile  string        // Path to state file
	changeCh   chan struct{} // Sent on every state mutation
}

// New creates a new AppState with a max log buffer size. The fragment is
// restored from stateFile when it exists.
func New(maxLogs int, stateFile string) *AppState {
	s := &AppState{
		maxLogs:    maxLogs,
		clusters:   []string{},
		services:   []ServiceInfo{},
		nodes:      []NodeInfo{},
		locks:      []string{},
		subs:       []string{},
		logs:       []LogEntry{},
		stateFile:  stateFile,
		changeCh:   make(chan struct{}, 1),
		connection: ConnectionInfo{Status: "closed"},
	}

	if stateFile != "" {
		_ = s.LoadFromFile(stateFile) // Ignore errors, use defaults
	}

	return s
}

// notifyChange does a non-blocking send on changeCh to signal a state mutation.
// Must be called while NOT holding mu (the receiver in the web layer will re-read state).
func (s *AppState) notifyChange() {
	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}

// ChangeCh returns a channel that receives a value whenever the state changes.
func (s *AppState) ChangeCh() <-chan struct{} {
	return s.changeCh
}

// SetConnection records the connection status and the URI it applies to.
func (s *AppState) SetConnection(status, uri string) {
	s.mu.Lock()
	s.connection = ConnectionInfo{Status: status, URI: uri, Since: time.Now().UTC()}
	s.mu.Unlock()
	s.notifyChange()
}

// BackendURI returns the URI of the current or last connection.
func (s *AppState) BackendURI() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connection.URI
}

// ClusterList replaces the cluster list.
func (s *AppState) ClusterList(ids []string) {
	s.mu.Lock()
	s.clusters = append([]string{}, ids...)
	s.mu.Unlock()
	s.notifyChange()
}

// ServiceList replaces the service list of the selected cluster. Known node
// counts are kept for services that are still listed.
func (s *AppState) ServiceList(ids []string) {
	s.mu.Lock()
	counts := make(map[string]int, len(s.services))
	for _, svc := range s.services {
		counts[svc.ID] = svc.NodeCount
	}
	services := make([]ServiceInfo, 0, len(ids))
	for _, id := range ids {
		services = append(services, ServiceInfo{ID: id, NodeCount: counts[id]})
	}
	s.services = services
	s.mu.Unlock()
	s.notifyChange()
}

// NodeCount updates the node count badge of a service. Counts for services
// not yet listed are added so they show up immediately.
func (s *AppState) NodeCount(clusterID, serviceID string, count int) {
	s.mu.Lock()
	if clusterID != s.selection.Cluster {
		s.mu.Unlock()
		return
	}
	for i := range s.services {
		if s.services[i].ID == serviceID {
			s.services[i].NodeCount = count
			s.mu.Unlock()
			s.notifyChange()
			return
		}
	}
	s.services = append(s.services, ServiceInfo{ID: serviceID, NodeCount: count})
	s.mu.Unlock()
	s.notifyChange()
}

// NodeList replaces the node table of the selected service.
func (s *AppState) NodeList(clusterID, serviceID string, nodes []protocol.Node) {
	rows := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, NodeInfo{PID: n.DisplayPID(), Host: n.Host, IP: n.IP, Port: n.Port})
	}

	s.mu.Lock()
	if clusterID != s.selection.Cluster || serviceID != s.selection.Service {
		s.mu.Unlock()
		return
	}
	s.nodes = rows
	s.mu.Unlock()
	s.notifyChange()
}

// Metrics replaces the metrics tables of the selected service.
func (s *AppState) Metrics(clusterID, serviceID string, view protocol.MetricsView) {
	s.mu.Lock()
	if clusterID != s.selection.Cluster || serviceID != s.selection.Service {
		s.mu.Unlock()
		return
	}
	s.metrics = &view
	s.mu.Unlock()
	s.notifyChange()
}

// LockList replaces the lock list of the selected coordination entity.
func (s *AppState) LockList(names []string) {
	s.mu.Lock()
	s.locks = append([]string{}, names...)
	s.mu.Unlock()
	s.notifyChange()
}

// SetSubscriptions records the observe addresses active on the backend.
func (s *AppState) SetSubscriptions(addrs []string) {
	s.mu.Lock()
	if slices.Equal(s.subs, addrs) {
		s.mu.Unlock()
		return
	}
	s.subs = append([]string{}, addrs...)
	s.mu.Unlock()
	s.notifyChange()
}

// Selected records the new selection and clears the data that belonged to
// the levels that changed.
func (s *AppState) Selected(sel subscription.Selection) {
	s.mu.Lock()
	prev := s.selection
	s.selection = sel
	if sel.Cluster != prev.Cluster {
		s.services = []ServiceInfo{}
	}
	if sel.Cluster != prev.Cluster || sel.Service != prev.Service {
		s.nodes = []NodeInfo{}
		s.metrics = nil
	}
	if sel.Cluster != prev.Cluster || sel.CoordEntity != prev.CoordEntity {
		s.locks = []string{}
	}
	s.mu.Unlock()
	s.notifyChange()
}

// Selection returns the selection last rendered.
func (s *AppState) Selection() subscription.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Fragment returns the deep-link fragment.
func (s *AppState) Fragment() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fragment
}

// SetFragment updates the deep-link fragment and persists it.
func (s *AppState) SetFragment(fragment string) {
	s.mu.Lock()
	if s.fragment == fragment {
		s.mu.Unlock()
		return
	}
	s.fragment = fragment
	s.mu.Unlock()
	s.notifyChange()
	s.save()
}

// ReportError adds a non-fatal error to the log.
func (s *AppState) ReportError(err error) {
	if err == nil {
		return
	}
	s.AddLog("ERROR", LabelError, err.Error())
}

// ReportControl adds a connection control message to the log.
func (s *AppState) ReportControl(message string) {
	s.AddLog("INFO", LabelControl, message)
}

// AddLog appends a log entry, trimming old entries if needed.
func (s *AppState) AddLog(level, label, message string) {
	s.mu.Lock()
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Label:     label,
		Message:   message,
	}
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[len(s.logs)-s.maxLogs:]
	}
	s.mu.Unlock()
	s.notifyChange()
}

// Snapshot returns a copy of the current state for JSON serialization.
func (s *AppState) Snapshot() SnapshotData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var view *protocol.MetricsView
	if s.metrics != nil {
		v := *s.metrics
		view = &v
	}
	return SnapshotData{
		Connection:    s.connection,
		Clusters:      append([]string{}, s.clusters...),
		Services:      append([]ServiceInfo{}, s.services...),
		Selection:     s.selection,
		Nodes:         append([]NodeInfo{}, s.nodes...),
		Metrics:       view,
		Locks:         append([]string{}, s.locks...),
		Subscriptions: append([]string{}, s.subs...),
		Fragment:      s.fragment,
		Logs:          append([]LogEntry{}, s.logs...),
		Columns: map[string][]string{
			"counters":   protocol.CounterColumns,
			"histograms": protocol.HistogramColumns,
			"meters":     protocol.MeterColumns,
			"timers":     protocol.HistogramColumns,
		},
	}
}

// save persists state to disk (best-effort, ignores errors).
func (s *AppState) save() {
	if s.stateFile != "" {
		_ = s.SaveToFile(s.stateFile)
	}
}

// SaveToFile persists the fragment to a JSON file. Live data and logs are
// transient.
func (s *AppState) SaveToFile(path string) error {
	s.mu.RLock()
	snapshot := persisted{Fragment: s.fragment}
	s.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadFromFile loads state from a JSON file if it exists.
func (s *AppState) LoadFromFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // File doesn't exist, not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var loaded persisted
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}

	s.fragment = loaded.Fragment
	return nil
}
