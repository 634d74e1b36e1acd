// Package subscription keeps exactly the visible entities' data flowing:
// it turns navigation into observe/observe-stop/fetch requests, drops pushes
// for entities that are no longer selected, and restores selection from a
// deep-link fragment.
package subscription

import (
	"log/slog"
	"sort"

	"reign-dash/internal/metrics"
	"reign-dash/internal/protocol"
)

// Requester sends an address tagged with a request id.
type Requester interface {
	Request(addr protocol.Address, id int) error
}

// Sink renders decoded data. It never sees raw transport text.
type Sink interface {
	ClusterList(ids []string)
	ServiceList(ids []string)
	NodeCount(clusterID, serviceID string, count int)
	NodeList(clusterID, serviceID string, nodes []protocol.Node)
	Metrics(clusterID, serviceID string, view protocol.MetricsView)
	LockList(names []string)
	Selected(sel Selection)
}

// Location holds the deep-link fragment, e.g. "prod/api".
type Location interface {
	Fragment() string
	SetFragment(fragment string)
}

// Navigator is the set of navigation intents a UI can emit.
type Navigator interface {
	SelectCluster(clusterID string)
	SelectService(serviceID string)
	SelectCoordEntity(entity string)
}

// Selection is the single active selection at each level.
type Selection struct {
	Cluster     string `json:"cluster"`
	Service     string `json:"service"`
	CoordEntity string `json:"coordEntity"`
}

// serviceRef pins a selected service to the cluster it was selected in.
type serviceRef struct {
	cluster string
	service string
}

// Manager implements correlator.Handler and Navigator.
type Manager struct {
	req  Requester
	sink Sink
	loc  Location

	sel         Selection
	prevService serviceRef
	clusters    []string
	services    []string
	active      map[protocol.Address]struct{}
}

// New creates a Manager with nothing selected.
func New(req Requester, sink Sink, loc Location) *Manager {
	return &Manager{
		req:    req,
		sink:   sink,
		loc:    loc,
		active: make(map[protocol.Address]struct{}),
	}
}

// Selection returns the current selection.
func (m *Manager) Selection() Selection {
	return m.sel
}

// Active returns the observe subscriptions believed active on the backend,
// sorted by wire form.
func (m *Manager) Active() []protocol.Address {
	out := make([]protocol.Address, 0, len(m.active))
	for a := range m.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Connected runs when the connection opens: it observes the root cluster
// presence stream and fetches the cluster list once. Subscriptions from a
// previous connection died with it.
func (m *Manager) Connected() {
	m.active = make(map[protocol.Address]struct{})
	metrics.SetActiveSubscriptions(0)
	m.send(protocol.Presence("", "").Observe(), protocol.IDObserveAck)
	m.send(protocol.Presence("", ""), protocol.IDClusterList)
}

// Disconnected forgets all subscriptions; the backend drops its observers
// with the connection.
func (m *Manager) Disconnected() {
	m.active = make(map[protocol.Address]struct{})
	metrics.SetActiveSubscriptions(0)
}

// SelectCluster switches the selected cluster and points the location at it.
func (m *Manager) SelectCluster(clusterID string) {
	if clusterID == "" {
		return
	}
	m.loc.SetFragment(protocol.FormatFragment(clusterID, ""))
	m.selectCluster(clusterID)
}

// selectCluster switches the cluster without touching the location, so a
// deep link can still name the service to restore next.
func (m *Manager) selectCluster(clusterID string) {
	prev := m.sel.Cluster
	logInfo("Cluster selected", "cluster", clusterID, "previous", prev)

	if prev != "" && prev != clusterID {
		m.send(protocol.Presence(prev, "").ObserveStop(), protocol.IDServiceList)
	}
	// The selected service belongs to the cluster that is leaving view.
	if m.prevService.service != "" && m.prevService.cluster != clusterID {
		m.stopService(m.prevService)
		m.prevService = serviceRef{}
	}

	m.sel = Selection{Cluster: clusterID}
	m.services = nil
	m.sink.Selected(m.sel)

	m.send(protocol.Presence(clusterID, ""), protocol.IDServiceList)
	m.send(protocol.Presence(clusterID, "").Observe(), protocol.IDServiceList)
}

// SelectService switches the selected service within the selected cluster.
func (m *Manager) SelectService(serviceID string) {
	if serviceID == "" || m.sel.Cluster == "" {
		logDebug("Service selection ignored", "service", serviceID, "cluster", m.sel.Cluster)
		return
	}
	cluster := m.sel.Cluster
	next := serviceRef{cluster: cluster, service: serviceID}
	logInfo("Service selected", "cluster", cluster, "service", serviceID, "previous", m.prevService.service)

	if m.prevService.service != "" && m.prevService != next {
		m.stopService(m.prevService)
	}
	m.prevService = next
	m.sel.Service = serviceID
	m.sel.CoordEntity = ""
	m.loc.SetFragment(protocol.FormatFragment(cluster, serviceID))
	m.sink.Selected(m.sel)

	m.send(protocol.Presence(cluster, serviceID), protocol.IDNodeList)
	m.send(protocol.Presence(cluster, serviceID).Observe(), protocol.IDObserveAck)
	m.send(protocol.Metrics(cluster, serviceID), protocol.IDMetrics)
	m.send(protocol.Metrics(cluster, serviceID).Observe(), protocol.IDObserveAck)
}

// SelectCoordEntity fetches the lock list for an entity of the selected
// cluster. Coordination data is fetched once, not observed.
func (m *Manager) SelectCoordEntity(entity string) {
	if entity == "" || m.sel.Cluster == "" {
		logDebug("Coordination selection ignored", "entity", entity, "cluster", m.sel.Cluster)
		return
	}
	m.sel.CoordEntity = entity
	m.loc.SetFragment(protocol.FormatFragment(m.sel.Cluster, entity))
	m.sink.Selected(m.sel)

	m.send(protocol.Coord(m.sel.Cluster, entity), protocol.IDCoordLocks)
}

// Navigate replaces the location fragment and refetches the cluster list, so
// the link is resolved against current data the same way as on connect.
func (m *Manager) Navigate(fragment string) {
	m.loc.SetFragment(fragment)
	m.send(protocol.Presence("", ""), protocol.IDClusterList)
}

func (m *Manager) stopService(ref serviceRef) {
	m.send(protocol.Presence(ref.cluster, ref.service).ObserveStop(), protocol.IDObserveAck)
	m.send(protocol.Metrics(ref.cluster, ref.service).ObserveStop(), protocol.IDObserveAck)
}

// ClusterList handles the root cluster list.
func (m *Manager) ClusterList(ids []string) {
	sorted := sortedCopy(ids)
	m.clusters = sorted
	m.sink.ClusterList(sorted)
	m.resolveDeepLink(levelCluster)
}

// ServiceList handles the service list of the selected cluster and starts a
// presence fetch and observe per service for node counts.
func (m *Manager) ServiceList(ids []string) {
	cluster := m.sel.Cluster
	if cluster == "" {
		logDebug("Service list without selected cluster dropped", "count", len(ids))
		return
	}
	sorted := sortedCopy(ids)
	m.services = sorted
	m.sink.ServiceList(sorted)

	for _, service := range sorted {
		m.send(protocol.Presence(cluster, service), protocol.IDNodeCount)
		m.send(protocol.Presence(cluster, service).Observe(), protocol.IDObserveAck)
	}
	m.resolveDeepLink(levelService)
}

// NodeCount handles a one-shot presence fetch used for service badges.
func (m *Manager) NodeCount(clusterID, serviceID string, nodes []protocol.Node) {
	if clusterID != m.sel.Cluster {
		return
	}
	m.sink.NodeCount(clusterID, serviceID, len(nodes))
}

// NodeList handles presence responses and events. Pushes for another
// cluster unsubscribe themselves; pushes for another service of the selected
// cluster only update that service's count.
func (m *Manager) NodeList(clusterID, serviceID string, nodes []protocol.Node) {
	if clusterID != m.sel.Cluster {
		m.unsubscribeStale(protocol.Presence(clusterID, serviceID))
		return
	}
	m.sink.NodeCount(clusterID, serviceID, len(nodes))
	if serviceID != m.sel.Service {
		return
	}

	sorted := make([]protocol.Node, len(nodes))
	copy(sorted, nodes)
	protocol.SortNodes(sorted)
	m.sink.NodeList(clusterID, serviceID, sorted)
}

// Metrics handles metrics responses and events. Metrics are observed for the
// selected service only, so any other push unsubscribes itself.
func (m *Manager) Metrics(clusterID, serviceID string, snap *protocol.MetricsSnapshot) {
	if clusterID == "" || serviceID == "" || clusterID != m.sel.Cluster || serviceID != m.sel.Service {
		m.unsubscribeStale(protocol.Metrics(clusterID, serviceID))
		return
	}
	m.sink.Metrics(clusterID, serviceID, snap.View())
}

// LockList handles the coordination lock list.
func (m *Manager) LockList(names []string) {
	m.sink.LockList(sortedCopy(names))
}

func (m *Manager) unsubscribeStale(addr protocol.Address) {
	logDebug("Stale push, unsubscribing", "address", addr.String())
	metrics.RecordStaleUnsubscribe(string(addr.Namespace))
	m.send(addr.ObserveStop(), protocol.IDObserveAck)
}

type level int

const (
	levelCluster level = iota
	levelService
)

// resolveDeepLink selects the cluster or service named by the location
// fragment if it is present in the list just received.
func (m *Manager) resolveDeepLink(lvl level) {
	link, ok := protocol.ParseFragment(m.loc.Fragment())
	if !ok {
		return
	}
	if link.Normalized != m.loc.Fragment() {
		m.loc.SetFragment(link.Normalized)
	}

	switch lvl {
	case levelCluster:
		if link.ClusterID != "" && contains(m.clusters, link.ClusterID) {
			logDebug("Restoring cluster from fragment", "fragment", link.Normalized)
			m.selectCluster(link.ClusterID)
		}
	case levelService:
		if link.ServiceID != "" && link.ServiceID != m.sel.Service && link.ClusterID == m.sel.Cluster && contains(m.services, link.ServiceID) {
			logDebug("Restoring service from fragment", "fragment", link.Normalized)
			m.SelectService(link.ServiceID)
		}
	}
}

func (m *Manager) send(addr protocol.Address, id int) {
	// Other failures are reported by the requester; the next navigation retries.
	if err := m.req.Request(addr, id); protocol.IsTransportUnavailable(err) {
		logDebug("Request not sent, connection unavailable", "address", addr.String())
		return
	}

	switch addr.Modifier {
	case protocol.ModifierObserve:
		m.active[addr.Key()] = struct{}{}
	case protocol.ModifierObserveStop:
		delete(m.active, addr.Key())
	}
	metrics.SetActiveSubscriptions(len(m.active))
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func logDebug(msg string, attrs ...any) {
	slog.Debug(msg, append([]any{"component", "Subscriptions"}, attrs...)...)
}

func logInfo(msg string, attrs ...any) {
	slog.Info(msg, append([]any{"component", "Subscriptions"}, attrs...)...)
}
