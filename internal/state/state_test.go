package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reign-dash/internal/protocol"
	"reign-dash/internal/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ subscription.Sink = (*AppState)(nil)
var _ subscription.Location = (*AppState)(nil)

func TestAddLogTrimsToMax(t *testing.T) {
	s := New(3, "")
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		s.AddLog("INFO", "Test", msg)
	}

	logs := s.Snapshot().Logs
	require.Len(t, logs, 3)
	assert.Equal(t, "c", logs[0].Message)
	assert.Equal(t, "e", logs[2].Message)
}

func TestReportErrorAndControl(t *testing.T) {
	s := New(10, "")
	s.ReportControl("Web Socket opened: ws://localhost:33033/ws")
	s.ReportError(errors.New("boom"))
	s.ReportError(nil)

	logs := s.Snapshot().Logs
	require.Len(t, logs, 2)
	assert.Equal(t, LabelControl, logs[0].Label)
	assert.Equal(t, "ERROR", logs[1].Level)
	assert.Equal(t, "boom", logs[1].Message)
}

func TestNotifyChangeIsNonBlocking(t *testing.T) {
	s := New(10, "")
	s.ClusterList([]string{"a"})
	s.ClusterList([]string{"b"})

	select {
	case <-s.ChangeCh():
	default:
		t.Fatal("expected a pending change notification")
	}
	select {
	case <-s.ChangeCh():
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestSelectedClearsChangedLevels(t *testing.T) {
	s := New(10, "")
	s.Selected(subscription.Selection{Cluster: "prod"})
	s.ServiceList([]string{"api", "web"})
	s.Selected(subscription.Selection{Cluster: "prod", Service: "api"})
	s.NodeList("prod", "api", []protocol.Node{{Host: "n1"}})
	s.Metrics("prod", "api", protocol.MetricsView{ServiceID: "api"})

	snap := s.Snapshot()
	assert.Len(t, snap.Services, 2)
	assert.Len(t, snap.Nodes, 1)
	require.NotNil(t, snap.Metrics)

	s.Selected(subscription.Selection{Cluster: "prod", Service: "web"})
	snap = s.Snapshot()
	assert.Len(t, snap.Services, 2, "services survive a service switch")
	assert.Empty(t, snap.Nodes)
	assert.Nil(t, snap.Metrics)

	s.Selected(subscription.Selection{Cluster: "dev"})
	assert.Empty(t, s.Snapshot().Services)
}

func TestNodeCountKeepsAcrossServiceList(t *testing.T) {
	s := New(10, "")
	s.Selected(subscription.Selection{Cluster: "prod"})
	s.ServiceList([]string{"api"})
	s.NodeCount("prod", "api", 3)
	s.NodeCount("dev", "api", 9)
	s.ServiceList([]string{"api", "web"})

	assert.Equal(t, []ServiceInfo{{ID: "api", NodeCount: 3}, {ID: "web"}}, s.Snapshot().Services)
}

func TestNodeListRendersDisplayPID(t *testing.T) {
	s := New(10, "")
	s.Selected(subscription.Selection{Cluster: "prod", Service: "api"})
	s.NodeList("prod", "api", []protocol.Node{{Host: "n1", IP: "10.0.0.1", Port: 9000}, {PID: "42", Host: "n2"}})
	s.NodeList("prod", "web", []protocol.Node{{Host: "other"}})

	nodes := s.Snapshot().Nodes
	require.Len(t, nodes, 2)
	assert.Equal(t, NodeInfo{PID: "--", Host: "n1", IP: "10.0.0.1", Port: 9000}, nodes[0])
	assert.Equal(t, "42", nodes[1].PID)
}

func TestSaveAndLoadFragment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.json")

	s := New(10, path)
	s.SetConnection("open", "ws://backend:33033/ws")
	s.SetFragment("prod/api")
	s.AddLog("INFO", "Test", "not persisted")

	_, err := os.Stat(path)
	require.NoError(t, err)

	restored := New(10, path)
	assert.Equal(t, "prod/api", restored.Fragment())
	assert.Equal(t, "", restored.BackendURI(), "connection status is transient")
	assert.Empty(t, restored.Snapshot().Logs)
}

func TestLoadFromMissingFile(t *testing.T) {
	s := New(10, "")
	require.NoError(t, s.LoadFromFile(filepath.Join(t.TempDir(), "missing.json")))
	assert.Equal(t, "", s.Fragment())
}

func TestSetSubscriptionsNotifiesOnChange(t *testing.T) {
	s := New(10, "")
	s.SetSubscriptions([]string{"presence:/", "presence:/prod"})
	<-s.ChangeCh()

	s.SetSubscriptions([]string{"presence:/", "presence:/prod"})
	select {
	case <-s.ChangeCh():
		t.Fatal("unchanged subscriptions should not notify")
	default:
	}
	assert.Equal(t, []string{"presence:/", "presence:/prod"}, s.Snapshot().Subscriptions)
}
