package relay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/relay/internal/invitestore"
	"github.com/streamspace-dev/relay/internal/registry"
	"github.com/streamspace-dev/relay/internal/sessionstore"
	"github.com/streamspace-dev/relay/internal/userstore"
)

type fakeSender struct {
	id     string
	sent   []registry.Event
	full   bool
	closed bool
}

func newFakeSender(id string) *fakeSender { return &fakeSender{id: id} }

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(ev registry.Event) bool {
	f.sent = append(f.sent, ev)
	return true
}

func (f *fakeSender) SendVolatile(ev registry.Event) bool {
	if f.full {
		return false
	}
	f.sent = append(f.sent, ev)
	return true
}

func (f *fakeSender) Close() { f.closed = true }

func (f *fakeSender) eventNames() []string {
	names := make([]string, len(f.sent))
	for i, ev := range f.sent {
		names[i] = ev.Name
	}
	return names
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *userstore.Store) {
	t.Helper()
	dir := t.TempDir()
	users := userstore.New(filepath.Join(dir, "users.json"))
	require.NoError(t, users.Init())
	sessions := sessionstore.New()
	invites := invitestore.New()
	return New(registry.New(), users, sessions, invites), users
}

func TestAgentActiveEvictsPriorAndBroadcastsOnline(t *testing.T) {
	d, users := newTestDispatcher(t)
	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	machineID := machines[0].ID
	agentKey := machines[0].AgentKey

	viewer := newFakeSender("viewer-1")
	d.Registry.Join(registry.ViewersGroup(agentKey), viewer)

	old := newFakeSender("agent-old")
	d.AgentActive(&registry.AgentConnection{AgentKey: agentKey, MachineID: machineID, UserID: "kingpin", Sock: old})
	assert.Contains(t, viewer.eventNames(), EventAgentStatus)

	fresh := newFakeSender("agent-new")
	d.AgentActive(&registry.AgentConnection{AgentKey: agentKey, MachineID: machineID, UserID: "kingpin", Sock: fresh})

	require.Len(t, old.sent, 1)
	assert.Equal(t, EventKicked, old.sent[0].Name)
	assert.Equal(t, KickReasonEvicted, old.sent[0].Payload.(KickedPayload).Reason)
	assert.True(t, old.closed, "evicted agent socket must be closed so its read loop stops broadcasting")

	conn, ok := d.Registry.GetAgent(agentKey)
	require.True(t, ok)
	assert.Equal(t, fresh.ID(), conn.Sock.ID())
	assert.False(t, fresh.closed, "the replacement connection must not be closed")
}

func TestViewerAttachStartsStreamingOnFirstViewer(t *testing.T) {
	d, users := newTestDispatcher(t)
	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	agentKey := machines[0].AgentKey

	agentSock := newFakeSender("agent-1")
	d.AgentActive(&registry.AgentConnection{AgentKey: agentKey, MachineID: machines[0].ID, UserID: "kingpin", Sock: agentSock})

	viewer := newFakeSender("viewer-1")
	d.ViewerAttach(viewer, &AuthResult{Role: RoleViewer, UserID: "kingpin", AgentKey: agentKey, MachineID: machines[0].ID})

	assert.Contains(t, agentSock.eventNames(), EventStartStreaming)
	assert.Contains(t, viewer.eventNames(), EventAgentStatus)
}

func TestViewerDetachStopsStreamingWhenLastViewerLeaves(t *testing.T) {
	d, users := newTestDispatcher(t)
	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	agentKey := machines[0].AgentKey

	agentSock := newFakeSender("agent-1")
	d.AgentActive(&registry.AgentConnection{AgentKey: agentKey, MachineID: machines[0].ID, UserID: "kingpin", Sock: agentSock})

	viewer := newFakeSender("viewer-1")
	auth := &AuthResult{Role: RoleViewer, UserID: "kingpin", AgentKey: agentKey, MachineID: machines[0].ID}
	d.ViewerAttach(viewer, auth)
	d.ViewerDetach(viewer, auth)

	assert.Contains(t, agentSock.eventNames(), EventStopStreaming)
}

func TestRouteViewerEventDropsInvalidPayloadSilently(t *testing.T) {
	d, users := newTestDispatcher(t)
	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	agentKey := machines[0].AgentKey

	agentSock := newFakeSender("agent-1")
	d.AgentActive(&registry.AgentConnection{AgentKey: agentKey, MachineID: machines[0].ID, UserID: "kingpin", Sock: agentSock})

	auth := &AuthResult{Role: RoleViewer, AgentKey: agentKey}
	d.RouteViewerEvent(auth, InboundMessage{
		Event:   EventMouseMove,
		Payload: map[string]any{"x": "NaN", "y": 10.0},
	})

	assert.Empty(t, agentSock.sent, "invalid mouse-move must produce zero agent-bound events")
}

func TestRouteViewerEventForwardsValidPayload(t *testing.T) {
	d, users := newTestDispatcher(t)
	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)
	agentKey := machines[0].AgentKey

	agentSock := newFakeSender("agent-1")
	d.AgentActive(&registry.AgentConnection{AgentKey: agentKey, MachineID: machines[0].ID, UserID: "kingpin", Sock: agentSock})

	auth := &AuthResult{Role: RoleViewer, AgentKey: agentKey}
	d.RouteViewerEvent(auth, InboundMessage{
		Event:   EventMouseMove,
		Payload: map[string]any{"x": 10.0, "y": 20.0},
	})

	require.Len(t, agentSock.sent, 1)
	assert.Equal(t, EventMouseMove, agentSock.sent[0].Name)
}

func TestLatencyPongEchoesWithoutAgent(t *testing.T) {
	viewer := newFakeSender("viewer-1")
	LatencyPong(viewer, 12345.0)

	require.Len(t, viewer.sent, 1)
	assert.Equal(t, EventLatencyPong, viewer.sent[0].Name)
	assert.Equal(t, 12345.0, viewer.sent[0].Payload.(LatencyPayload).T)
}

func TestAuthenticateAgentRejectsUnknownKey(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Authenticate(Handshake{Role: "agent", AgentKey: "does-not-exist"})
	assert.Error(t, err)
}

func TestAuthenticateViewerByInviteToken(t *testing.T) {
	d, users := newTestDispatcher(t)
	machines, err := users.GetMachines("kingpin")
	require.NoError(t, err)

	inv := d.Invites.Create("kingpin", machines[0].ID, "Kingpin", machines[0].Name)
	auth, err := d.Authenticate(Handshake{Role: "viewer", InviteToken: inv.Token})
	require.NoError(t, err)
	assert.Equal(t, machines[0].AgentKey, auth.AgentKey)
}

func TestDashboardAttachSendsMachineStatusPerMachine(t *testing.T) {
	d, users := newTestDispatcher(t)
	_, err := users.AddMachine("kingpin", "second-machine")
	require.NoError(t, err)

	dash := newFakeSender("dash-1")
	d.DashboardAttach(dash, &AuthResult{Role: RoleDashboard, UserID: "kingpin"})

	assert.Len(t, dash.sent, 2)
	for _, ev := range dash.sent {
		assert.Equal(t, EventMachineStatus, ev.Name)
	}
}
