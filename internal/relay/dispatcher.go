package relay

import (
	"github.com/streamspace-dev/relay/internal/apierrors"
	"github.com/streamspace-dev/relay/internal/invitestore"
	"github.com/streamspace-dev/relay/internal/logger"
	"github.com/streamspace-dev/relay/internal/registry"
	"github.com/streamspace-dev/relay/internal/sessionstore"
	"github.com/streamspace-dev/relay/internal/userstore"
	"github.com/streamspace-dev/relay/internal/validator"
)

// Role is the closed tagged variant spec.md §9 calls for in place of the
// source's string-typed roles. Dispatcher.Authenticate is the only
// constructor.
type Role int

const (
	RoleAgent Role = iota
	RoleViewer
	RoleDashboard
)

// AuthResult is what a successful handshake resolves to.
type AuthResult struct {
	Role        Role
	UserID      string
	DisplayName string
	AgentKey    string
	MachineID   string
}

// Dispatcher wires the Connection Registry to the User, Session, and
// Invite Stores to implement spec.md §4.8's state machines. It holds no
// socket-specific state itself — sockets own their lifetime and call into
// the Dispatcher's methods at each transition (spec.md §9: stores and
// registry are process-singleton but injected, not accessed globally).
type Dispatcher struct {
	Registry *registry.Registry
	Users    *userstore.Store
	Sessions *sessionstore.Store
	Invites  *invitestore.Store
}

// New builds a Dispatcher over the given stores and registry.
func New(reg *registry.Registry, users *userstore.Store, sessions *sessionstore.Store, invites *invitestore.Store) *Dispatcher {
	return &Dispatcher{Registry: reg, Users: users, Sessions: sessions, Invites: invites}
}

// Authenticate resolves a handshake into a role and identity, or an
// AuthFailed AppError if nothing in the handshake checks out. A session
// viewer whose machineId names no machine of that user gets a NotFound
// AppError instead.
func (d *Dispatcher) Authenticate(hs Handshake) (*AuthResult, error) {
	switch hs.Role {
	case "agent":
		return d.authenticateAgent(hs)
	case "dashboard":
		return d.authenticateDashboard(hs)
	default:
		// "viewer" or unspecified with a token/invite present; spec.md's
		// handshake fields are opaque to the transport, role is inferred
		// from what is present when not explicitly "agent"/"dashboard".
		return d.authenticateViewer(hs)
	}
}

func (d *Dispatcher) authenticateAgent(hs Handshake) (*AuthResult, error) {
	if hs.AgentKey == "" {
		return nil, apierrors.Unauthorized("agent handshake requires an agentKey")
	}
	user, machine, ok := d.Users.GetByAgentKey(hs.AgentKey)
	if !ok {
		return nil, apierrors.Unauthorized("unknown agent key")
	}
	return &AuthResult{
		Role:        RoleAgent,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		AgentKey:    hs.AgentKey,
		MachineID:   machine.ID,
	}, nil
}

func (d *Dispatcher) authenticateDashboard(hs Handshake) (*AuthResult, error) {
	sess, ok := d.Sessions.Validate(hs.Token)
	if !ok {
		return nil, apierrors.Unauthorized("invalid or expired session")
	}
	user, ok := d.Users.GetUser(sess.UserID)
	if !ok {
		return nil, apierrors.Unauthorized("unknown user")
	}
	return &AuthResult{Role: RoleDashboard, UserID: user.ID, DisplayName: user.DisplayName}, nil
}

func (d *Dispatcher) authenticateViewer(hs Handshake) (*AuthResult, error) {
	if hs.InviteToken != "" {
		inv, ok := d.Invites.Inspect(hs.InviteToken)
		if !ok {
			return nil, apierrors.Unauthorized("invalid or expired invite link")
		}
		machine, err := d.Users.GetMachine(inv.UserID, inv.MachineID)
		if err != nil {
			return nil, apierrors.Unauthorized("invite targets an unknown machine")
		}
		return &AuthResult{
			Role:        RoleViewer,
			UserID:      inv.UserID,
			DisplayName: inv.DisplayName,
			AgentKey:    machine.AgentKey,
			MachineID:   machine.ID,
		}, nil
	}

	if hs.Token == "" {
		return nil, apierrors.Unauthorized("viewer handshake requires a token or inviteToken")
	}
	sess, ok := d.Sessions.Validate(hs.Token)
	if !ok {
		return nil, apierrors.Unauthorized("invalid or expired session")
	}
	user, ok := d.Users.GetUser(sess.UserID)
	if !ok {
		return nil, apierrors.Unauthorized("unknown user")
	}
	machine, err := d.Users.GetMachine(user.ID, hs.MachineID)
	if err != nil {
		return nil, apierrors.NotFoundErr("unknown machine")
	}
	return &AuthResult{
		Role:        RoleViewer,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		AgentKey:    machine.AgentKey,
		MachineID:   machine.ID,
	}, nil
}

// AgentActive performs the Authenticating→Active transition (spec.md
// §4.8): evicts any prior connection for the same key, then broadcasts the
// machine coming online to the user and its current viewers.
func (d *Dispatcher) AgentActive(conn *registry.AgentConnection) {
	evicted, hadPrior := d.Registry.RegisterAgent(conn)
	if hadPrior && evicted != nil {
		evicted.Send(registry.Event{Name: EventKicked, Payload: KickedPayload{Reason: KickReasonEvicted}})
		evicted.Close()
	}

	d.Registry.Broadcast(registry.UserGroup(conn.UserID), registry.Event{
		Name:    EventMachineStatus,
		Payload: MachineStatusPayload{MachineID: conn.MachineID, Connected: true},
	})
	d.Registry.Broadcast(registry.ViewersGroup(conn.AgentKey), registry.Event{
		Name:    EventAgentStatus,
		Payload: AgentStatusPayload{Connected: true},
	})

	logger.Dispatcher().Info().Str("agentKey", conn.AgentKey).Str("machineId", conn.MachineID).Msg("agent active")
}

// AgentOffline runs when an agent socket exits. If sock still owns the
// registry entry (the Disconnected exit), the entry is removed and the
// machine going offline is broadcast. If sock was evicted, the evicting
// RegisterAgent call already replaced the entry, so this is a no-op and no
// offline status is broadcast.
func (d *Dispatcher) AgentOffline(conn *registry.AgentConnection, sock registry.Sender) {
	if !d.Registry.UnregisterAgent(conn.AgentKey, sock) {
		// Already replaced by a newer agent connection; that connection
		// owns the offline/online broadcast lifecycle now.
		return
	}

	d.Registry.Broadcast(registry.UserGroup(conn.UserID), registry.Event{
		Name:    EventMachineStatus,
		Payload: MachineStatusPayload{MachineID: conn.MachineID, Connected: false},
	})
	d.Registry.Broadcast(registry.ViewersGroup(conn.AgentKey), registry.Event{
		Name:    EventAgentStatus,
		Payload: AgentStatusPayload{Connected: false},
	})

	logger.Dispatcher().Info().Str("agentKey", conn.AgentKey).Str("machineId", conn.MachineID).Msg("agent offline")
}

// AgentScreenInfo caches the emission and fans it out to current viewers.
func (d *Dispatcher) AgentScreenInfo(conn *registry.AgentConnection, info any) {
	conn.SetScreenInfo(info)
	d.Registry.Broadcast(registry.ViewersGroup(conn.AgentKey), registry.Event{Name: EventScreenInfo, Payload: info})
}

// AgentFrame volatile-broadcasts a frame to the agent's viewers.
func (d *Dispatcher) AgentFrame(agentKey string, payload any) {
	d.Registry.BroadcastVolatile(registry.ViewersGroup(agentKey), registry.Event{Name: EventFrame, Payload: payload})
}

// AgentDisplaysList reliably broadcasts a displays-list to the agent's
// viewers.
func (d *Dispatcher) AgentDisplaysList(agentKey string, payload any) {
	d.Registry.Broadcast(registry.ViewersGroup(agentKey), registry.Event{Name: EventDisplaysList, Payload: payload})
}

// AgentClipboardContent reliably broadcasts clipboard content to viewers.
func (d *Dispatcher) AgentClipboardContent(agentKey string, payload any) {
	d.Registry.Broadcast(registry.ViewersGroup(agentKey), registry.Event{Name: EventClipboardContent, Payload: payload})
}

// ViewerAttach performs the Authenticating→Attached transition: joins both
// group namespaces, and tells the viewer and agent about each other's
// current presence (spec.md §4.8).
func (d *Dispatcher) ViewerAttach(sock registry.Sender, auth *AuthResult) {
	viewerCount := d.Registry.Join(registry.ViewersGroup(auth.AgentKey), sock)
	d.Registry.Join(registry.UserGroup(auth.UserID), sock)

	conn, ok := d.Registry.GetAgent(auth.AgentKey)
	if !ok {
		sock.Send(registry.Event{Name: EventAgentStatus, Payload: AgentStatusPayload{Connected: false}})
		return
	}

	sock.Send(registry.Event{Name: EventAgentStatus, Payload: AgentStatusPayload{Connected: true}})
	if info, has := conn.ScreenInfo(); has {
		sock.Send(registry.Event{Name: EventScreenInfo, Payload: info})
	}

	if viewerCount == 1 {
		conn.Sock.Send(registry.Event{Name: EventStartStreaming})
	}
}

// ViewerDetach performs the Attached→Detached transition: group membership
// is dropped, and if the viewer group is now empty the agent is told to
// stop capturing.
func (d *Dispatcher) ViewerDetach(sock registry.Sender, auth *AuthResult) {
	d.Registry.LeaveAll(sock, registry.ViewersGroup(auth.AgentKey), registry.UserGroup(auth.UserID))

	if d.Registry.GroupSize(registry.ViewersGroup(auth.AgentKey)) == 0 {
		if conn, ok := d.Registry.GetAgent(auth.AgentKey); ok {
			conn.Sock.Send(registry.Event{Name: EventStopStreaming})
		}
	}
}

// DashboardAttach joins the user group and pushes one machine-status per
// machine the user owns, reflecting current agent presence.
func (d *Dispatcher) DashboardAttach(sock registry.Sender, auth *AuthResult) {
	d.Registry.Join(registry.UserGroup(auth.UserID), sock)

	machines, err := d.Users.GetMachines(auth.UserID)
	if err != nil {
		return
	}
	for _, m := range machines {
		_, connected := d.Registry.GetAgent(m.AgentKey)
		sock.Send(registry.Event{
			Name:    EventMachineStatus,
			Payload: MachineStatusPayload{MachineID: m.ID, Connected: connected},
		})
	}
}

// DashboardDetach drops the socket from its user group.
func (d *Dispatcher) DashboardDetach(sock registry.Sender, auth *AuthResult) {
	d.Registry.LeaveAll(sock, registry.UserGroup(auth.UserID))
}

// RouteViewerEvent validates and forwards a viewer-originated event to the
// unique AgentConnection for auth.AgentKey, if present. Invalid payloads
// and absent agents are both silent no-ops (spec.md §4.6, §7).
func (d *Dispatcher) RouteViewerEvent(auth *AuthResult, msg InboundMessage) {
	if !validateViewerEvent(msg) {
		return
	}
	conn, ok := d.Registry.GetAgent(auth.AgentKey)
	if !ok {
		return
	}
	conn.Sock.Send(registry.Event{Name: msg.Event, Payload: msg.Payload})
}

// LatencyPong answers a viewer's latency-ping immediately, without ever
// involving the agent (spec.md §4.8, §8 invariant 5).
func LatencyPong(sock registry.Sender, t float64) {
	sock.Send(registry.Event{Name: EventLatencyPong, Payload: LatencyPayload{T: t}})
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func validateViewerEvent(msg InboundMessage) bool {
	p := msg.Payload
	switch msg.Event {
	case EventMouseMove:
		x, okx := asFloat(p["x"])
		y, oky := asFloat(p["y"])
		return okx && oky && validator.MouseMove(x, y)

	case EventMouseClick, EventMouseDoubleClick, EventMouseRightClick, EventMouseDown, EventMouseUp:
		x, okx := asFloat(p["x"])
		y, oky := asFloat(p["y"])
		if !okx || !oky {
			return false
		}
		button, _ := asString(p["button"])
		if button == "" {
			button = string(validator.ButtonLeft)
		}
		return validator.MouseClick(x, y, validator.MouseButton(button))

	case EventMouseScroll:
		dx, okx := asFloat(p["deltaX"])
		dy, oky := asFloat(p["deltaY"])
		return okx && oky && validator.MouseScroll(dx, dy)

	case EventKeyPress:
		key, ok := asString(p["key"])
		if !ok {
			return false
		}
		var modifiers []string
		if raw, has := p["modifiers"]; has {
			list, ok := raw.([]any)
			if !ok {
				return false
			}
			for _, m := range list {
				s, ok := asString(m)
				if !ok {
					return false
				}
				modifiers = append(modifiers, s)
			}
		}
		return validator.KeyPress(key, modifiers)

	case EventKeyType:
		text, ok := asString(p["text"])
		return ok && validator.KeyType(text)

	case EventUpdateQuality:
		q, ok := p["quality"].(float64)
		return ok && validator.QualityUpdate(int(q))

	case EventUpdateFPS:
		f, ok := p["fps"].(float64)
		return ok && validator.FPSUpdate(int(f))

	case EventListScreens, EventSwitchScreen, EventClipboardWrite, EventClipboardRead:
		return true

	default:
		return false
	}
}
