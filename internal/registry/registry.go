// Package registry implements the Connection Registry (spec.md §4.7): the
// single source of truth for which agent-keys are currently Active and
// which sockets belong to which broadcast groups.
//
// Grounded on the teacher's internal/websocket/agent_hub.go for the
// singleton-per-key eviction idiom (handleRegister closes a prior
// connection for the same key before installing the new one) and on
// internal/websocket/hub.go's Broadcast for the drop-on-full-queue
// "volatile" send used for frames. Unlike the teacher's channel-driven
// hub, membership here is a plain mutex-guarded map: spec.md §5 requires
// only short, non-blocking operations with no actor goroutine of its own,
// and group broadcast must not hold a lock while writing to a socket.
package registry

import "sync"

// Event is a named, relay-level message handed to a Sender for delivery.
type Event struct {
	Name    string
	Payload any
}

// Sender is the minimal outbound capability the Registry needs from a
// socket. Concrete websocket connections implement it; tests can fake it.
type Sender interface {
	// ID uniquely identifies this socket, used for set membership.
	ID() string
	// Send enqueues a reliably-delivered event. Returns false if the
	// socket is closed before the event could be queued.
	Send(Event) bool
	// SendVolatile enqueues a drop-eligible event (frames): if the
	// outbound queue is full, the event is discarded rather than queued.
	SendVolatile(Event) bool
	// Close tears down the underlying connection. Safe to call more than
	// once. Used to drop an evicted agent socket rather than leaving its
	// read loop running against a key it no longer owns (spec.md §4.7
	// invariant 1, §8-1).
	Close()
}

// AgentConnection is the registry's record for one Active agent socket.
type AgentConnection struct {
	AgentKey  string
	MachineID string
	UserID    string
	Sock      Sender

	mu         sync.Mutex
	screenInfo any
	hasScreen  bool
}

// SetScreenInfo caches the most recent screen-info payload emitted by this
// agent, so a newly attaching viewer can be shown it immediately
// (spec.md §4.7 invariant 3).
func (c *AgentConnection) SetScreenInfo(info any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenInfo = info
	c.hasScreen = true
}

// ScreenInfo returns the cached screen-info payload, if any has been seen.
func (c *AgentConnection) ScreenInfo() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screenInfo, c.hasScreen
}

// Registry tracks Active agent connections and group membership.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*AgentConnection
	groups map[string]map[Sender]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		agents: make(map[string]*AgentConnection),
		groups: make(map[string]map[Sender]struct{}),
	}
}

// ViewersGroup names the group of sockets watching a given machine's agent.
func ViewersGroup(agentKey string) string { return "viewers:" + agentKey }

// UserGroup names the group of all non-agent sockets (viewers + dashboards)
// belonging to a user.
func UserGroup(userID string) string { return "user:" + userID }

// RegisterAgent installs conn as the Active connection for its AgentKey,
// evicting and returning any prior connection's Sender so the caller can
// send it a kicked event and close it (spec.md §4.7 invariant 1, §8-1).
func (r *Registry) RegisterAgent(conn *AgentConnection) (evicted Sender, hadPrior bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.agents[conn.AgentKey]; ok {
		evicted, hadPrior = prior.Sock, true
	}
	r.agents[conn.AgentKey] = conn
	return evicted, hadPrior
}

// UnregisterAgent removes the Active connection for agentKey, but only if
// it is still owned by sock — guards against a stale disconnect racing a
// newer registration that already evicted it.
func (r *Registry) UnregisterAgent(agentKey string, sock Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.agents[agentKey]
	if !ok || cur.Sock.ID() != sock.ID() {
		return false
	}
	delete(r.agents, agentKey)
	return true
}

// GetAgent returns the Active connection for agentKey, if any.
func (r *Registry) GetAgent(agentKey string) (*AgentConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.agents[agentKey]
	return conn, ok
}

// Join adds sock to groupID's membership and returns the resulting group
// size, computed under the same lock as the insert so a caller deciding
// whether this was the first member to join never races another concurrent
// Join (spec.md §8 property 2's 0→1 edge).
func (r *Registry) Join(groupID string, sock Sender) (size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.groups[groupID]
	if !ok {
		members = make(map[Sender]struct{})
		r.groups[groupID] = members
	}
	members[sock] = struct{}{}
	return len(members)
}

// Leave removes sock from groupID's membership, pruning the group entirely
// once empty.
func (r *Registry) Leave(groupID string, sock Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(groupID, sock)
}

func (r *Registry) leaveLocked(groupID string, sock Sender) {
	members, ok := r.groups[groupID]
	if !ok {
		return
	}
	delete(members, sock)
	if len(members) == 0 {
		delete(r.groups, groupID)
	}
}

// LeaveAll removes sock from every group listed, used on socket disconnect
// to guarantee membership is fully cleaned (spec.md §4.7 invariant 2).
func (r *Registry) LeaveAll(sock Sender, groupIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range groupIDs {
		r.leaveLocked(g, sock)
	}
}

// GroupSize reports the current membership count of groupID.
func (r *Registry) GroupSize(groupID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups[groupID])
}

// members snapshots a group's current sockets under lock, so delivery
// itself never holds the registry mutex (spec.md §5).
func (r *Registry) members(groupID string) []Sender {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.groups[groupID]
	out := make([]Sender, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

// Broadcast reliably delivers ev to every member of groupID.
func (r *Registry) Broadcast(groupID string, ev Event) {
	for _, s := range r.members(groupID) {
		s.Send(ev)
	}
}

// BroadcastVolatile delivers ev to every member of groupID, dropping for
// any member whose outbound queue is full rather than blocking or
// buffering (the "volatile" semantics spec.md §5 requires for frames).
func (r *Registry) BroadcastVolatile(groupID string, ev Event) {
	for _, s := range r.members(groupID) {
		s.SendVolatile(ev)
	}
}

// AllSenders snapshots every socket the Registry currently knows about —
// Active agents plus every group member — deduplicated by Sender identity,
// for the shutdown-notification fan-out (spec.md §4.11).
func (r *Registry) AllSenders() []Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[Sender]struct{})
	for _, conn := range r.agents {
		seen[conn.Sock] = struct{}{}
	}
	for _, members := range r.groups {
		for s := range members {
			seen[s] = struct{}{}
		}
	}
	out := make([]Sender, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// BroadcastAll reliably delivers ev to every known socket.
func (r *Registry) BroadcastAll(ev Event) {
	for _, s := range r.AllSenders() {
		s.Send(ev)
	}
}
