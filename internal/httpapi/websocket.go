package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/relay/internal/logger"
	"github.com/streamspace-dev/relay/internal/registry"
	"github.com/streamspace-dev/relay/internal/relay"
)

// upgrader allows any origin: the relay authenticates on the handshake
// payload itself (agentKey/token/inviteToken), not on Origin, and agents in
// particular have no browser origin at all.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and hands it to the Relay
// Dispatcher, whose AuthResult.Role decides which of the three socket-role
// state machines (spec.md §4.8) drives the rest of its lifetime.
func (s *Server) handleWebSocket(c *gin.Context) {
	hs := relay.Handshake{
		Token:       c.Query("token"),
		Role:        c.Query("role"),
		AgentKey:    c.Query("agentKey"),
		MachineID:   c.Query("machineId"),
		InviteToken: c.Query("inviteToken"),
	}

	auth, err := s.dispatcher.Authenticate(hs)
	if err != nil {
		respondError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Dispatcher().Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := relay.NewConn(ws)
	go conn.WritePump()

	switch auth.Role {
	case relay.RoleAgent:
		s.serveAgent(conn, auth)
	case relay.RoleViewer:
		s.serveViewer(conn, auth)
	default:
		s.serveDashboard(conn, auth)
	}
}

func (s *Server) serveAgent(sock *relay.Conn, auth *relay.AuthResult) {
	agentConn := &registry.AgentConnection{
		AgentKey:  auth.AgentKey,
		MachineID: auth.MachineID,
		UserID:    auth.UserID,
		Sock:      sock,
	}
	s.dispatcher.AgentActive(agentConn)
	defer s.dispatcher.AgentOffline(agentConn, sock)

	sock.ReadPump(func(msg relay.InboundMessage) {
		switch msg.Event {
		case relay.EventScreenInfo:
			s.dispatcher.AgentScreenInfo(agentConn, msg.Payload)
		case relay.EventFrame:
			s.dispatcher.AgentFrame(auth.AgentKey, msg.Payload)
		case relay.EventDisplaysList:
			s.dispatcher.AgentDisplaysList(auth.AgentKey, msg.Payload)
		case relay.EventClipboardContent:
			s.dispatcher.AgentClipboardContent(auth.AgentKey, msg.Payload)
		}
	})
}

func (s *Server) serveViewer(sock *relay.Conn, auth *relay.AuthResult) {
	s.dispatcher.ViewerAttach(sock, auth)
	defer s.dispatcher.ViewerDetach(sock, auth)

	sock.ReadPump(func(msg relay.InboundMessage) {
		if msg.Event == relay.EventLatencyPing {
			if t, ok := msg.Payload["t"].(float64); ok {
				relay.LatencyPong(sock, t)
			}
			return
		}
		s.dispatcher.RouteViewerEvent(auth, msg)
	})
}

func (s *Server) serveDashboard(sock *relay.Conn, auth *relay.AuthResult) {
	s.dispatcher.DashboardAttach(sock, auth)
	defer s.dispatcher.DashboardDetach(sock, auth)

	sock.ReadPump(func(relay.InboundMessage) {
		// Dashboards are read-only observers of machine-status; any inbound
		// message is ignored.
	})
}
