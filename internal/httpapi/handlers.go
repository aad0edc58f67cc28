package httpapi

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/relay/internal/apierrors"
	"github.com/streamspace-dev/relay/internal/logger"
	"github.com/streamspace-dev/relay/internal/models"
	"github.com/streamspace-dev/relay/internal/wol"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:\-]){5}[0-9A-Fa-f]{2}$`)
var ipv4Pattern = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.MalformedErr("invalid request body"))
		return
	}

	user, ok := s.users.AuthenticateByPassword(req.Password)
	if !ok {
		s.loginLimit.RecordFailure(sourceKey(c))
		respondError(c, apierrors.Unauthorized("invalid password"))
		return
	}
	s.loginLimit.RecordSuccess(sourceKey(c))

	sess := s.sessions.Create(user.ID)
	c.JSON(http.StatusOK, models.LoginResponse{
		Token:       sess.Token,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		s.sessions.Delete(token)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetSession(c *gin.Context) {
	token := bearerToken(c)
	sess, ok := s.sessions.Validate(token)
	if !ok {
		respondError(c, apierrors.Unauthorized("invalid or expired session"))
		return
	}
	user, ok := s.users.GetUser(sess.UserID)
	if !ok {
		respondError(c, apierrors.Unauthorized("unknown user"))
		return
	}
	c.JSON(http.StatusOK, models.SessionResponse{UserID: user.ID, DisplayName: user.DisplayName})
}

func (s *Server) handleListMachines(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	machines, err := s.users.GetMachines(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

func (s *Server) handleAddMachine(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	var req models.AddMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.MalformedErr("invalid request body"))
		return
	}
	m, err := s.users.AddMachine(userID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) handleRenameMachine(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	var req models.RenameMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.MalformedErr("invalid request body"))
		return
	}
	m, err := s.users.RenameMachine(userID, c.Param("machineId"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleDeleteMachine(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	if err := s.users.RemoveMachine(userID, c.Param("machineId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetMac(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	var req models.SetMacRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.MalformedErr("invalid request body"))
		return
	}
	if req.MacAddress != nil && *req.MacAddress != "" && !macPattern.MatchString(*req.MacAddress) {
		respondError(c, apierrors.MalformedErr("malformed MAC address"))
		return
	}
	if req.BroadcastAddress != nil && *req.BroadcastAddress != "" && !ipv4Pattern.MatchString(*req.BroadcastAddress) {
		respondError(c, apierrors.MalformedErr("malformed broadcast address"))
		return
	}
	m, err := s.users.SetMacAddress(userID, c.Param("machineId"), req.MacAddress, req.BroadcastAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleWake(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	if err := s.wakeLimit.Allow(sourceKey(c)); err != nil {
		respondError(c, err)
		return
	}

	machine, err := s.users.GetMachine(userID, c.Param("machineId"))
	if err != nil {
		respondError(c, err)
		return
	}

	if _, online := s.registry.GetAgent(machine.AgentKey); online {
		c.JSON(http.StatusOK, models.WakeResponse{OK: true, AlreadyOnline: true})
		return
	}

	if machine.MacAddress == nil || *machine.MacAddress == "" {
		respondError(c, apierrors.MalformedErr("machine has no MAC address configured"))
		return
	}
	broadcast := s.cfg.WoLBroadcastAddr
	if machine.BroadcastAddress != nil && *machine.BroadcastAddress != "" {
		broadcast = *machine.BroadcastAddress
	}

	if err := wol.Send(*machine.MacAddress, broadcast); err != nil {
		logger.WoL().Error().Err(err).Str("machineId", machine.ID).Msg("wake-on-lan send failed")
		c.JSON(http.StatusOK, models.WakeResponse{OK: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.WakeResponse{
		OK:      true,
		Message: "Wake-on-LAN packet sent to " + *machine.MacAddress,
	})
}

func (s *Server) handleCreateInvite(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	machine, err := s.users.GetMachine(userID, c.Param("machineId"))
	if err != nil {
		respondError(c, err)
		return
	}
	user, _ := s.users.GetUser(userID)

	inv := s.invites.Create(userID, machine.ID, user.DisplayName, machine.Name)
	c.JSON(http.StatusCreated, models.InviteResponse{Token: inv.Token})
}

func (s *Server) handleInviteInfo(c *gin.Context) {
	inv, ok := s.invites.Inspect(c.Param("inviteToken"))
	if !ok {
		respondError(c, apierrors.Unauthorized("Invalid or expired invite link"))
		return
	}
	c.JSON(http.StatusOK, models.InviteInfoResponse{
		DisplayName: inv.DisplayName,
		MachineName: inv.MachineName,
		MachineID:   inv.MachineID,
	})
}

func (s *Server) handleRevokeInvite(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}
	if err := s.invites.Revoke(userID, c.Param("inviteToken")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealth(c *gin.Context) {
	var mem runtimeMemStats
	mem.read()

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:   "ok",
		Uptime:   humanizeUptime(s.bootTime),
		Sessions: s.sessions.Count(),
		Agents:   s.agentCount(),
		Memory:   mem.allocBytes,
	})
}

func (s *Server) agentCount() int {
	count := 0
	for _, u := range s.users.AllUsers() {
		for _, m := range u.Machines {
			if _, ok := s.registry.GetAgent(m.AgentKey); ok {
				count++
			}
		}
	}
	return count
}
