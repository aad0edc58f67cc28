// Package httpapi implements the HTTP Control Plane (spec.md §4.9) and the
// WebSocket upgrade endpoint that hands connections off to the Relay
// Dispatcher.
//
// Grounded on the teacher's cmd/main.go router assembly (middleware
// ordering, route grouping, CORS) and internal/handlers' gin.Context
// conventions, generalized from StreamSpace's session/org resources to the
// relay's user/machine/invite resources.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/relay/internal/apierrors"
	"github.com/streamspace-dev/relay/internal/config"
	"github.com/streamspace-dev/relay/internal/invitestore"
	"github.com/streamspace-dev/relay/internal/middleware"
	"github.com/streamspace-dev/relay/internal/ratelimit"
	"github.com/streamspace-dev/relay/internal/registry"
	"github.com/streamspace-dev/relay/internal/relay"
	"github.com/streamspace-dev/relay/internal/sessionstore"
	"github.com/streamspace-dev/relay/internal/userstore"
)

// Server bundles the stores, registry, and dispatcher the HTTP handlers and
// the WebSocket upgrade endpoint need. Construct with New and mount with
// Router.
type Server struct {
	cfg        *config.Config
	users      *userstore.Store
	sessions   *sessionstore.Store
	invites    *invitestore.Store
	registry   *registry.Registry
	dispatcher *relay.Dispatcher
	loginLimit *ratelimit.LoginLimiter
	wakeLimit  *ratelimit.WakeLimiter
	bootTime   time.Time
}

// New builds a Server over the given config and stores.
func New(cfg *config.Config, users *userstore.Store, sessions *sessionstore.Store, invites *invitestore.Store, reg *registry.Registry, dispatcher *relay.Dispatcher, bootTime time.Time) *Server {
	return &Server{
		cfg:        cfg,
		users:      users,
		sessions:   sessions,
		invites:    invites,
		registry:   reg,
		dispatcher: dispatcher,
		loginLimit: ratelimit.NewLoginLimiter(cfg.MaxLoginAttempts, time.Duration(cfg.LockoutMinutes)*time.Minute),
		wakeLimit:  ratelimit.NewWakeLimiter(5),
		bootTime:   bootTime,
	}
}

// Router assembles the full gin engine: ambient middleware, the HTTP
// control plane, and the WebSocket upgrade endpoint.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.StructuredLogger())
	r.Use(middleware.DefaultSizeLimiter())
	r.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	r.Use(corsMiddleware())

	api := r.Group("/api")
	{
		api.POST("/login", s.loginRateLimited(), s.handleLogin)
		api.POST("/logout", s.handleLogout)
		api.GET("/session", s.handleGetSession)

		api.GET("/machines/:userId", s.requireSession(), s.handleListMachines)
		api.POST("/machines/:userId", s.requireSession(), s.handleAddMachine)
		api.PATCH("/machines/:userId/:machineId", s.requireSession(), s.handleRenameMachine)
		api.DELETE("/machines/:userId/:machineId", s.requireSession(), s.handleDeleteMachine)
		api.PATCH("/machines/:userId/:machineId/mac", s.requireSession(), s.handleSetMac)
		api.POST("/machines/:userId/:machineId/wake", s.requireSession(), s.handleWake)

		api.POST("/invites/:userId/:machineId", s.requireSession(), s.handleCreateInvite)
		api.GET("/invite-info/:inviteToken", s.handleInviteInfo)
		api.DELETE("/invites/:userId/:inviteToken", s.requireSession(), s.handleRevokeInvite)

		api.GET("/setup/:agentKey", s.handleSetupScript)
		api.GET("/setup-win/:agentKey", s.handleSetupWinScript)

		api.GET("/health", s.handleHealth)
	}

	r.GET("/agent-files/*filepath", s.handleAgentFiles)
	r.GET("/ws", s.handleWebSocket)

	r.NoRoute(func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/")
	})

	return r
}

// corsMiddleware follows the teacher's CORS handling, generalized to the
// relay's own WebSocket upgrade endpoint. There is no allow-list: any request
// Origin is echoed back with credentials allowed.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// respondError writes the relay's standard {error,code} envelope for any
// AppError, falling back to a generic 500 for anything else.
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apierrors.AppError); ok {
		c.JSON(appErr.StatusCode(), appErr.Response())
		return
	}
	c.JSON(http.StatusInternalServerError, apierrors.ErrorResponse{Error: "internal error"})
}

// sourceKey picks the rate limiter key: the apparent client address.
func sourceKey(c *gin.Context) string {
	return c.ClientIP()
}

