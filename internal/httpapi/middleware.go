package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/relay/internal/apierrors"
)

const sessionUserKey = "sessionUser"

// requireSession validates the Authorization bearer token against the
// Session Store and stores the resolved userId in the context, or aborts
// with 401 (spec.md §4.9).
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, apierrors.Unauthorized("missing session token"))
			c.Abort()
			return
		}
		sess, ok := s.sessions.Validate(token)
		if !ok {
			respondError(c, apierrors.Unauthorized("invalid or expired session"))
			c.Abort()
			return
		}
		c.Set(sessionUserKey, sess.UserID)
		c.Next()
	}
}

// loginRateLimited rejects a request up front if the source is currently
// locked out, before the handler ever touches the User Store.
func (s *Server) loginRateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.loginLimit.Allow(sourceKey(c)); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	return c.Query("token")
}

// requireOwner checks the session's userId matches the :userId path
// param, returning Forbidden otherwise (spec.md §4.9, §8 invariant 3).
func requireOwner(c *gin.Context) (string, bool) {
	userID := c.Param("userId")
	sessionUser := c.GetString(sessionUserKey)
	if sessionUser != userID {
		respondError(c, apierrors.ForbiddenErr("session does not belong to this user"))
		c.Abort()
		return "", false
	}
	return userID, true
}
