package api

import (
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/larkin1301/hvcm/internal/auth"
)

// identityKey is the gin context key the session middleware stores the
// authenticated identity under.
const identityKey = "identity"

// accessLog emits one structured log line per request.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// trackRequests records prometheus request metrics.
func (s *Server) trackRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		s.metrics.api.RequestsInFlight.Inc()
		timer := prometheus.NewTimer(s.metrics.api.RequestDuration.WithLabelValues(c.Request.Method, route))

		c.Next()

		timer.ObserveDuration()
		s.metrics.api.RequestsInFlight.Dec()
		s.metrics.api.RequestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

// requireSession verifies the session cookie and stores the identity on
// the context. Verification completes before any scoped query runs.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(auth.SessionCookieName)
		if err != nil {
			s.rejectAuth(c, auth.ErrUnauthorized("no session"))
			return
		}

		identity, err := s.sessions.VerifySession(token)
		if err != nil {
			s.rejectAuth(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// requireRole rejects authenticated identities whose role is outside
// the allowed set.
func (s *Server) requireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		if identity == nil {
			s.rejectAuth(c, auth.ErrUnauthorized("no session"))
			return
		}

		if !slices.Contains(allowed, identity.Role) {
			s.rejectAuth(c, auth.ErrForbidden("role not permitted"))
			return
		}

		c.Next()
	}
}

// currentIdentity returns the identity stored by requireSession, or nil.
func currentIdentity(c *gin.Context) *auth.Identity {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, ok := value.(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}
