package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/larkin1301/hvcm/internal/auth"
	"github.com/larkin1301/hvcm/internal/ingest"
)

// registerRequest is the body for POST /register.
type registerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganisationID *uint  `json:"organisation_id"`
}

// loginRequest is the body for POST /login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleIngest accepts one telemetry payload and commits it atomically:
// one device upsert plus one row in each telemetry table, or nothing.
func (s *Server) handleIngest(c *gin.Context) {
	var payload ingest.TelemetryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.countPayload("http", "validation_error")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid payload",
			"details": err.Error(),
		})
		return
	}

	report, err := ingest.Validate(&payload)
	if err != nil {
		s.countPayload("http", "validation_error")
		var validationErr *ingest.ValidationError
		if errors.As(err, &validationErr) && s.metrics.ingest != nil {
			s.metrics.ingest.ValidationErrors.WithLabelValues(string(validationErr.Kind)).Inc()
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid payload",
			"details": err.Error(),
		})
		return
	}

	var timer *prometheus.Timer
	if s.metrics.ingest != nil {
		timer = prometheus.NewTimer(s.metrics.ingest.WriteDuration)
	}
	err = s.writer.Ingest(c.Request.Context(), report)
	if timer != nil {
		timer.ObserveDuration()
	}
	if err != nil {
		s.countPayload("http", "storage_error")
		s.logger.Error("ingest failed",
			"device_id", report.DeviceID,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to insert data",
			"details": err.Error(),
		})
		return
	}

	s.countPayload("http", "success")
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// handleRegister creates a user account.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email, and password required"})
		return
	}

	_, err := s.credentials.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.OrganisationID)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		s.logger.Error("registration failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "registration failed",
			"details": err.Error(),
		})
		return
	}

	c.Status(http.StatusCreated)
}

// handleLogin authenticates credentials and sets the session cookie.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	identity, err := s.credentials.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.logger.Error("login failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "login failed",
			"details": err.Error(),
		})
		return
	}

	token, err := s.sessions.CreateSession(identity)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.SetCookie(auth.SessionCookieName, token, int((24 * time.Hour).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleLogout clears the session cookie. The token itself simply
// expires; there is no server-side revocation list.
func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(auth.SessionCookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusOK)
}

// handlePingDB reports storage connectivity with the engine's current time.
func (s *Server) handlePingDB(c *gin.Context) {
	serverTime, err := s.pool.PingTime(c.Request.Context())
	if err != nil {
		s.logger.Error("db ping failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "database connection failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"serverTime": serverTime,
	})
}

// handleDevices returns the latest snapshot for every device in the
// caller's scope.
func (s *Server) handleDevices(c *gin.Context) {
	scope, err := auth.ResolveScope(currentIdentity(c))
	if err != nil {
		s.rejectAuth(c, err)
		return
	}

	snapshots, err := s.queries.LatestPositions(c.Request.Context(), scope)
	if err != nil {
		s.logger.Error("failed to fetch devices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to fetch devices",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, snapshots)
}

// handleHistory returns the ordered GPS history for one device. An
// out-of-scope device id yields an empty array, not an error.
func (s *Server) handleHistory(c *gin.Context) {
	scope, err := auth.ResolveScope(currentIdentity(c))
	if err != nil {
		s.rejectAuth(c, err)
		return
	}

	deviceID := c.Param("device_id")
	points, err := s.queries.History(c.Request.Context(), deviceID, scope)
	if err != nil {
		s.logger.Error("failed to fetch history", "device_id", deviceID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to fetch history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, points)
}

// rejectAuth maps an auth error to 401 or 403 and aborts the request.
func (s *Server) rejectAuth(c *gin.Context, err error) {
	kind := auth.ErrKindUnauthorized
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		kind = authErr.Kind
	}

	if s.metrics.api != nil {
		s.metrics.api.AuthFailures.WithLabelValues(string(kind)).Inc()
	}

	if kind == auth.ErrKindForbidden {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// countPayload increments the ingest payload counter when metrics are on.
func (s *Server) countPayload(source, status string) {
	if s.metrics.ingest != nil {
		s.metrics.ingest.PayloadsTotal.WithLabelValues(source, status).Inc()
	}
}
