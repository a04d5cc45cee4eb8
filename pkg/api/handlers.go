package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Version and GitCommit are set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Database  string    `json:"database"`
}

func (s *Server) pingDatabase(c *gin.Context) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	return s.db.Ping(ctx)
}

// healthHandler handles health check requests
func (s *Server) healthHandler(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
		Database:  "ok",
	}
	if err := s.pingDatabase(c); err != nil {
		s.log.WithError(err).Warn("Database health check failed")
		response.Status = "unhealthy"
		response.Database = "error"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool              `json:"ready"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// readinessHandler handles readiness check requests
func (s *Server) readinessHandler(c *gin.Context) {
	services := map[string]string{"database": "ready", "approvals": "ready"}
	ready := true

	if err := s.pingDatabase(c); err != nil {
		services["database"] = "not ready"
		ready = false
	}
	if s.services.Approvals == nil {
		services["approvals"] = "not ready"
		ready = false
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ReadinessResponse{Ready: ready, Timestamp: time.Now(), Services: services})
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit"`
}

func (s *Server) versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{
		Version:   Version,
		GoVersion: runtime.Version(),
		GitCommit: GitCommit,
	})
}
