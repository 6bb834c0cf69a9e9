package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// UpstreamChecker reports per-upstream liveness.
type UpstreamChecker interface {
	CheckUpstreams(ctx context.Context) map[string]bool
}

// HealthAPI serves liveness and upstream health.
type HealthAPI struct {
	checker UpstreamChecker
	version string
	now     func() time.Time
}

func NewHealthAPI(checker UpstreamChecker, version string) *HealthAPI {
	return &HealthAPI{checker: checker, version: version, now: time.Now}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Services  map[string]string `json:"services,omitempty"`
}

// Get /health
func (h *HealthAPI) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "OK", Timestamp: h.now().UTC(), Version: h.version})
}

// Get /health/detailed
// Always 200; status is "degraded" when any upstream probe fails.
func (h *HealthAPI) Detailed(c *gin.Context) {
	results := h.checker.CheckUpstreams(c.Request.Context())
	resp := healthResponse{
		Status:    "OK",
		Timestamp: h.now().UTC(),
		Version:   h.version,
		Services:  make(map[string]string, len(results)),
	}
	for name, healthy := range results {
		if healthy {
			resp.Services[name] = "healthy"
			continue
		}
		resp.Services[name] = "unhealthy"
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}
