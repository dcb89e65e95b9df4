package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/facegate/facegate-go/internal/storage"
)

// HealthResponse summarizes the appliance state for dashboards and probes.
type HealthResponse struct {
	Status     string    `json:"status"`
	MountState string    `json:"mount_state"`
	AutoMode   bool      `json:"auto_mode"`
	Enrolling  bool      `json:"enrolling"`
	TimeSynced bool      `json:"time_synced"`
	Timestamp  time.Time `json:"timestamp"`
}

func (c *Controller) initSystemRoutes() {
	c.Group.GET("/health", c.Health)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// Health handles GET /api/v1/health. Degraded storage reports 503 so fleet
// probes notice without parsing the body.
func (c *Controller) Health(ctx echo.Context) error {
	state := c.gateway.State()
	resp := HealthResponse{
		Status:     "healthy",
		MountState: state.String(),
		AutoMode:   c.attendance.AutoMode(),
		Enrolling:  c.coordinator.Active(),
		Timestamp:  time.Now(),
	}
	if c.timeSync != nil {
		resp.TimeSynced = c.timeSync.Synced()
	}

	code := http.StatusOK
	if state != storage.StateMounted {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, resp)
}
