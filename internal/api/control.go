package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ModeRequest toggles the automatic attendance mode.
type ModeRequest struct {
	Active bool `json:"active"`
}

// ModeResponse reports the current mode.
type ModeResponse struct {
	Active bool `json:"active"`
}

// ControlResult is the outcome of a control action.
type ControlResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Controller) initControlRoutes() {
	c.Group.GET("/mode", c.GetMode)
	c.Group.POST("/mode", c.SetMode)
	c.Group.POST("/factory-reset", c.FactoryReset)
}

// GetMode handles GET /api/v1/mode.
func (c *Controller) GetMode(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ModeResponse{Active: c.attendance.AutoMode()})
}

// SetMode handles POST /api/v1/mode. Toggling off stops recognition cycles
// immediately; an active enrollment session is unaffected.
func (c *Controller) SetMode(ctx echo.Context) error {
	var req ModeRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid mode request", http.StatusBadRequest)
	}
	c.attendance.SetAutoMode(req.Active)
	return ctx.JSON(http.StatusOK, ModeResponse{Active: req.Active})
}

// FactoryReset handles POST /api/v1/factory-reset. It wipes ledgers,
// templates, the identity directory and settings, recreates the empty
// layout, and cancels any in-flight enrollment.
func (c *Controller) FactoryReset(ctx echo.Context) error {
	c.coordinator.Cancel("factory reset")

	if err := c.gateway.FactoryReset(); err != nil {
		return c.HandleError(ctx, err, "factory reset failed", statusForError(err))
	}

	// The running loop must pick up the default settings and thresholds.
	settings, err := c.gateway.LoadSettings()
	if err == nil {
		c.attendance.UpdateSettings(settings)
		if c.timeSync != nil {
			c.timeSync.SetUTCOffset(settings.UTCOffsetMinutes)
		}
	}

	c.apiLogger.Info("factory reset completed", "ip", ctx.RealIP())
	return ctx.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Message:   "appliance reset to factory defaults",
		Action:    "factory_reset",
		Timestamp: time.Now(),
	})
}
