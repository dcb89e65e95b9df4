package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/facegate/facegate-go/internal/conf"
)

func (c *Controller) initSettingsRoutes() {
	c.Group.GET("/settings", c.GetSettings)
	c.Group.PUT("/settings", c.UpdateSettings)
}

// GetSettings handles GET /api/v1/settings. Contention degrades to the
// default settings rather than an error; the response is always usable.
func (c *Controller) GetSettings(ctx echo.Context) error {
	settings, err := c.gateway.LoadSettings()
	if err != nil {
		c.apiLogger.Warn("serving default settings", "error", err)
	}
	return ctx.JSON(http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/v1/settings. Unknown fields are ignored
// and invalid values fall back to their current defaults, so a partial
// update can never wedge the device.
func (c *Controller) UpdateSettings(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.HandleError(ctx, err, "failed to read settings body", http.StatusBadRequest)
	}

	settings := conf.ParseDeviceSettings(body)
	if err := c.gateway.SaveSettings(settings); err != nil {
		return c.HandleError(ctx, err, "failed to persist settings", statusForError(err))
	}

	// Publish to the running loop and the time syncer.
	if c.attendance != nil {
		c.attendance.UpdateSettings(settings)
	}
	if c.timeSync != nil {
		c.timeSync.SetUTCOffset(settings.UTCOffsetMinutes)
	}

	c.apiLogger.Info("settings updated", "ip", ctx.RealIP())
	return ctx.JSON(http.StatusOK, settings)
}
