package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/facegate/facegate-go/internal/enroll"
	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/storage"
)

// EnrollmentRequest starts a capture session for one person.
type EnrollmentRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

func (c *Controller) initEnrollmentRoutes() {
	c.Group.POST("/enrollment", c.StartEnrollment)
	c.Group.GET("/enrollment", c.EnrollmentStatus)
	c.Group.DELETE("/enrollment", c.CancelEnrollment)
}

// StartEnrollment handles POST /api/v1/enrollment. A session already in
// flight yields 409 and leaves that session untouched.
func (c *Controller) StartEnrollment(ctx echo.Context) error {
	var req EnrollmentRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid enrollment request", http.StatusBadRequest)
	}

	err := c.coordinator.Start(storage.Identity{
		ID:         req.ID,
		Name:       req.Name,
		Department: req.Department,
	})
	switch {
	case err == nil:
	case errors.Is(err, enroll.ErrBusy):
		return c.HandleError(ctx, err, "an enrollment session is already active", http.StatusConflict)
	case errors.Is(err, enroll.ErrStoreFull):
		return c.HandleError(ctx, err, "template store is full", http.StatusConflict)
	default:
		return c.HandleError(ctx, err, "failed to start enrollment", statusForError(err))
	}

	c.apiLogger.Info("enrollment session started", "id", req.ID, "name", req.Name, "ip", ctx.RealIP())
	return ctx.JSON(http.StatusAccepted, c.coordinator.Status())
}

// EnrollmentStatus handles GET /api/v1/enrollment.
func (c *Controller) EnrollmentStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.coordinator.Status())
}

// CancelEnrollment handles DELETE /api/v1/enrollment. Cancelling with no
// active session succeeds; the operation is idempotent.
func (c *Controller) CancelEnrollment(ctx echo.Context) error {
	c.coordinator.Cancel("operator request")
	return ctx.JSON(http.StatusOK, c.coordinator.Status())
}
