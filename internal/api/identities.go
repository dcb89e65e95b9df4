package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/facegate/facegate-go/internal/errors"
	"github.com/facegate/facegate-go/internal/storage"
)

// IdentityRequest creates a directory entry.
type IdentityRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"dept"`
	Role       string `json:"role"`
}

func (c *Controller) initIdentityRoutes() {
	c.Group.GET("/identities", c.ListIdentities)
	c.Group.POST("/identities", c.CreateIdentity)
	c.Group.DELETE("/identities/:name", c.DeleteIdentity)
}

// ListIdentities handles GET /api/v1/identities. Under storage contention a
// cached directory snapshot may be served.
func (c *Controller) ListIdentities(ctx echo.Context) error {
	identities, err := c.gateway.ListIdentities()
	if err != nil {
		return c.HandleError(ctx, err, "failed to list identities", statusForError(err))
	}
	return ctx.JSON(http.StatusOK, identities)
}

// CreateIdentity handles POST /api/v1/identities. A duplicate display name
// is rejected with 409.
func (c *Controller) CreateIdentity(ctx echo.Context) error {
	var req IdentityRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid identity request", http.StatusBadRequest)
	}

	identity := storage.Identity{
		ID:         req.ID,
		Name:       req.Name,
		Department: req.Department,
		Role:       req.Role,
	}
	if err := c.gateway.CreateIdentity(identity); err != nil {
		if errors.Is(err, storage.ErrIdentityExists) {
			return c.HandleError(ctx, err, "identity name already exists", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "failed to create identity", statusForError(err))
	}

	c.apiLogger.Info("identity created", "id", req.ID, "name", req.Name, "ip", ctx.RealIP())
	return ctx.JSON(http.StatusCreated, identity)
}

// DeleteIdentity handles DELETE /api/v1/identities/:name. Template removal
// cascades and the matcher set shrinks on the next reload.
func (c *Controller) DeleteIdentity(ctx echo.Context) error {
	name := ctx.Param("name")
	if err := c.gateway.DeleteIdentity(name); err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return c.HandleError(ctx, err, "identity not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "failed to delete identity", statusForError(err))
	}

	c.refreshMatcher()
	c.apiLogger.Info("identity deleted", "name", name, "ip", ctx.RealIP())
	return ctx.NoContent(http.StatusNoContent)
}

// refreshMatcher reloads the template store into the live matcher after a
// mutation that bypassed the enrollment coordinator.
func (c *Controller) refreshMatcher() {
	if c.attendance == nil {
		return
	}
	templates, _, err := c.gateway.LoadTemplates()
	if err != nil {
		c.apiLogger.Warn("failed to reload templates after mutation", "error", err)
		return
	}
	c.attendance.ReloadTemplates(templates)
}
