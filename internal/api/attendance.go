package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/facegate/facegate-go/internal/storage"
)

// OverrideRequest inserts or corrects one ledger row for a (uid, date) pair.
type OverrideRequest struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (c *Controller) initAttendanceRoutes() {
	c.Group.GET("/attendance", c.QueryAttendance)
	c.Group.POST("/attendance/override", c.OverrideAttendance)
	c.Group.GET("/attendance/export", c.ExportAttendance)
	c.Group.DELETE("/attendance", c.ClearAttendance)
	c.Group.GET("/attendance/dates", c.ListAttendanceDates)
}

// QueryAttendance handles GET /api/v1/attendance with optional date, dept,
// status and search filters.
func (c *Controller) QueryAttendance(ctx echo.Context) error {
	query := storage.AttendanceQuery{
		Date:       ctx.QueryParam("date"),
		Department: ctx.QueryParam("dept"),
		Status:     storage.Status(ctx.QueryParam("status")),
		Search:     ctx.QueryParam("search"),
	}
	if query.Date != "" {
		if err := storage.ValidateLedgerDate(query.Date); err != nil {
			return c.HandleError(ctx, err, "invalid date", http.StatusBadRequest)
		}
	}

	rows, err := c.gateway.QueryAttendance(query)
	if err != nil {
		return c.HandleError(ctx, err, "failed to query attendance", statusForError(err))
	}
	return ctx.JSON(http.StatusOK, rows)
}

// OverrideAttendance handles POST /api/v1/attendance/override. An existing
// row for the (uid, date) pair is rewritten in place; otherwise exactly one
// row is appended.
func (c *Controller) OverrideAttendance(ctx echo.Context) error {
	var req OverrideRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid override request", http.StatusBadRequest)
	}

	status, err := storage.ParseStatus(req.Status)
	if err != nil {
		return c.HandleError(ctx, err, "unknown attendance status", http.StatusBadRequest)
	}

	record := storage.AttendanceRecord{
		UID:    req.UID,
		Name:   req.Name,
		Date:   req.Date,
		Time:   req.Time,
		Status: status,
		Notes:  req.Notes,
	}
	if err := c.gateway.OverrideAttendance(record); err != nil {
		return c.HandleError(ctx, err, "failed to apply override", statusForError(err))
	}

	// The corrected person may legitimately badge again right away.
	if c.attendance != nil && req.Name != "" {
		c.attendance.ForgetCooldown(req.Name)
	}

	c.apiLogger.Info("attendance override applied",
		"uid", req.UID, "date", req.Date, "status", req.Status, "ip", ctx.RealIP())
	return ctx.JSON(http.StatusOK, record)
}

// ExportAttendance handles GET /api/v1/attendance/export?date=. The response
// is the raw CSV ledger; a day with no rows exports the header only.
func (c *Controller) ExportAttendance(ctx echo.Context) error {
	date := ctx.QueryParam("date")
	if err := storage.ValidateLedgerDate(date); err != nil {
		return c.HandleError(ctx, err, "invalid date", http.StatusBadRequest)
	}

	content, err := c.gateway.ExportDay(date)
	if err != nil {
		return c.HandleError(ctx, err, "failed to export ledger", statusForError(err))
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="log_%s.csv"`, date))
	return ctx.Blob(http.StatusOK, "text/csv", content)
}

// ClearAttendance handles DELETE /api/v1/attendance?date=. Clearing a day
// with no ledger succeeds.
func (c *Controller) ClearAttendance(ctx echo.Context) error {
	date := ctx.QueryParam("date")
	if err := storage.ValidateLedgerDate(date); err != nil {
		return c.HandleError(ctx, err, "invalid date", http.StatusBadRequest)
	}

	if err := c.gateway.ClearDay(date); err != nil {
		return c.HandleError(ctx, err, "failed to clear ledger", statusForError(err))
	}
	c.apiLogger.Info("ledger cleared", "date", date, "ip", ctx.RealIP())
	return ctx.NoContent(http.StatusNoContent)
}

// ListAttendanceDates handles GET /api/v1/attendance/dates.
func (c *Controller) ListAttendanceDates(ctx echo.Context) error {
	dates, err := c.gateway.ListLedgerDates()
	if err != nil {
		return c.HandleError(ctx, err, "failed to list ledger dates", statusForError(err))
	}
	return ctx.JSON(http.StatusOK, dates)
}
