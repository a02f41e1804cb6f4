// internal/api/blacklist.go: blacklist registry CRUD.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/platewatch/platewatch-go/internal/datastore"
	"github.com/platewatch/platewatch-go/internal/errors"
)

type blacklistAddRequest struct {
	PlateNumber string `json:"plateNumber"`
	Notes       string `json:"notes"`
}

// GetBlacklist handles GET /api/blacklist.
func (c *Controller) GetBlacklist(ctx echo.Context) error {
	entries, err := c.DS.GetAllBlacklistEntries()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch blacklist", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, entries)
}

// AddBlacklistEntry handles POST /api/blacklist. The plate is normalized to
// upper case before insertion; a duplicate plate yields 409.
func (c *Controller) AddBlacklistEntry(ctx echo.Context) error {
	var req blacklistAddRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	req.PlateNumber = strings.TrimSpace(req.PlateNumber)
	if req.PlateNumber == "" {
		return c.HandleError(ctx, nil, "Plate number is required", http.StatusBadRequest)
	}

	entry := &datastore.BlacklistEntry{
		PlateNumber: req.PlateNumber,
		Notes:       req.Notes,
	}
	if err := c.DS.AddBlacklistEntry(entry); err != nil {
		if errors.HasCategory(err, errors.CategoryConflict) {
			return c.HandleError(ctx, err, "Plate is already blacklisted", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to add blacklist entry", http.StatusInternalServerError)
	}

	c.apiLogger.Info("Blacklist entry added",
		"entry_id", entry.ID, "plate_number", entry.PlateNumber)
	c.invalidateDetectionCache()

	return ctx.JSON(http.StatusCreated, entry)
}

// DeleteBlacklistEntry handles DELETE /api/blacklist/:id. Existing detections
// keep their recorded blacklist flag; removal only affects future lookups.
func (c *Controller) DeleteBlacklistEntry(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid blacklist entry id", http.StatusBadRequest)
	}

	if err := c.DS.DeleteBlacklistEntry(uint(id)); err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return c.HandleError(ctx, err, "Blacklist entry not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to delete blacklist entry", http.StatusInternalServerError)
	}

	c.apiLogger.Info("Blacklist entry deleted", "entry_id", id)

	return ctx.JSON(http.StatusOK, map[string]any{"success": true})
}
