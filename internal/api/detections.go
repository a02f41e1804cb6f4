// internal/api/detections.go: detection listing and aggregate stats.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/platewatch/platewatch-go/internal/datastore"
)

// PaginationInfo describes one page of a listing response.
type PaginationInfo struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// DetectionsListResponse is the paginated envelope for GET /api/detections.
type DetectionsListResponse struct {
	Data       []datastore.Detection `json:"data"`
	Pagination PaginationInfo        `json:"pagination"`
}

// GetDetections handles GET /api/detections with optional filters:
// plate (substring), startDate/endDate (YYYY-MM-DD), blacklisted, cameraId,
// plus page/limit pagination. Results are cached briefly since the list
// endpoint gets polled by dashboards.
func (c *Controller) GetDetections(ctx echo.Context) error {
	page, err := strconv.Atoi(ctx.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(ctx.QueryParam("limit"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	filter := datastore.DetectionFilter{
		Plate:  ctx.QueryParam("plate"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if raw := ctx.QueryParam("startDate"); raw != "" {
		start, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid startDate format, use YYYY-MM-DD", http.StatusBadRequest)
		}
		filter.StartDate = &start
	}
	if raw := ctx.QueryParam("endDate"); raw != "" {
		end, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid endDate format, use YYYY-MM-DD", http.StatusBadRequest)
		}
		// inclusive end of day
		end = end.Add(24*time.Hour - time.Nanosecond)
		filter.EndDate = &end
	}
	if raw := ctx.QueryParam("blacklisted"); raw != "" {
		blacklisted, err := strconv.ParseBool(raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid blacklisted value, use true or false", http.StatusBadRequest)
		}
		filter.Blacklisted = &blacklisted
	}
	if raw := ctx.QueryParam("cameraId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid cameraId value", http.StatusBadRequest)
		}
		cameraID := uint(id)
		filter.CameraID = &cameraID
	}

	cacheKey := fmt.Sprintf("detections:%s", ctx.QueryString())
	if cached, found := c.detectionCache.Get(cacheKey); found {
		return ctx.JSON(http.StatusOK, cached.(DetectionsListResponse))
	}

	detections, err := c.DS.SearchDetections(&filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch detections", http.StatusInternalServerError)
	}
	total, err := c.DS.CountDetections(&filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count detections", http.StatusInternalServerError)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	response := DetectionsListResponse{
		Data: detections,
		Pagination: PaginationInfo{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}

	c.detectionCache.Set(cacheKey, response, cache.DefaultExpiration)
	return ctx.JSON(http.StatusOK, response)
}

// GetStats handles GET /api/stats.
func (c *Controller) GetStats(ctx echo.Context) error {
	stats, err := c.DS.DetectionStats()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute detection stats", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, stats)
}
