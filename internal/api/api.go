// internal/api/api.go
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/platewatch/platewatch-go/internal/blobstore"
	"github.com/platewatch/platewatch-go/internal/broadcast"
	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/datastore"
	"github.com/platewatch/platewatch-go/internal/logging"
	"github.com/platewatch/platewatch-go/internal/observability"
	"github.com/platewatch/platewatch-go/internal/recognition"
)

const (
	// detectionCacheTTL bounds how stale the paginated detections listing
	// may be. Uploads invalidate the cache on success anyway.
	detectionCacheTTL = 30 * time.Second

	cacheCleanupInterval = 5 * time.Minute
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo       *echo.Echo
	Group      *echo.Group
	DS         datastore.Interface
	Settings   *conf.Settings
	Blobs      *blobstore.Store
	Recognizer recognition.Interface
	Hub        *broadcast.Hub

	metrics        *observability.Metrics
	detectionCache *cache.Cache
	apiLogger      *slog.Logger
	apiLoggerClose func() error
}

// New creates a new API controller and registers its routes on the given
// echo instance.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	blobs *blobstore.Store, recognizer recognition.Interface,
	hub *broadcast.Hub, metrics *observability.Metrics) (*Controller, error) {

	c := &Controller{
		Echo:           e,
		DS:             ds,
		Settings:       settings,
		Blobs:          blobs,
		Recognizer:     recognizer,
		Hub:            hub,
		metrics:        metrics,
		detectionCache: cache.New(detectionCacheTTL, cacheCleanupInterval),
	}

	// Structured logger for API operations, file-backed when possible
	apiLogger, closeLogger, err := logging.NewFileLogger("logs/api.log", "api", slog.LevelInfo)
	if err != nil {
		c.apiLogger = logging.NewDiscardLogger("api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeLogger
	}

	c.Group = e.Group("/api")

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
	}))

	c.initRoutes()

	return c, nil
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	// Core ingestion pipeline
	c.Group.POST("/upload", c.UploadImage)
	c.Group.POST("/test-anpr", c.TestANPR)

	// Historical listing and dashboard
	c.Group.GET("/detections", c.GetDetections)
	c.Group.GET("/stats", c.GetStats)

	// Blacklist administration
	c.Group.GET("/blacklist", c.GetBlacklist)
	c.Group.POST("/blacklist", c.AddBlacklistEntry)
	c.Group.DELETE("/blacklist/:id", c.DeleteBlacklistEntry)

	// Realtime channels
	c.Group.GET("/detections/stream", c.StreamDetections)
	c.Echo.GET("/ws", c.HandleWebSocket)

	// Retained upload images
	c.Echo.GET("/uploads/:name", c.ServeUpload)

	c.Group.GET("/health", c.GetHealth)

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// Close releases controller resources.
func (c *Controller) Close() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.apiLogger.Error("Failed to close API log file", "error", err)
		}
	}
}

// ErrorResponse represents a JSON error payload returned to clients.
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// HandleError constructs and returns an appropriate error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	correlationID := generateCorrelationID()

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}

	c.apiLogger.Error("API Error",
		"correlation_id", correlationID,
		"message", message,
		"error", errorStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, ErrorResponse{
		Error:         message,
		CorrelationID: correlationID,
	})
}

// generateCorrelationID creates a short unique identifier for error tracking.
func generateCorrelationID() string {
	return uuid.NewString()[:8]
}

// GetHealth returns a simple liveness payload.
func (c *Controller) GetHealth(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ServeUpload serves a retained upload image by blob name.
func (c *Controller) ServeUpload(ctx echo.Context) error {
	name := ctx.Param("name")
	path, err := c.Blobs.Path(name)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image name", http.StatusBadRequest)
	}
	return ctx.File(path)
}

// invalidateDetectionCache drops all cached listing responses. Called after
// every new detection so pages never show stale totals for long.
func (c *Controller) invalidateDetectionCache() {
	c.detectionCache.Flush()
}

// detectionImageURL builds the resolvable image reference sent to clients.
func detectionImageURL(blobName string) string {
	return fmt.Sprintf("/uploads/%s", blobName)
}
