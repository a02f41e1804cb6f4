// internal/api/ingest.go: the ingestion endpoint driving the
// upload -> recognize -> blacklist -> persist -> broadcast pipeline.
package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/platewatch/platewatch-go/internal/broadcast"
	"github.com/platewatch/platewatch-go/internal/datastore"
	"github.com/platewatch/platewatch-go/internal/observability/metrics"
	"github.com/platewatch/platewatch-go/internal/recognition"
)

// DetectionResponse is the JSON envelope returned for both detected and
// non-detected outcomes. Only validation and persistence failures use the
// error envelope instead.
type DetectionResponse struct {
	Success       bool                        `json:"success"`
	Message       string                      `json:"message"`
	PlateNumber   string                      `json:"plateNumber,omitempty"`
	BlacklistFlag bool                        `json:"blacklistFlag"`
	Detection     *broadcast.DetectionPayload `json:"detection,omitempty"`
}

// testANPRRequest is the developer entry point payload referencing a
// server-local file instead of an upload.
type testANPRRequest struct {
	ImagePath string `json:"imagePath"`
	CameraID  uint   `json:"cameraId"`
}

// UploadImage handles POST /api/upload. It validates the multipart upload,
// stores the image as a temp blob and drives the recognition pipeline.
// Recognition problems degrade to a success:false response; only validation
// and persistence failures produce HTTP errors.
func (c *Controller) UploadImage(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeValidationFailed)
		return c.HandleError(ctx, err, "No image file uploaded", http.StatusBadRequest)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")
	if !c.Blobs.ValidExtension(ext) || (contentType != "" && !strings.HasPrefix(contentType, "image/")) {
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeValidationFailed)
		return c.HandleError(ctx, nil,
			fmt.Sprintf("Only %s images are allowed", strings.Join(c.Settings.Ingest.AllowedExtensions, ", ")),
			http.StatusBadRequest)
	}

	if fileHeader.Size > c.Settings.Ingest.MaxUploadSize {
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeValidationFailed)
		return c.HandleError(ctx, nil,
			fmt.Sprintf("Image exceeds the maximum upload size of %d bytes", c.Settings.Ingest.MaxUploadSize),
			http.StatusBadRequest)
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeValidationFailed)
		return c.HandleError(ctx, err, "Failed to read uploaded image", http.StatusBadRequest)
	}
	defer file.Close()

	// LimitReader guards against a lying Content-Length
	imageData, err := io.ReadAll(io.LimitReader(file, c.Settings.Ingest.MaxUploadSize+1))
	if err != nil {
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeValidationFailed)
		return c.HandleError(ctx, err, "Failed to read uploaded image", http.StatusBadRequest)
	}
	if int64(len(imageData)) > c.Settings.Ingest.MaxUploadSize {
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeValidationFailed)
		return c.HandleError(ctx, nil,
			fmt.Sprintf("Image exceeds the maximum upload size of %d bytes", c.Settings.Ingest.MaxUploadSize),
			http.StatusBadRequest)
	}

	cameraID := c.formCameraID(ctx)

	// Validation passed, store the blob. The request owns it until a
	// detection is persisted or recognition comes back empty.
	blobName, err := c.Blobs.Save(imageData, ext)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to store uploaded image", http.StatusInternalServerError)
	}

	c.apiLogger.Info("Processing uploaded image",
		"blob_name", blobName, "camera_id", cameraID, "size", len(imageData))

	return c.runPipeline(ctx, imageData, blobName, cameraID, true)
}

// TestANPR handles POST /api/test-anpr, a developer entry point that runs
// the same pipeline against a server-local file instead of an upload.
func (c *Controller) TestANPR(ctx echo.Context) error {
	req := testANPRRequest{
		ImagePath: "./test.jpeg",
		CameraID:  c.Settings.Ingest.DefaultCameraID,
	}
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.CameraID == 0 {
		req.CameraID = c.Settings.Ingest.DefaultCameraID
	}

	absolutePath, err := filepath.Abs(req.ImagePath)
	if err != nil {
		return c.HandleError(ctx, err, "Image path required and must exist", http.StatusBadRequest)
	}

	imageData, err := os.ReadFile(absolutePath)
	if err != nil {
		return c.HandleError(ctx, err, "Image path required and must exist", http.StatusBadRequest)
	}

	// The referenced file is not owned by this request, so it is never
	// deleted, and its bare name is what gets persisted.
	return c.runPipeline(ctx, imageData, filepath.Base(absolutePath), req.CameraID, false)
}

// runPipeline drives recognition, blacklist lookup, persistence and fan-out
// for one image. ownedBlob indicates the blob was stored by this request and
// must be removed on every path that does not persist a detection.
func (c *Controller) runPipeline(ctx echo.Context, imageData []byte, blobName string, cameraID uint, ownedBlob bool) error {
	start := time.Now()
	result := c.Recognizer.Recognize(ctx.Request().Context(), imageData, blobName)
	c.metrics.Pipeline.RecognitionDuration.Observe(time.Since(start).Seconds())

	if result.Outcome != recognition.OutcomePlateFound {
		c.discardBlob(blobName, ownedBlob)
		return c.respondNoDetection(ctx, result)
	}

	// Best-effort blacklist read. The result reflects registry state at
	// lookup time and is not transactionally linked to the insert below.
	entry, err := c.DS.GetBlacklistEntryByPlate(result.Plate)
	if err != nil {
		c.apiLogger.Error("Blacklist lookup failed, degrading to no detection",
			"plate_number", result.Plate, "error", err)
		c.discardBlob(blobName, ownedBlob)
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeDegraded)
		return ctx.JSON(http.StatusOK, DetectionResponse{
			Success: false,
			Message: "No plate detected in the uploaded image",
		})
	}

	detection := &datastore.Detection{
		PlateNumber:   result.Plate,
		CameraID:      cameraID,
		ImagePath:     blobName,
		BlacklistFlag: entry != nil,
	}
	if entry != nil {
		detection.BlacklistID = &entry.ID
		detection.Blacklist = entry
	}

	if err := c.DS.SaveDetection(detection); err != nil {
		// The blob is removed on persistence failure as well, a dangling
		// image with no detection row is of no use to anyone.
		c.discardBlob(blobName, ownedBlob)
		c.metrics.Pipeline.RecordUpload(metrics.OutcomePersistFailed)
		return c.HandleError(ctx, err, "Error processing uploaded image", http.StatusInternalServerError)
	}

	payload := &broadcast.DetectionPayload{
		Detection:   *detection,
		ImageURL:    detectionImageURL(blobName),
		BoundingBox: result.BoundingBox,
	}

	c.Hub.Publish(broadcast.Event{Type: broadcast.EventNewDetection, Data: payload})
	c.metrics.Pipeline.BroadcastFanout.Observe(float64(c.Hub.Count()))
	c.metrics.Pipeline.RecordUpload(metrics.OutcomeDetected)
	c.invalidateDetectionCache()

	message := fmt.Sprintf("Plate detected: %s", detection.PlateNumber)
	if detection.BlacklistFlag {
		message = fmt.Sprintf("ALERT: Blacklisted plate detected - %s", detection.PlateNumber)
	}

	c.apiLogger.Info("Upload processed",
		"detection_id", detection.ID,
		"plate_number", detection.PlateNumber,
		"blacklisted", detection.BlacklistFlag)

	return ctx.JSON(http.StatusOK, DetectionResponse{
		Success:       true,
		Message:       message,
		PlateNumber:   detection.PlateNumber,
		BlacklistFlag: detection.BlacklistFlag,
		Detection:     payload,
	})
}

// respondNoDetection maps the three degraded recognition outcomes onto the
// shared non-error "no detection" response.
func (c *Controller) respondNoDetection(ctx echo.Context, result recognition.Result) error {
	switch result.Outcome {
	case recognition.OutcomeNoPlate:
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeNoPlate)
	case recognition.OutcomeServiceUnavailable:
		c.apiLogger.Warn("Recognition engine unavailable, degrading to no detection")
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeDegraded)
	case recognition.OutcomeServiceError:
		c.apiLogger.Warn("Recognition engine error, degrading to no detection", "detail", result.Detail)
		c.metrics.Pipeline.RecordUpload(metrics.OutcomeDegraded)
	}

	return ctx.JSON(http.StatusOK, DetectionResponse{
		Success: false,
		Message: "No plate detected in the uploaded image",
	})
}

// discardBlob removes a request-owned blob, logging rather than failing on
// cleanup errors.
func (c *Controller) discardBlob(blobName string, ownedBlob bool) {
	if !ownedBlob {
		return
	}
	if err := c.Blobs.Delete(blobName); err != nil {
		c.apiLogger.Warn("Failed to delete temp blob", "blob_name", blobName, "error", err)
	}
}

// formCameraID reads the optional camera id form value, falling back to the
// configured default.
func (c *Controller) formCameraID(ctx echo.Context) uint {
	raw := ctx.FormValue("cameraId")
	if raw == "" {
		return c.Settings.Ingest.DefaultCameraID
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return c.Settings.Ingest.DefaultCameraID
	}
	return uint(id)
}
