// Package recognition implements a client for the external plate recognition
// engine. The engine is an opaque HTTP service, this client packages an image
// as a multipart upload, issues one bounded call and translates the response
// into a typed outcome. The engine being slow, down or confused never
// escalates beyond the outcome value.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"syscall"
	"time"

	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/errors"
	"github.com/platewatch/platewatch-go/internal/logging"
)

// Package-level logger specific to the recognition service
var (
	serviceLogger *slog.Logger
	closeLogger   func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "recognition.log")

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "recognition", slog.LevelDebug)
	if err != nil {
		log.Printf("Failed to initialize recognition file logger at %s: %v. Service logging disabled.", logFilePath, err)
		serviceLogger = logging.NewDiscardLogger("recognition")
		closeLogger = func() error { return nil }
	}
}

// Outcome classifies the result of one recognition call.
type Outcome string

const (
	// OutcomePlateFound means the engine returned recognized plate text.
	OutcomePlateFound Outcome = "plate_found"
	// OutcomeNoPlate means the engine answered but found no plate.
	OutcomeNoPlate Outcome = "no_plate"
	// OutcomeServiceUnavailable means the engine could not be reached at all.
	// Callers treat this the same as no plate, the pipeline degrades quietly.
	OutcomeServiceUnavailable Outcome = "service_unavailable"
	// OutcomeServiceError means the engine misbehaved in some other way
	// (bad status, malformed response). Logged, then treated as no detection.
	OutcomeServiceError Outcome = "service_error"
)

// Result is the translated outcome of one recognition call. BoundingBox is
// echoed to observers but never persisted.
type Result struct {
	Outcome     Outcome
	Plate       string // recognized text, set only for OutcomePlateFound
	BoundingBox []int  // [x1, y1, x2, y2] when the engine provided one
	Detail      string // diagnostic detail for OutcomeServiceError
}

// engineResponse mirrors the recognition engine's detect endpoint JSON.
// A "no match" reply carries only the message field.
type engineResponse struct {
	Filename    string   `json:"filename"`
	DetectedRaw []string `json:"detected_text_raw"`
	CleanedText string   `json:"cleaned_text"`
	BoundingBox []int    `json:"bounding_box"`
	Message     string   `json:"message"`
}

// Interface defines what the ingestion pipeline needs from a recognizer.
type Interface interface {
	Recognize(ctx context.Context, imageData []byte, displayName string) Result
	Close()
}

// Client calls the external recognition engine over HTTP.
type Client struct {
	Settings   *conf.Settings
	endpoint   string
	fileField  string
	HTTPClient *http.Client
}

// New creates and initializes a new recognition client from settings.
// The HTTP client carries the configured timeout so a hung engine can never
// stall a request handler indefinitely.
func New(settings *conf.Settings) *Client {
	timeout := time.Duration(settings.Recognition.Timeout) * time.Second
	serviceLogger.Info("Creating recognition client",
		"endpoint", settings.Recognition.Endpoint,
		"timeout", timeout.String())

	return &Client{
		Settings:   settings,
		endpoint:   settings.Recognition.Endpoint,
		fileField:  settings.Recognition.FileField,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Recognize sends the image to the engine and translates the response into a
// Result. It never returns an error: every failure mode maps to an outcome.
// No retry is performed, a failed call degrades to no detection.
func (c *Client) Recognize(ctx context.Context, imageData []byte, displayName string) Result {
	if len(imageData) == 0 {
		serviceLogger.Error("Recognition skipped: image data is empty", "display_name", displayName)
		return Result{Outcome: OutcomeServiceError, Detail: "empty image data"}
	}

	body, contentType, err := encodeMultipart(imageData, c.fileField, displayName)
	if err != nil {
		serviceLogger.Error("Failed to encode multipart body", "display_name", displayName, "error", err)
		return Result{Outcome: OutcomeServiceError, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		serviceLogger.Error("Failed to create recognition request", "endpoint", c.endpoint, "error", err)
		return Result{Outcome: OutcomeServiceError, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)

	serviceLogger.Debug("Sending image to recognition engine",
		"endpoint", c.endpoint, "display_name", displayName, "size", len(imageData))

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return c.translateTransportError(err)
	}
	defer resp.Body.Close()

	serviceLogger.Debug("Received recognition response",
		"status_code", resp.StatusCode, "elapsed", time.Since(start).String())

	return c.translateResponse(resp)
}

// translateTransportError maps network failures to outcomes. An unreachable
// engine is an expected operational state, not a fault of this server.
func (c *Client) translateTransportError(err error) Result {
	wrapped := errors.New(err).
		Component("recognition").
		Category(errors.CategoryNetwork).
		Context("endpoint", c.endpoint).
		Build()

	if isUnreachable(err) {
		serviceLogger.Warn("Recognition engine unreachable", "endpoint", c.endpoint, "error", wrapped.Error())
		return Result{Outcome: OutcomeServiceUnavailable}
	}

	serviceLogger.Error("Recognition request failed", "endpoint", c.endpoint, "error", wrapped.Error())
	return Result{Outcome: OutcomeServiceError, Detail: err.Error()}
}

// translateResponse maps an HTTP response from the engine to an outcome.
func (c *Client) translateResponse(resp *http.Response) Result {
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		serviceLogger.Error("Failed to read recognition response body", "error", err)
		return Result{Outcome: OutcomeServiceError, Detail: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := fmt.Sprintf("engine returned status %d", resp.StatusCode)
		serviceLogger.Error("Recognition engine returned error status",
			"status_code", resp.StatusCode, "body", string(responseBody))
		return Result{Outcome: OutcomeServiceError, Detail: detail}
	}

	if c.Settings.Recognition.Debug {
		serviceLogger.Debug("Recognition response body", "body", string(responseBody))
	}

	var data engineResponse
	if err := json.Unmarshal(responseBody, &data); err != nil {
		serviceLogger.Error("Failed to decode recognition JSON response",
			"body", string(responseBody), "error", err)
		return Result{Outcome: OutcomeServiceError, Detail: err.Error()}
	}

	// A message field or missing recognized text both mean no plate.
	if data.Message != "" || data.CleanedText == "" {
		serviceLogger.Info("No plate detected by recognition engine", "message", data.Message)
		return Result{Outcome: OutcomeNoPlate}
	}

	serviceLogger.Info("Plate recognized", "plate", data.CleanedText, "bounding_box", data.BoundingBox)
	return Result{
		Outcome:     OutcomePlateFound,
		Plate:       data.CleanedText,
		BoundingBox: data.BoundingBox,
	}
}

// Close releases idle connections and the service log file.
func (c *Client) Close() {
	if c.HTTPClient != nil {
		type transporter interface {
			CloseIdleConnections()
		}
		if transport, ok := c.HTTPClient.Transport.(transporter); ok {
			transport.CloseIdleConnections()
		}
	}
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Failed to close recognition log file: %v", err)
		}
	}
}

// encodeMultipart packages the image as a single-part form upload.
func encodeMultipart(imageData []byte, fieldName, fileName string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(fieldName, fileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// isUnreachable reports whether err means the engine cannot be reached at
// all: connection refused, network/host unreachable, DNS failure or timeout.
func isUnreachable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH)
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
