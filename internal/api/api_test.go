package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/platewatch-go/internal/blobstore"
	"github.com/platewatch/platewatch-go/internal/broadcast"
	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/datastore"
	"github.com/platewatch/platewatch-go/internal/observability"
	"github.com/platewatch/platewatch-go/internal/recognition"
)

// mockDataStore implements datastore.Interface with overridable behavior.
type mockDataStore struct {
	mu         sync.Mutex
	detections []datastore.Detection
	blacklist  map[string]*datastore.BlacklistEntry

	saveErr   error
	lookupErr error
	addErr    error
	deleteErr error
}

func newMockDataStore() *mockDataStore {
	return &mockDataStore{blacklist: make(map[string]*datastore.BlacklistEntry)}
}

func (m *mockDataStore) Open() error  { return nil }
func (m *mockDataStore) Close() error { return nil }

func (m *mockDataStore) SaveDetection(detection *datastore.Detection) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	detection.ID = uint(len(m.detections) + 1)
	m.detections = append(m.detections, *detection)
	return nil
}

func (m *mockDataStore) GetDetection(id uint) (datastore.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.detections {
		if d.ID == id {
			return d, nil
		}
	}
	return datastore.Detection{}, echo.ErrNotFound
}

func (m *mockDataStore) SearchDetections(filter *datastore.DetectionFilter) ([]datastore.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]datastore.Detection(nil), m.detections...), nil
}

func (m *mockDataStore) CountDetections(filter *datastore.DetectionFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.detections)), nil
}

func (m *mockDataStore) DetectionStats() (datastore.DetectionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := datastore.DetectionStats{TotalDetections: int64(len(m.detections))}
	for _, d := range m.detections {
		if d.BlacklistFlag {
			stats.BlacklistedCount++
		}
	}
	return stats, nil
}

func (m *mockDataStore) GetBlacklistEntryByPlate(plate string) (*datastore.BlacklistEntry, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklist[plate], nil
}

func (m *mockDataStore) GetAllBlacklistEntries() ([]datastore.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]datastore.BlacklistEntry, 0, len(m.blacklist))
	for _, e := range m.blacklist {
		entries = append(entries, *e)
	}
	return entries, nil
}

func (m *mockDataStore) AddBlacklistEntry(entry *datastore.BlacklistEntry) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uint(len(m.blacklist) + 1)
	m.blacklist[entry.PlateNumber] = entry
	return nil
}

func (m *mockDataStore) DeleteBlacklistEntry(id uint) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for plate, e := range m.blacklist {
		if e.ID == id {
			delete(m.blacklist, plate)
			return nil
		}
	}
	return echo.ErrNotFound
}

func (m *mockDataStore) savedDetections() []datastore.Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]datastore.Detection(nil), m.detections...)
}

// mockRecognizer returns a fixed result and records call counts.
type mockRecognizer struct {
	mu     sync.Mutex
	result recognition.Result
	calls  int
}

func (m *mockRecognizer) Recognize(ctx context.Context, imageData []byte, displayName string) recognition.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result
}

func (m *mockRecognizer) Close() {}

func (m *mockRecognizer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func recognitionPlateFound(plate string) recognition.Result {
	return recognition.Result{Outcome: recognition.OutcomePlateFound, Plate: plate}
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.WebServer.Port = "5000"
	settings.WebServer.UploadPath = t.TempDir()
	settings.Ingest.AllowedExtensions = []string{".jpg", ".jpeg", ".png"}
	settings.Ingest.MaxUploadSize = 10 * 1024 * 1024
	settings.Ingest.DefaultCameraID = 1
	return settings
}

// newTestController wires a Controller around the given mocks.
func newTestController(t *testing.T, ds datastore.Interface, recognizer recognition.Interface) *Controller {
	t.Helper()

	settings := testSettings(t)

	blobs, err := blobstore.New(settings.WebServer.UploadPath, settings.Ingest.AllowedExtensions)
	require.NoError(t, err)

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	e := echo.New()
	controller, err := New(e, ds, settings, blobs, recognizer, broadcast.NewHub(), metrics)
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	return controller
}

// multipartUpload builds a multipart request body with one image file part.
func multipartUpload(t *testing.T, fieldName, fileName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+fileName+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

// doRequest runs a request through the controller's echo instance.
func doRequest(controller *Controller, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	controller.Echo.ServeHTTP(rec, req)
	return rec
}
