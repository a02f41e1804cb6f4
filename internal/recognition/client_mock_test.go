package recognition

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockEndpoint = "http://engine.local/detect"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	client := New(testSettings(mockEndpoint))
	httpmock.ActivateNonDefault(client.HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestRecognizeMockedEngineResponses(t *testing.T) {
	client := newMockedClient(t)

	tests := []struct {
		name      string
		responder httpmock.Responder
		expected  Outcome
		plate     string
	}{
		{
			name: "plate found",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
				"filename":          "car.jpg",
				"detected_text_raw": []string{"XY Z789"},
				"cleaned_text":      "XYZ789",
				"bounding_box":      []int{5, 5, 100, 40},
			}),
			expected: OutcomePlateFound,
			plate:    "XYZ789",
		},
		{
			name: "no plate message",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
				"message": "No license plate detected",
			}),
			expected: OutcomeNoPlate,
		},
		{
			name:      "engine 404",
			responder: httpmock.NewStringResponder(http.StatusNotFound, "not found"),
			expected:  OutcomeServiceError,
		},
		{
			name:      "engine 503",
			responder: httpmock.NewStringResponder(http.StatusServiceUnavailable, "overloaded"),
			expected:  OutcomeServiceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Reset()
			httpmock.RegisterResponder(http.MethodPost, mockEndpoint, tt.responder)

			result := client.Recognize(context.Background(), []byte("fake image bytes"), "car.jpg")

			assert.Equal(t, tt.expected, result.Outcome)
			assert.Equal(t, tt.plate, result.Plate)
			require.Equal(t, 1, httpmock.GetTotalCallCount())
		})
	}
}

func TestRecognizeSendsMultipartToConfiguredField(t *testing.T) {
	settings := testSettings(mockEndpoint)
	settings.Recognition.FileField = "photo"

	client := New(settings)
	httpmock.ActivateNonDefault(client.HTTPClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, mockEndpoint,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseMultipartForm(32<<20))
			file, header, err := req.FormFile("photo")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "car.jpg", header.Filename)

			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"cleaned_text": "ABC123",
			})
		})

	result := client.Recognize(context.Background(), []byte("fake image bytes"), "car.jpg")
	assert.Equal(t, OutcomePlateFound, result.Outcome)
}
