package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRecognizer calls an external text recognition service over HTTP. The
// service accepts the raw image bytes on POST /recognize and returns the
// recognized text as JSON.
type HTTPRecognizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRecognizer creates a recognizer client for the given base URL.
func NewHTTPRecognizer(baseURL string) *HTTPRecognizer {
	return &HTTPRecognizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Recognize submits the image and returns the recognized text.
func (r *HTTPRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/recognize", bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("failed to create recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognition request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognition service returned status %d", resp.StatusCode)
	}

	var recognized recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&recognized); err != nil {
		return "", fmt.Errorf("failed to decode recognition response: %w", err)
	}

	return recognized.Text, nil
}
