package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"gaitserver/internal/domain"
	"gaitserver/internal/video"
)

// HTTPEstimator calls an inference sidecar that hosts the detection and
// keypoint-regression models. The frame is shipped as raw rgb24 bytes
// with its geometry in headers; the sidecar answers with named keypoints.
type HTTPEstimator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEstimator configures a client for the sidecar at baseURL.
func NewHTTPEstimator(baseURL string, timeout time.Duration) *HTTPEstimator {
	return &HTTPEstimator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type inferResponse struct {
	Joints domain.Joints `json:"joints"`
}

func (e *HTTPEstimator) Infer(ctx context.Context, frame *video.Frame) (domain.Joints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/infer", bytes.NewReader(frame.Pix))
	if err != nil {
		return nil, fmt.Errorf("pose: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
	req.Header.Set("X-Frame-Height", strconv.Itoa(frame.Height))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pose: infer frame %d: %w", frame.Index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pose: sidecar returned %d: %s", resp.StatusCode, body)
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pose: parse sidecar response: %w", err)
	}
	if out.Joints == nil {
		out.Joints = domain.Joints{}
	}
	return out.Joints, nil
}
