package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Box is a detection in xyxy pixel coordinates of the submitted image.
type Box [4]int

// Detector finds the subject in a frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image, params Params) ([]Box, error)
}

// HTTPDetector posts PNG frames to a model server. The server answers
// {"boxes": [[x1, y1, x2, y2], ...]}.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDetector returns a client for endpoint. A nil client gets a 30s
// timeout.
func NewHTTPDetector(endpoint string, client *http.Client) *HTTPDetector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDetector{endpoint: endpoint, client: client}
}

type detectResponse struct {
	Boxes []Box `json:"boxes"`
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, frame image.Image, params Params) ([]Box, error) {
	var body bytes.Buffer
	if err := png.Encode(&body, frame); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("detector url: %w", err)
	}
	q := u.Query()
	q.Set("conf", strconv.FormatFloat(params.Conf, 'f', -1, 64))
	q.Set("imgsz", strconv.Itoa(params.Imgsz))
	q.Set("iou", strconv.FormatFloat(params.Iou, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	return out.Boxes, nil
}
