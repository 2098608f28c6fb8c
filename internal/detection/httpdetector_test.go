package detection

import (
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDetector_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.25", r.URL.Query().Get("conf"))
		assert.Equal(t, "480", r.URL.Query().Get("imgsz"))
		assert.Equal(t, "0.7", r.URL.Query().Get("iou"))

		img, err := png.Decode(r.Body)
		if assert.NoError(t, err) {
			assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"boxes": [[1, 2, 3, 4]]}`))
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL+"/detect", srv.Client())
	boxes, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 4)), DefaultParams)

	require.NoError(t, err)
	assert.Equal(t, []Box{{1, 2, 3, 4}}, boxes)
}

func TestHTTPDetector_Detect_empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"boxes": []}`))
	}))
	defer srv.Close()

	boxes, err := NewHTTPDetector(srv.URL, nil).Detect(context.Background(), image.NewGray(image.Rect(0, 0, 2, 2)), DefaultParams)

	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestHTTPDetector_Detect_server_error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPDetector(srv.URL, nil).Detect(context.Background(), image.NewGray(image.Rect(0, 0, 2, 2)), DefaultParams)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestParseFrameCount(t *testing.T) {
	n, err := parseFrameCount([]byte(`{"programs": [], "streams": [{"nb_read_packets": "60"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	for _, bad := range []string{`{"streams": []}`, `{"streams": [{"nb_read_packets": "0"}]}`, `{"streams": [{}]}`, `nope`} {
		_, err := parseFrameCount([]byte(bad))
		assert.Error(t, err, bad)
	}
}
