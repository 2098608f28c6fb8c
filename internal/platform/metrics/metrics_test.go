package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSegment(t *testing.T) {
	m := New()

	m.ObserveSegment(true, 100*time.Millisecond)
	m.ObserveSegment(false, 50*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.segmentsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.segmentsDetected))
	assert.Equal(t, 1, testutil.CollectAndCount(m.processingDuration))
}

func TestIncArchive_by_result(t *testing.T) {
	m := New()

	m.IncArchive(ArchiveCreated)
	m.IncArchive(ArchiveCreated)
	m.IncArchive(ArchiveRejected)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.archives.WithLabelValues(ArchiveCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.archives.WithLabelValues(ArchiveRejected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.archives.WithLabelValues(ArchiveFailed)))
}

func TestSetPending_defaults_to_idle(t *testing.T) {
	m := New()
	assert.Equal(t, -1.0, testutil.ToFloat64(m.archivePending))

	m.SetPending(6)
	assert.Equal(t, 6.0, testutil.ToFloat64(m.archivePending))
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	ok := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	bad := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	bad.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal))
}

func TestHandler_serves_registry(t *testing.T) {
	m := New()
	m.IncArchive(ArchiveCreated)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sparrowcam_archives_total{result="created"} 1`)
}
