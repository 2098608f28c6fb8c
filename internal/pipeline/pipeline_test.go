package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparrowcam/internal/archive"
	"sparrowcam/internal/platform/logger"
	"sparrowcam/internal/platform/metrics"
	"sparrowcam/internal/scheduler"
	"sparrowcam/internal/watcher"
)

// fakeSource yields segment_000.ts onwards and keeps a three-segment window.
type fakeSource struct {
	n    int
	seen []string
}

func (s *fakeSource) Segments(ctx context.Context) iter.Seq[watcher.Segment] {
	return func(yield func(watcher.Segment) bool) {
		for i := 0; i < s.n; i++ {
			if ctx.Err() != nil {
				return
			}
			name := fmt.Sprintf("segment_%03d.ts", i)
			s.seen = append(s.seen, name)
			if len(s.seen) > 3 {
				s.seen = s.seen[1:]
			}
			if !yield(watcher.Segment{Name: name, Path: "/hls/" + name}) {
				return
			}
		}
	}
}

func (s *fakeSource) Seen() []string { return append([]string(nil), s.seen...) }

type fakeProcessor struct {
	hits  map[string]bool
	paths []string
}

func (p *fakeProcessor) Process(_ context.Context, path, name string) bool {
	p.paths = append(p.paths, path)
	return p.hits[name]
}

type fakePruner struct {
	calls [][]string
	err   error
}

func (p *fakePruner) Prune(live []string) (bool, error) {
	p.calls = append(p.calls, live)
	return false, p.err
}

type archiveCall struct {
	limit      int
	prefix     string
	endSegment string
}

type fakeArchiver struct {
	calls []archiveCall
	errs  []error
}

func (a *fakeArchiver) Archive(limit *int, prefix, endSegment string) (archive.Result, error) {
	a.calls = append(a.calls, archiveCall{limit: *limit, prefix: prefix, endSegment: endSegment})
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		return archive.Result{}, err
	}
	return archive.Result{Path: "/archive/x", Segments: *limit}, nil
}

func hits(idx ...int) map[string]bool {
	m := map[string]bool{}
	for _, i := range idx {
		m[fmt.Sprintf("segment_%03d.ts", i)] = true
	}
	return m
}

type harness struct {
	src     *fakeSource
	proc    *fakeProcessor
	pruner  *fakePruner
	arch    *fakeArchiver
	metrics *metrics.Metrics
	p       *Pipeline
}

func newHarness(n int, detections map[string]bool) *harness {
	h := &harness{
		src:     &fakeSource{n: n},
		proc:    &fakeProcessor{hits: detections},
		pruner:  &fakePruner{},
		arch:    &fakeArchiver{},
		metrics: metrics.New(),
	}
	h.p = New(h.src, h.proc, h.pruner, scheduler.New(scheduler.DefaultDelay, scheduler.DefaultCount), h.arch,
		Options{Metrics: h.metrics, Logger: logger.Discard()})
	return h
}

func (h *harness) endSegments() []string {
	out := make([]string, len(h.arch.calls))
	for i, c := range h.arch.calls {
		out[i] = c.endSegment
	}
	return out
}

func TestRun_single_detection(t *testing.T) {
	h := newHarness(30, hits(0))

	require.NoError(t, h.p.Run(context.Background()))

	assert.Equal(t, []archiveCall{{limit: 15, prefix: "auto", endSegment: "segment_007.ts"}}, h.arch.calls)
	assert.Len(t, h.proc.paths, 30)
	assert.Equal(t, "/hls/segment_000.ts", h.proc.paths[0])
}

func TestRun_detection_in_overlap_zone(t *testing.T) {
	h := newHarness(30, hits(0, 9))

	require.NoError(t, h.p.Run(context.Background()))

	assert.Equal(t, []string{"segment_007.ts", "segment_022.ts"}, h.endSegments())
}

func TestRun_detection_outside_overlap_zone(t *testing.T) {
	h := newHarness(30, hits(0, 19))

	require.NoError(t, h.p.Run(context.Background()))

	assert.Equal(t, []string{"segment_007.ts", "segment_026.ts"}, h.endSegments())
}

func TestRun_no_detection_no_archive(t *testing.T) {
	h := newHarness(20, nil)

	require.NoError(t, h.p.Run(context.Background()))

	assert.Empty(t, h.arch.calls)
	expected := `
# HELP sparrowcam_segments_processed_total Total number of live segments run through detection
# TYPE sparrowcam_segments_processed_total counter
sparrowcam_segments_processed_total 20
# HELP sparrowcam_archive_pending_countdown Segments left before the pending archive fires, -1 when idle
# TYPE sparrowcam_archive_pending_countdown gauge
sparrowcam_archive_pending_countdown -1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected),
		"sparrowcam_segments_processed_total", "sparrowcam_archive_pending_countdown"))
}

func TestRun_prunes_against_live_window(t *testing.T) {
	h := newHarness(5, nil)

	require.NoError(t, h.p.Run(context.Background()))

	require.Len(t, h.pruner.calls, 5)
	assert.Equal(t, []string{"segment_002.ts", "segment_003.ts", "segment_004.ts"}, h.pruner.calls[4])
}

func TestRun_failures_do_not_stop_the_loop(t *testing.T) {
	h := newHarness(40, hits(0, 19))
	h.pruner.err = errors.New("disk full")
	h.arch.errs = []error{&archive.ValidationError{Reason: "No segment files found in stream directory"}, errors.New("copy failed")}

	require.NoError(t, h.p.Run(context.Background()))

	assert.Len(t, h.proc.paths, 40)
	assert.Equal(t, []string{"segment_007.ts", "segment_026.ts"}, h.endSegments())
	expected := `
# HELP sparrowcam_archives_total Archive attempts by result (created, rejected, failed)
# TYPE sparrowcam_archives_total counter
sparrowcam_archives_total{result="failed"} 1
sparrowcam_archives_total{result="rejected"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "sparrowcam_archives_total"))
}

func TestRun_pending_gauge_tracks_countdown(t *testing.T) {
	h := newHarness(3, hits(0))

	require.NoError(t, h.p.Run(context.Background()))

	expected := `
# HELP sparrowcam_archive_pending_countdown Segments left before the pending archive fires, -1 when idle
# TYPE sparrowcam_archive_pending_countdown gauge
sparrowcam_archive_pending_countdown 5
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "sparrowcam_archive_pending_countdown"))
}

func TestRun_stops_on_cancel(t *testing.T) {
	h := newHarness(100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.p.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.proc.paths)
}
