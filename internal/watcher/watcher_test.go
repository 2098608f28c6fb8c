package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparrowcam/internal/platform/logger"
)

// step is the playlist state applied before a poll: nil removes the playlist,
// otherwise the listed segments are written (and their files created unless
// listed in missing).
type step struct {
	segments []string
	missing  []string
	absent   bool
}

type harness struct {
	t      *testing.T
	dir    string
	path   string
	steps  []step
	next   int
	slept  []time.Duration
	cancel context.CancelFunc
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{t: t, dir: dir, path: filepath.Join(dir, "sparrow_cam.m3u8"), steps: steps}
	h.apply()
	return h
}

func (h *harness) apply() {
	h.t.Helper()
	if h.next >= len(h.steps) {
		return
	}
	s := h.steps[h.next]
	h.next++
	if s.absent {
		_ = os.Remove(h.path)
		return
	}
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:2\n")
	for _, name := range s.segments {
		b.WriteString("#EXTINF:2.000,\n" + name + "\n")
		if !contains(s.missing, name) {
			require.NoError(h.t, os.WriteFile(filepath.Join(h.dir, name), []byte(name), 0o644))
		}
	}
	require.NoError(h.t, os.WriteFile(h.path, []byte(b.String()), 0o644))
}

// sleep advances the script and cancels once every step has been polled.
func (h *harness) sleep(ctx context.Context, d time.Duration) error {
	h.slept = append(h.slept, d)
	if h.next >= len(h.steps) {
		h.cancel()
		return context.Canceled
	}
	h.apply()
	return nil
}

func (h *harness) run() (*Watcher, []Segment) {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	defer cancel()
	w := New(h.path, Options{Logger: logger.Discard(), Sleep: h.sleep})

	var got []Segment
	for seg := range w.Segments(ctx) {
		got = append(got, seg)
	}
	return w, got
}

func names(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Name
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestSegments_yields_each_segment_once(t *testing.T) {
	h := newHarness(t,
		step{segments: []string{"segment_001.ts", "segment_002.ts"}},
		step{segments: []string{"segment_001.ts", "segment_002.ts", "segment_003.ts"}},
		step{segments: []string{"segment_001.ts", "segment_002.ts", "segment_003.ts"}},
	)

	w, got := h.run()

	assert.Equal(t, []string{"segment_001.ts", "segment_002.ts", "segment_003.ts"}, names(got))
	assert.Equal(t, filepath.Join(h.dir, "segment_001.ts"), got[0].Path)
	assert.Equal(t, []string{"segment_001.ts", "segment_002.ts", "segment_003.ts"}, w.Seen())
}

func TestSegments_seen_set_follows_live_window(t *testing.T) {
	h := newHarness(t,
		step{segments: []string{"segment_001.ts", "segment_002.ts", "segment_003.ts"}},
		step{segments: []string{"segment_002.ts", "segment_003.ts", "segment_004.ts"}},
	)

	w, got := h.run()

	assert.Equal(t, []string{"segment_001.ts", "segment_002.ts", "segment_003.ts", "segment_004.ts"}, names(got))
	assert.Equal(t, []string{"segment_002.ts", "segment_003.ts", "segment_004.ts"}, w.Seen())
}

func TestSegments_skips_missing_files(t *testing.T) {
	h := newHarness(t,
		step{segments: []string{"segment_001.ts", "segment_002.ts"}, missing: []string{"segment_002.ts"}},
		step{segments: []string{"segment_001.ts", "segment_002.ts"}},
	)

	w, got := h.run()

	assert.Equal(t, []string{"segment_001.ts"}, names(got))
	assert.Contains(t, w.Seen(), "segment_002.ts")
}

func TestSegments_backoff_while_playlist_missing(t *testing.T) {
	h := newHarness(t,
		step{absent: true},
		step{absent: true},
		step{absent: true},
		step{segments: []string{"segment_001.ts"}},
	)

	_, got := h.run()

	assert.Equal(t, []string{"segment_001.ts"}, names(got))
	assert.Equal(t, []time.Duration{
		time.Second,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		DefaultPollInterval,
	}, h.slept)
}

func TestSegments_backoff_caps_at_max(t *testing.T) {
	steps := make([]step, 10)
	for i := range steps {
		steps[i] = step{absent: true}
	}
	h := newHarness(t, steps...)

	h.run()

	require.Len(t, h.slept, 10)
	assert.Equal(t, DefaultMaxRetry, h.slept[len(h.slept)-1])
	for _, d := range h.slept {
		assert.LessOrEqual(t, d, DefaultMaxRetry)
	}
}

func TestSegments_empty_playlist_resets_backoff(t *testing.T) {
	h := newHarness(t,
		step{absent: true},
		step{absent: true},
		step{segments: nil},
		step{absent: true},
	)

	_, got := h.run()

	assert.Empty(t, got)
	assert.Equal(t, []time.Duration{
		time.Second,
		1500 * time.Millisecond,
		DefaultPollInterval,
		time.Second,
	}, h.slept)
}

func TestSegments_consumer_can_stop_early(t *testing.T) {
	h := newHarness(t, step{segments: []string{"a.ts", "b.ts", "c.ts"}})
	h.cancel = func() {}
	w := New(h.path, Options{Logger: logger.Discard(), Sleep: h.sleep})

	var got []string
	for seg := range w.Segments(context.Background()) {
		got = append(got, seg.Name)
		if len(got) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"a.ts", "b.ts"}, got)
}
