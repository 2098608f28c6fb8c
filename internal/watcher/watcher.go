// Package watcher discovers new segments in a live HLS playlist that an
// upstream encoder rewrites in place.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"sparrowcam/internal/playlist"
)

// Defaults mirror the encoder's cadence of roughly one segment per second.
const (
	DefaultPollInterval = time.Second
	DefaultInitialRetry = time.Second
	DefaultMaxRetry     = 10 * time.Second
	retryMultiplier     = 1.5
)

// Segment is a newly observed segment file.
type Segment struct {
	Name string
	Path string
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes polling. Zero values fall back to the defaults above.
type Options struct {
	PollInterval time.Duration
	InitialRetry time.Duration
	MaxRetry     time.Duration
	Logger       *slog.Logger
	// Sleep replaces the real timer; tests use it to drive the loop.
	Sleep SleepFunc
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.InitialRetry <= 0 {
		o.InitialRetry = DefaultInitialRetry
	}
	if o.MaxRetry < o.InitialRetry {
		o.MaxRetry = max(DefaultMaxRetry, o.InitialRetry)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
}

// Watcher polls one playlist file. It is not safe for concurrent use: the
// goroutine ranging over Segments owns it.
type Watcher struct {
	playlistPath string
	dir          string
	opts         Options
	retry        *backoff.ExponentialBackOff
	seen         map[string]struct{}
}

// New returns a watcher for the playlist at playlistPath. Segment files are
// expected next to the playlist.
func New(playlistPath string, opts Options) *Watcher {
	opts.defaults()
	retry := &backoff.ExponentialBackOff{
		InitialInterval:     opts.InitialRetry,
		RandomizationFactor: 0,
		Multiplier:          retryMultiplier,
		MaxInterval:         opts.MaxRetry,
	}
	retry.Reset()
	return &Watcher{
		playlistPath: playlistPath,
		dir:          filepath.Dir(playlistPath),
		opts:         opts,
		retry:        retry,
		seen:         make(map[string]struct{}),
	}
}

// Segments yields every segment that appears in the playlist, each name at
// most once for the lifetime of the watcher. The sequence ends only when ctx
// is cancelled or the consumer stops ranging.
func (w *Watcher) Segments(ctx context.Context) iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		for ctx.Err() == nil {
			names, wait := w.read()
			for _, name := range names {
				if _, ok := w.seen[name]; ok {
					continue
				}
				w.seen[name] = struct{}{}
				path := filepath.Join(w.dir, name)
				if _, err := os.Stat(path); err != nil {
					w.opts.Logger.Warn("segment file not found", slog.String("path", path))
					continue
				}
				if !yield(Segment{Name: name, Path: path}) {
					return
				}
			}
			if names != nil {
				w.retain(names)
			}
			if err := w.opts.Sleep(ctx, wait); err != nil {
				return
			}
		}
	}
}

// Seen returns the tracked segment names, sorted.
func (w *Watcher) Seen() []string {
	names := make([]string, 0, len(w.seen))
	for name := range w.seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// read returns the playlist's segment names, or nil when the playlist is not
// ready, together with how long to wait before the next poll.
func (w *Watcher) read() ([]string, time.Duration) {
	content, err := os.ReadFile(w.playlistPath)
	if err != nil {
		delay := w.retry.NextBackOff()
		if errors.Is(err, fs.ErrNotExist) {
			w.opts.Logger.Info("waiting for playlist", slog.String("path", w.playlistPath), slog.Duration("retry_in", delay))
		} else {
			w.opts.Logger.Warn("playlist read failed", slog.String("path", w.playlistPath), slog.String("error", err.Error()))
		}
		return nil, delay
	}

	w.retry.Reset()
	names := playlist.SegmentNames(string(content))
	if len(names) == 0 {
		w.opts.Logger.Debug("no segments in playlist yet", slog.String("path", w.playlistPath))
		return nil, w.opts.PollInterval
	}
	return names, w.opts.PollInterval
}

// retain drops tracked names that left the live window.
func (w *Watcher) retain(current []string) {
	live := make(map[string]struct{}, len(current))
	for _, name := range current {
		live[name] = struct{}{}
	}
	for name := range w.seen {
		if _, ok := live[name]; !ok {
			delete(w.seen, name)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
