// Package pipeline drives the live stream through detection, annotation,
// scheduling and archiving, one segment at a time.
package pipeline

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"sparrowcam/internal/archive"
	"sparrowcam/internal/platform/metrics"
	"sparrowcam/internal/scheduler"
	"sparrowcam/internal/watcher"
)

// Source yields new segments and reports the live window.
type Source interface {
	Segments(ctx context.Context) iter.Seq[watcher.Segment]
	Seen() []string
}

// Processor reduces a segment to a detected flag and annotates it.
type Processor interface {
	Process(ctx context.Context, path, name string) bool
}

// Pruner drops annotations for segments that left the live window.
type Pruner interface {
	Prune(live []string) (bool, error)
}

// Archiver snapshots the live stream.
type Archiver interface {
	Archive(limit *int, prefix, endSegment string) (archive.Result, error)
}

// Options holds the optional collaborators.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Pipeline is single-threaded: each segment is fully handled before the
// next one is requested, which keeps the scheduler's counters in order.
type Pipeline struct {
	source    Source
	processor Processor
	pruner    Pruner
	scheduler *scheduler.Scheduler
	archiver  Archiver
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New wires a pipeline. Metrics may be nil.
func New(src Source, proc Processor, pruner Pruner, sched *scheduler.Scheduler, arch Archiver, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		source:    src,
		processor: proc,
		pruner:    pruner,
		scheduler: sched,
		archiver:  arch,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}
}

// Run consumes segments until ctx is cancelled or the source ends. Failures
// on a single segment are logged and never stop the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("pipeline started")
	for seg := range p.source.Segments(ctx) {
		p.handle(ctx, seg)
	}
	p.log.Info("pipeline stopped")
	return ctx.Err()
}

func (p *Pipeline) handle(ctx context.Context, seg watcher.Segment) {
	start := time.Now()

	detected := p.processor.Process(ctx, seg.Path, seg.Name)

	if _, err := p.pruner.Prune(p.source.Seen()); err != nil {
		p.log.Error("prune annotations", slog.String("error", err.Error()))
	}

	wasPending := p.scheduler.State().PendingCountdown != nil
	trig, fire := p.scheduler.Observe(seg.Name, detected)
	st := p.scheduler.State()
	if !wasPending && (st.PendingCountdown != nil || fire) {
		p.log.Info("archive scheduled",
			slog.String("segment", seg.Name),
			slog.Int("counter", st.SegmentCounter),
			slog.Int("remaining", st.Pending()),
		)
	}
	if fire {
		p.archive(trig)
	}

	took := time.Since(start)
	if p.metrics != nil {
		p.metrics.SetPending(st.Pending())
		p.metrics.ObserveSegment(detected, took)
	}
	p.log.Debug("segment handled",
		slog.String("segment", seg.Name),
		slog.Bool("bird_detected", detected),
		slog.Duration("processing_time", took),
	)
}

func (p *Pipeline) archive(trig scheduler.Trigger) {
	p.log.Info("archive triggered",
		slog.String("end_segment", trig.EndSegment),
		slog.Int("limit", trig.Limit),
		slog.Int("counter", trig.Counter),
	)
	_, err := p.archiver.Archive(archive.Limit(trig.Limit), trig.Prefix, trig.EndSegment)

	result := metrics.ArchiveCreated
	switch {
	case errors.Is(err, archive.ErrValidation):
		result = metrics.ArchiveRejected
	case err != nil:
		result = metrics.ArchiveFailed
	}
	if p.metrics != nil {
		p.metrics.IncArchive(result)
	}
}
