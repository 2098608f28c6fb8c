// Package detection decides whether the subject is visible in a live segment
// by sampling a few frames and handing crops of them to an external detector.
package detection

import (
	"context"
	"image"
	"image/draw"
	"log/slog"
)

// DefaultFrameSamples is the number of frames checked per segment.
const DefaultFrameSamples = 2

// Annotator records the per-segment outcome.
type Annotator interface {
	Annotate(name string, detected bool) error
}

// Options configures an Orchestrator.
type Options struct {
	Preset       Preset
	FrameSamples int
	Logger       *slog.Logger
}

// Orchestrator reduces one segment to a single detected flag.
type Orchestrator struct {
	opener    VideoOpener
	detector  Detector
	annotator Annotator
	preset    Preset
	samples   int
	log       *slog.Logger
}

// NewOrchestrator wires the video backend, detector and annotation store.
func NewOrchestrator(opener VideoOpener, detector Detector, annotator Annotator, opts Options) *Orchestrator {
	if opts.FrameSamples <= 0 {
		opts.FrameSamples = DefaultFrameSamples
	}
	if opts.Preset.Params == (Params{}) {
		opts.Preset.Params = DefaultParams
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opener:    opener,
		detector:  detector,
		annotator: annotator,
		preset:    opts.Preset,
		samples:   opts.FrameSamples,
		log:       opts.Logger,
	}
}

// Process samples the segment at path and reports whether the subject was
// found. A segment that cannot be opened is logged and reported as false
// without being annotated. Otherwise the outcome is annotated under name.
func (o *Orchestrator) Process(ctx context.Context, path, name string) bool {
	video, err := o.opener.Open(ctx, path)
	if err != nil {
		o.log.Error("cannot open segment", slog.String("segment", name), slog.String("error", err.Error()))
		return false
	}
	detected := o.scan(ctx, video, name)
	if err := video.Close(); err != nil {
		o.log.Warn("close segment", slog.String("segment", name), slog.String("error", err.Error()))
	}

	if err := o.annotator.Annotate(name, detected); err != nil {
		o.log.Error("annotate segment", slog.String("segment", name), slog.String("error", err.Error()))
	}
	o.log.Info("segment processed", slog.String("segment", name), slog.Bool("bird_detected", detected))
	return detected
}

func (o *Orchestrator) scan(ctx context.Context, video Video, name string) bool {
	for _, idx := range SampleIndices(video.FrameCount(), o.samples) {
		if ctx.Err() != nil {
			return false
		}
		frame, err := video.Frame(ctx, idx)
		if err != nil {
			o.log.Error("cannot read frame", slog.String("segment", name), slog.Int("frame", idx), slog.String("error", err.Error()))
			continue
		}
		if o.detectFrame(ctx, frame, name, idx) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) detectFrame(ctx context.Context, frame image.Image, name string, idx int) bool {
	regions := o.preset.Regions
	if len(regions) == 0 {
		return o.detect(ctx, frame, name, idx)
	}
	for _, r := range regions {
		crop, ok := cropRegion(frame, r)
		if !ok {
			o.log.Warn("region outside frame", slog.String("segment", name), slog.Any("region", r))
			continue
		}
		if o.detect(ctx, crop, name, idx) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) detect(ctx context.Context, img image.Image, name string, idx int) bool {
	boxes, err := o.detector.Detect(ctx, img, o.preset.Params)
	if err != nil {
		o.log.Error("detector failed", slog.String("segment", name), slog.Int("frame", idx), slog.String("error", err.Error()))
		return false
	}
	return len(boxes) > 0
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropRegion clips r to the frame. The result keeps the frame's coordinate
// space when the image type supports SubImage.
func cropRegion(frame image.Image, r Region) (image.Image, bool) {
	rect := image.Rect(r[0], r[1], r[2], r[3]).Add(frame.Bounds().Min).Intersect(frame.Bounds())
	if rect.Empty() {
		return nil, false
	}
	if s, ok := frame.(subImager); ok {
		return s.SubImage(rect), true
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, rect.Min, draw.Src)
	return dst, true
}
