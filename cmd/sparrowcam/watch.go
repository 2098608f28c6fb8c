package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sparrowcam/internal/annotation"
	"sparrowcam/internal/detection"
	"sparrowcam/internal/pipeline"
	"sparrowcam/internal/platform/logger"
	"sparrowcam/internal/platform/metrics"
	"sparrowcam/internal/scheduler"
	"sparrowcam/internal/status"
	"sparrowcam/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the detection pipeline and the status server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := loadSettings()
			return runWatch(cmd.Context(), s, logger.NewWithOptions(s.Log))
		},
	}
}

func runWatch(parent context.Context, s settings, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	preset := detection.DefaultPreset()
	if s.PresetPath != "" {
		var err error
		if preset, err = detection.LoadPreset(s.PresetPath); err != nil {
			return err
		}
	}

	store := annotation.NewFileStore(s.AnnotationsPath, log)
	orch := detection.NewOrchestrator(
		detection.NewFFmpeg(s.FFmpegPath, s.FFprobePath),
		detection.NewHTTPDetector(s.DetectorURL, nil),
		store,
		detection.Options{Preset: preset, FrameSamples: s.FrameSamples, Logger: log},
	)
	w := watcher.New(s.playlistPath(), watcher.Options{
		PollInterval: s.PollInterval,
		InitialRetry: s.RetryInitial,
		MaxRetry:     s.RetryMax,
		Logger:       log,
	})
	sched := scheduler.New(s.Delay, s.Count)
	met := metrics.New()
	p := pipeline.New(w, orch, store, sched, s.newArchiver(log), pipeline.Options{Metrics: met, Logger: log})

	srv := &http.Server{
		Addr:              ":" + s.StatusPort,
		Handler:           status.NewRouter(status.NewHandler(store, sched, log), log, met),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("sparrowcam starting",
		slog.String("playlist", s.playlistPath()),
		slog.String("archive_dir", s.ArchiveDir),
		slog.String("status_port", s.StatusPort),
		slog.Int("archive_delay", s.Delay),
		slog.Int("archive_count", s.Count),
		slog.Int("regions", len(preset.Regions)),
		slog.String("log_level", s.Log.Level),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		log.Error("sparrowcam stopped", slog.String("error", err.Error()))
		return err
	}
	log.Info("sparrowcam stopped")
	return nil
}
