package main

import (
	"log/slog"
	"path/filepath"
	"time"

	"sparrowcam/internal/archive"
	"sparrowcam/internal/detection"
	"sparrowcam/internal/platform/config"
	"sparrowcam/internal/platform/logger"
	"sparrowcam/internal/scheduler"
	"sparrowcam/internal/watcher"
)

// settings is everything read from the environment.
type settings struct {
	StreamDir       string
	PlaylistName    string
	ArchiveDir      string
	DatePartition   bool
	AnnotationsPath string
	PresetPath      string
	DetectorURL     string
	FFmpegPath      string
	FFprobePath     string

	Delay        int
	Count        int
	FrameSamples int

	PollInterval time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration

	StatusPort string
	Log        logger.Options
}

func loadSettings() settings {
	return settings{
		StreamDir:       config.GetEnv("STREAM_DIR", "/var/www/html/hls"),
		PlaylistName:    config.GetEnv("PLAYLIST_NAME", "sparrow_cam.m3u8"),
		ArchiveDir:      config.GetEnv("ARCHIVE_DIR", "/var/www/html/storage/sparrow_cam/archive"),
		DatePartition:   config.GetEnvBool("ARCHIVE_DATE_PARTITION", false),
		AnnotationsPath: config.GetEnv("ANNOTATIONS_PATH", "/var/www/html/annotations/bird.json"),
		PresetPath:      config.GetEnv("DETECTION_PRESET_PATH", ""),
		DetectorURL:     config.GetEnv("DETECTOR_URL", "http://localhost:8000/detect"),
		FFmpegPath:      config.GetEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     config.GetEnv("FFPROBE_PATH", "ffprobe"),

		Delay:        config.GetEnvInt("ARCHIVE_DELAY", scheduler.DefaultDelay),
		Count:        config.GetEnvInt("ARCHIVE_COUNT", scheduler.DefaultCount),
		FrameSamples: config.GetEnvInt("FRAME_SAMPLES", detection.DefaultFrameSamples),

		PollInterval: config.GetEnvDuration("POLL_INTERVAL", watcher.DefaultPollInterval),
		RetryInitial: config.GetEnvDuration("RETRY_INITIAL", watcher.DefaultInitialRetry),
		RetryMax:     config.GetEnvDuration("RETRY_MAX", watcher.DefaultMaxRetry),

		StatusPort: config.GetEnv("STATUS_PORT", "8080"),
		Log: logger.Options{
			Level:      config.GetEnv("LOG_LEVEL", "info"),
			Format:     config.GetEnv("LOG_FORMAT", "json"),
			File:       config.GetEnv("LOG_FILE", ""),
			MaxSizeMB:  config.GetEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: config.GetEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: config.GetEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
	}
}

func (s settings) playlistPath() string {
	return filepath.Join(s.StreamDir, s.PlaylistName)
}

func (s settings) newArchiver(log *slog.Logger) *archive.Archiver {
	return archive.New(archive.Options{
		StreamDir:     s.StreamDir,
		ArchiveRoot:   s.ArchiveDir,
		DatePartition: s.DatePartition,
		Logger:        log,
	})
}
