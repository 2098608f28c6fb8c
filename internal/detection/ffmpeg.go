package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
)

// Video is an opened segment. Close must be called on every path.
type Video interface {
	FrameCount() int
	Frame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// VideoOpener opens a segment file for frame access.
type VideoOpener interface {
	Open(ctx context.Context, path string) (Video, error)
}

// FFmpeg pulls frames through the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpeg returns an opener using the given binaries, or the ones on PATH
// when empty.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Open probes the first video stream and counts its frames.
func (f *FFmpeg) Open(ctx context.Context, path string) (Video, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, f.FFprobePath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}

	n, err := parseFrameCount(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return &ffmpegVideo{ffmpeg: f.FFmpegPath, path: path, frames: n}, nil
}

func parseFrameCount(probe []byte) (int, error) {
	var data struct {
		Streams []struct {
			NbReadPackets string `json:"nb_read_packets"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(probe, &data); err != nil {
		return 0, fmt.Errorf("decode probe output: %w", err)
	}
	if len(data.Streams) == 0 {
		return 0, fmt.Errorf("no video stream")
	}
	n, err := strconv.Atoi(data.Streams[0].NbReadPackets)
	if err != nil {
		return 0, fmt.Errorf("frame count %q: %w", data.Streams[0].NbReadPackets, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("no frames")
	}
	return n, nil
}

type ffmpegVideo struct {
	ffmpeg string
	path   string
	frames int
}

func (v *ffmpegVideo) FrameCount() int { return v.frames }

// Frame decodes a single frame as PNG over a pipe.
func (v *ffmpegVideo) Frame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 || index >= v.frames {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", index, v.frames)
	}
	args := []string{
		"-v", "error",
		"-i", v.path,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	}
	cmd := exec.CommandContext(ctx, v.ffmpeg, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame %d of %s: %w: %s", index, v.path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg frame %d of %s: empty output", index, v.path)
	}
	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d of %s: %w", index, v.path, err)
	}
	return img, nil
}

// Close is a no-op: every frame runs its own ffmpeg process.
func (v *ffmpegVideo) Close() error { return nil }
