// Package archive snapshots the live HLS stream into permanent, timestamped
// folders that each hold a self-contained playlist and its segments.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"sparrowcam/internal/playlist"
)

const (
	playlistExt = ".m3u8"
	segmentExt  = ".ts"
	dirMode     = 0o775
	// timestampLayout is second-precision UTC, e.g. 2024-05-01T12:30:00Z.
	timestampLayout = "2006-01-02T15:04:05Z"
	partitionLayout = "2006/01/02"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("archive validation failed")

// ValidationError is returned when preconditions fail. Nothing on disk has
// been touched when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Limit is a convenience for building the optional limit argument.
func Limit(n int) *int { return &n }

// Options configures an Archiver.
type Options struct {
	StreamDir     string
	ArchiveRoot   string
	DatePartition bool // nest folders under YYYY/MM/DD
	Now           func() time.Time
	NewID         func() string
	Logger        *slog.Logger
}

// Archiver copies the live stream into the archive root.
type Archiver struct {
	streamDir     string
	archiveRoot   string
	datePartition bool
	now           func() time.Time
	newID         func() string
	log           *slog.Logger
}

// New returns an Archiver for opts.
func New(opts Options) *Archiver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Archiver{
		streamDir:     opts.StreamDir,
		archiveRoot:   opts.ArchiveRoot,
		datePartition: opts.DatePartition,
		now:           opts.Now,
		newID:         opts.NewID,
		log:           opts.Logger,
	}
}

// CopyResult locates a freshly copied, not yet trimmed archive folder.
type CopyResult struct {
	DestinationPath  string
	PlaylistFilename string
}

// PlaylistData is the window selected from the copied playlist.
type PlaylistData struct {
	Filename string
	Snapshot playlist.Snapshot
	// Trimmed is set when the window drops segments from the copied
	// playlist. An untrimmed copy is left byte-identical.
	Trimmed bool
}

// Result describes a finished archive.
type Result struct {
	Path     string
	Segments int
	Bytes    int64
}

// Validate checks every precondition without touching the filesystem and
// returns the name of the single live playlist. A nil limit means no limit.
func (a *Archiver) Validate(limit *int) (string, error) {
	if limit != nil && *limit <= 0 {
		return "", invalid("Segment limit must be positive, got %d", *limit)
	}
	if !isDir(a.streamDir) {
		return "", invalid("Stream directory does not exist")
	}
	if !isDir(a.archiveRoot) {
		return "", invalid("Archive directory does not exist")
	}

	entries, err := os.ReadDir(a.streamDir)
	if err != nil {
		return "", fmt.Errorf("read stream dir: %w", err)
	}
	var playlists []string
	segments := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case playlistExt:
			playlists = append(playlists, e.Name())
		case segmentExt:
			segments++
		}
	}
	// Segments first so an empty stream directory reads as "no segments".
	switch {
	case segments == 0:
		return "", invalid("No segment files found in stream directory")
	case len(playlists) == 0:
		return "", invalid("No playlist file found in stream directory")
	case len(playlists) > 1:
		return "", invalid("Multiple playlist files found in stream directory")
	}
	return playlists[0], nil
}

// CopyStream creates a new archive folder and copies the playlist and every
// live segment file into it unchanged.
func (a *Archiver) CopyStream(playlistFilename, prefix string) (CopyResult, error) {
	now := a.now().UTC()
	name := FolderName(prefix, now, a.newID())
	parent := a.archiveRoot
	if a.datePartition {
		parent = filepath.Join(a.archiveRoot, filepath.FromSlash(now.Format(partitionLayout)))
	}
	dest := filepath.Join(parent, name)

	if err := os.MkdirAll(dest, dirMode); err != nil {
		return CopyResult{}, fmt.Errorf("create archive folder: %w", err)
	}
	res := CopyResult{DestinationPath: dest, PlaylistFilename: playlistFilename}
	// MkdirAll is subject to umask; group write is required on every level.
	if err := a.chmodUpTo(dest); err != nil {
		return res, err
	}

	if err := copyFile(filepath.Join(a.streamDir, playlistFilename), filepath.Join(dest, playlistFilename)); err != nil {
		return res, err
	}
	entries, err := os.ReadDir(a.streamDir)
	if err != nil {
		return res, fmt.Errorf("read stream dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != segmentExt {
			continue
		}
		if err := copyFile(filepath.Join(a.streamDir, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (a *Archiver) chmodUpTo(dest string) error {
	root := filepath.Clean(a.archiveRoot)
	for dir := dest; dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if err := os.Chmod(dir, dirMode); err != nil {
			return fmt.Errorf("chmod %s: %w", dir, err)
		}
	}
	return nil
}

// GetPlaylistData parses the copied playlist and selects the window to keep.
// With endSegment present in the playlist the window ends at it, inclusive;
// otherwise it is the trailing limit segments. A nil limit keeps everything
// the end segment allows.
func (a *Archiver) GetPlaylistData(cr CopyResult, limit *int, endSegment string) (PlaylistData, error) {
	b, err := os.ReadFile(filepath.Join(cr.DestinationPath, cr.PlaylistFilename))
	if err != nil {
		return PlaylistData{}, fmt.Errorf("read copied playlist: %w", err)
	}
	snap := playlist.Parse(string(b))

	n := 0
	if limit != nil {
		n = *limit
	}
	if endSegment != "" {
		if sel, ok := snap.EndingAt(endSegment, n); ok {
			return selection(cr, snap, sel), nil
		}
		a.log.Warn("end segment not in playlist; keeping trailing window",
			slog.String("end_segment", endSegment), slog.Int("limit", n))
	}
	return selection(cr, snap, snap.Tail(n)), nil
}

func selection(cr CopyResult, full, sel playlist.Snapshot) PlaylistData {
	return PlaylistData{
		Filename: cr.PlaylistFilename,
		Snapshot: sel,
		Trimmed:  len(sel.Segments) != len(full.Segments),
	}
}

// CleanArchive removes every segment file not in data and, when the window
// was trimmed, rewrites the playlist to list exactly the kept segments.
func (a *Archiver) CleanArchive(dest string, data PlaylistData) error {
	keep := make(map[string]struct{}, len(data.Snapshot.Segments))
	for _, name := range data.Snapshot.Names() {
		keep[name] = struct{}{}
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		return fmt.Errorf("read archive folder: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != segmentExt {
			continue
		}
		if _, ok := keep[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dest, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}

	if !data.Trimmed {
		return nil
	}
	if err := os.WriteFile(filepath.Join(dest, data.Filename), []byte(data.Snapshot.Render()), 0o644); err != nil {
		return fmt.Errorf("rewrite playlist: %w", err)
	}
	return nil
}

// Archive runs Validate, CopyStream, GetPlaylistData and CleanArchive in
// order. Validation failures are logged and returned as *ValidationError
// with nothing created. An I/O failure after the folder exists removes the
// partial folder before returning the original error.
func (a *Archiver) Archive(limit *int, prefix, endSegment string) (Result, error) {
	pl, err := a.Validate(limit)
	if err != nil {
		a.log.Error("archive rejected", slog.String("reason", err.Error()))
		return Result{}, err
	}

	cr, err := a.CopyStream(pl, prefix)
	if err == nil {
		var data PlaylistData
		data, err = a.GetPlaylistData(cr, limit, endSegment)
		if err == nil {
			err = a.CleanArchive(cr.DestinationPath, data)
		}
		if err == nil {
			res := Result{Path: cr.DestinationPath, Segments: len(data.Snapshot.Segments), Bytes: dirSize(cr.DestinationPath)}
			a.log.Info("archived stream",
				slog.String("path", res.Path),
				slog.Int("segments", res.Segments),
				slog.String("size", humanize.Bytes(uint64(res.Bytes))),
			)
			return res, nil
		}
	}

	a.log.Error("archive failed", slog.String("error", err.Error()))
	if cr.DestinationPath != "" {
		if rmErr := os.RemoveAll(cr.DestinationPath); rmErr != nil {
			a.log.Warn("remove partial archive", slog.String("path", cr.DestinationPath), slog.String("error", rmErr.Error()))
		}
	}
	return Result{}, err
}

// FolderName builds "[prefix_]YYYY-MM-DDTHH:MM:SSZ_uuid".
func FolderName(prefix string, t time.Time, id string) string {
	name := t.UTC().Format(timestampLayout) + "_" + id
	if prefix != "" {
		name = prefix + "_" + name
	}
	return name
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// copyFile copies contents, mode and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func dirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if info, err := e.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total
}
