// Package playlist reads and writes the subset of HLS media playlists the
// encoder produces: a block of playlist-level tags, then segment URIs each
// preceded by their own directive lines.
package playlist

import (
	"regexp"
	"strings"
)

// headerTags are playlist-level tags. They belong to the header wherever they
// appear; every other directive belongs to the segment that follows it.
var headerTags = map[string]struct{}{
	"#EXTM3U":                       {},
	"#EXT-X-VERSION":                {},
	"#EXT-X-MEDIA-SEQUENCE":         {},
	"#EXT-X-TARGETDURATION":         {},
	"#EXT-X-STREAM-INF":             {},
	"#EXT-X-PLAYLIST-TYPE":          {},
	"#EXT-X-DISCONTINUITY-SEQUENCE": {},
	"#EXT-X-INDEPENDENT-SEGMENTS":   {},
	"#EXT-X-ALLOW-CACHE":            {},
}

// liveSegmentName is the restricted charset the encoder uses for segment files.
var liveSegmentName = regexp.MustCompile(`^[a-z0-9_-]+\.ts$`)

// Segment is one media segment and the directives that introduce it.
type Segment struct {
	Metadata []string `json:"metadata"`
	Name     string   `json:"name"`
}

// Snapshot is a parsed playlist. Snapshots are values: selection methods
// return new snapshots and never modify the receiver.
type Snapshot struct {
	Header   []string  `json:"header"`
	Segments []Segment `json:"segments"`
	// Trailer holds directives after the last segment, e.g. #EXT-X-ENDLIST.
	Trailer []string `json:"trailer,omitempty"`
}

// IsHeaderTag reports whether line is a playlist-level tag.
func IsHeaderTag(line string) bool {
	tag, _, _ := strings.Cut(line, ":")
	_, ok := headerTags[tag]
	return ok
}

// SegmentNames returns, in playlist order, every line that is exactly a live
// segment filename. Lines outside the restricted charset are ignored.
func SegmentNames(content string) []string {
	var names []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if liveSegmentName.MatchString(line) {
			names = append(names, line)
		}
	}
	return names
}

// Parse splits playlist text into header lines and segment groups. Blank
// lines are dropped and surrounding whitespace is trimmed.
func Parse(content string) Snapshot {
	var (
		snap    Snapshot
		pending []string
	)
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case IsHeaderTag(line):
			snap.Header = append(snap.Header, line)
		case strings.HasPrefix(line, "#"):
			pending = append(pending, line)
		default:
			snap.Segments = append(snap.Segments, Segment{Metadata: pending, Name: line})
			pending = nil
		}
	}
	snap.Trailer = pending
	return snap
}

// Names lists segment filenames in order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Segments))
	for i, seg := range s.Segments {
		names[i] = seg.Name
	}
	return names
}

// Tail keeps the last limit segments. A non-positive limit, or one at least
// as large as the segment count, keeps everything.
func (s Snapshot) Tail(limit int) Snapshot {
	if limit <= 0 || limit >= len(s.Segments) {
		return s
	}
	out := s
	out.Segments = s.Segments[len(s.Segments)-limit:]
	return out
}

// EndingAt keeps at most limit segments ending with the segment named end,
// inclusive. A non-positive limit keeps every segment up to end. The boolean
// is false, and s is returned unchanged, when end is not in the playlist.
func (s Snapshot) EndingAt(end string, limit int) (Snapshot, bool) {
	idx := -1
	for i, seg := range s.Segments {
		if seg.Name == end {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, false
	}
	start := 0
	if limit > 0 && idx+1-limit > 0 {
		start = idx + 1 - limit
	}
	out := s
	out.Segments = s.Segments[start : idx+1]
	return out, true
}

// Lines flattens the snapshot back into playlist lines: header, then each
// segment's directives followed by its name, then the trailer.
func (s Snapshot) Lines() []string {
	n := len(s.Header) + len(s.Trailer)
	for _, seg := range s.Segments {
		n += len(seg.Metadata) + 1
	}
	lines := make([]string, 0, n)
	lines = append(lines, s.Header...)
	for _, seg := range s.Segments {
		lines = append(lines, seg.Metadata...)
		lines = append(lines, seg.Name)
	}
	return append(lines, s.Trailer...)
}

// Render returns the playlist text, one directive per line, newline terminated.
func (s Snapshot) Render() string {
	var b strings.Builder
	for _, line := range s.Lines() {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
