package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// folderPattern matches archive folder names with an optional prefix.
var folderPattern = regexp.MustCompile(
	`^(?:(\w+)_)?(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)_([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`,
)

// Entry summarises one archive folder.
type Entry struct {
	Name     string
	Path     string
	Prefix   string
	Created  time.Time
	ID       string
	Segments int
	Bytes    int64
}

// ParseFolderName splits an archive folder name into prefix, creation time
// and id. ok is false for anything that is not an archive folder.
func ParseFolderName(name string) (prefix string, created time.Time, id string, ok bool) {
	m := folderPattern.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, "", false
	}
	t, err := time.Parse(timestampLayout, m[2])
	if err != nil {
		return "", time.Time{}, "", false
	}
	return m[1], t, m[3], true
}

// List finds archive folders under root, flat or nested in YYYY/MM/DD
// partitions, oldest first.
func List(root string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		prefix, created, id, ok := ParseFolderName(d.Name())
		if !ok {
			rel, _ := filepath.Rel(root, path)
			// Partitions are YYYY/MM/DD; nothing deeper is searched.
			if depth(rel) > 3 {
				return fs.SkipDir
			}
			return nil
		}
		e := Entry{Name: d.Name(), Path: path, Prefix: prefix, Created: created, ID: id}
		if err := e.stat(); err != nil {
			return err
		}
		out = append(out, e)
		return fs.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (e *Entry) stat() error {
	entries, err := os.ReadDir(e.Path)
	if err != nil {
		return err
	}
	for _, f := range entries {
		info, err := f.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		e.Bytes += info.Size()
		if filepath.Ext(f.Name()) == segmentExt {
			e.Segments++
		}
	}
	return nil
}

func depth(rel string) int {
	n := 1
	for _, r := range rel {
		if r == filepath.Separator {
			n++
		}
	}
	return n
}
