// Package tagreader is the Tag Reader (C1): given a file path, extracts
// artist/album/title/year/duration/albumartist/genre using
// github.com/dhowden/tag, falling back to path-derived values (parent
// directory names, file stem) on any extraction error so a malformed file
// never aborts a scan.
package tagreader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// SupportedExts lists the extensions the Tag Reader (and therefore the
// Filesystem Scanner and Change Watcher) will attempt to read.
var SupportedExts = map[string]bool{
	".mp3": true, ".flac": true, ".ogg": true, ".oga": true,
	".m4a": true, ".mp4": true, ".wav": true, ".wma": true,
}

// IsSupported reports whether path has a supported audio extension.
func IsSupported(path string) bool {
	return SupportedExts[strings.ToLower(filepath.Ext(path))]
}

// albumIgnoreSet holds directory names that must not be treated as an
// album title when falling back to the parent directory name.
var albumIgnoreSet = map[string]bool{
	"": true, ".": true, "..": true, "Music": true, "music": true,
}

// Record is the raw extracted (or path-derived) metadata for one file.
type Record struct {
	Artist      string
	Album       string
	Title       string
	AlbumArtist string
	Genre       string
	Year        *int
	Duration    float64
}

// Read extracts tags from path. It never returns an error that should abort
// the caller's scan: any tag-library failure degrades to an empty-tag
// result and fallbacks below fill every field.
func Read(path string) Record {
	var m tag.Metadata
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		m, _ = tag.ReadFrom(f)
	}

	rec := Record{}
	rec.Artist = artist(m, path)
	rec.Album = album(m, path)
	rec.Title = title(m, path)
	rec.AlbumArtist = coalesce(tagAlbumArtist(m), rec.Artist)
	rec.Genre = coalesce(tagGenre(m), "Unknown")
	rec.Year = year(m)
	rec.Duration = duration(path)
	return rec
}

// artist implements: tag.artist → tag.albumartist → parent-of-parent
// directory name → "Unknown".
func artist(m tag.Metadata, path string) string {
	if m != nil {
		if a := strings.TrimSpace(m.Artist()); a != "" {
			return a
		}
		if a := strings.TrimSpace(m.AlbumArtist()); a != "" {
			return a
		}
	}
	grandparent := filepath.Base(filepath.Dir(filepath.Dir(path)))
	if grandparent != "" && grandparent != "." && grandparent != string(filepath.Separator) {
		return grandparent
	}
	return "Unknown"
}

// album implements: tag.album → parent directory name (unless in the
// ignore set, then parent-of-parent) → "Unknown".
func album(m tag.Metadata, path string) string {
	if m != nil {
		if a := strings.TrimSpace(m.Album()); a != "" {
			return a
		}
	}
	parent := filepath.Base(filepath.Dir(path))
	if !albumIgnoreSet[parent] {
		return parent
	}
	grandparent := filepath.Base(filepath.Dir(filepath.Dir(path)))
	if !albumIgnoreSet[grandparent] {
		return grandparent
	}
	return "Unknown"
}

// title implements: tag.title → file stem → "Unknown".
func title(m tag.Metadata, path string) string {
	if m != nil {
		if t := strings.TrimSpace(m.Title()); t != "" {
			return t
		}
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem != "" {
		return stem
	}
	return "Unknown"
}

// year returns tag.year as extracted by dhowden/tag, which for ID3/Vorbis
// frames already resolves a dated value like "2004-03-01" down to its
// leading year component. A zero or absent year yields nil.
func year(m tag.Metadata) *int {
	if m == nil {
		return nil
	}
	if y := m.Year(); y > 0 {
		v := y
		return &v
	}
	return nil
}

func tagAlbumArtist(m tag.Metadata) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.AlbumArtist())
}

func tagGenre(m tag.Metadata) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.Genre())
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
