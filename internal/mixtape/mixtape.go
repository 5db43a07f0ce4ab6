// Package mixtape is the Mixtape Store (C8): a directory of JSON documents,
// one per mixtape, keyed by a slug derived from its title, with an optional
// client-assigned id for idempotent create-or-update from an offline client.
// Grounded on original_source's mixtape_manager.py — _sanitize_title,
// _generate_unique_slug, save/update/get/list_all/delete, the allowed_fields
// whitelist on update, legacy saved_at/title migration, and track
// reconciliation against the collection on read — rebuilt around a JSON file
// per mixtape written atomically (status.Publisher's temp+fsync+rename
// idiom) instead of Python's plain open()+json.dump.
package mixtape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nilsaxelsson/musiclib/pkg/muserr"
	"github.com/nilsaxelsson/musiclib/pkg/store"
)

// Track is one song entry inside a mixtape.
type Track struct {
	Path     string  `json:"path"`
	Filename string  `json:"filename"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	Track    string  `json:"track"`
	Duration float64 `json:"duration"`
	Cover    string  `json:"cover,omitempty"`
}

// Doc is a full mixtape document, spec §3/§6.
type Doc struct {
	Slug     string  `json:"slug"`
	ClientID string  `json:"client_id,omitempty"`
	Title    string  `json:"title"`
	Tracks   []Track `json:"tracks"`

	LinerNotes  string `json:"liner_notes"`
	Cover       string `json:"cover,omitempty"`
	CreatorName string `json:"creator_name,omitempty"`

	GiftFlowEnabled              bool   `json:"gift_flow_enabled"`
	UnwrapStyle                  string `json:"unwrap_style,omitempty"`
	ShowTracklistAfterCompletion bool   `json:"show_tracklist_after_completion"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// extra holds unknown top-level keys from the on-disk JSON so a document
	// written by a newer schema round-trips through Get/Save unchanged; see
	// rawfields.go.
	extra map[string]json.RawMessage `json:"-"`
}

// Patch is a whitelist of fields an update may change — one field per entry
// in mixtape_manager.py's allowed_fields, using pointers/Set flags so
// "omitted" and "explicitly cleared" are distinguishable.
type Patch struct {
	Title                        *string
	Tracks                       []Track
	TracksSet                    bool
	LinerNotes                   *string
	Cover                        *string
	CreatorName                  *string
	GiftFlowEnabled              *bool
	UnwrapStyle                  *string
	ShowTracklistAfterCompletion *bool
	ClientID                     *string
}

// Manager reads and writes mixtape documents under dir, storing processed
// cover images under coverDir. idx is optional: when set, Get reconciles
// cached track metadata against it; when nil, Get returns cached data as-is.
type Manager struct {
	dir           string
	coverDir      string
	coverMaxWidth int
	idx           *store.Store
	libraryRoot   string
	log           *logrus.Entry

	mu sync.Mutex
}

// New returns a Manager. idx may be nil if reconciliation against the Index
// Store is not wanted (e.g. a CLI tool operating only on mixtape files).
func New(dir, coverDir string, coverMaxWidth int, idx *store.Store, libraryRoot string, log *logrus.Entry) *Manager {
	return &Manager{
		dir:           dir,
		coverDir:      coverDir,
		coverMaxWidth: coverMaxWidth,
		idx:           idx,
		libraryRoot:   libraryRoot,
		log:           log,
	}
}

// Save creates a new mixtape, or updates an existing one if p.ClientID
// matches one already on disk (save()'s client_id lookup-then-delegate).
func (m *Manager) Save(ctx context.Context, p Patch) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ClientID != nil && *p.ClientID != "" {
		existing, err := m.findByClientID(*p.ClientID)
		if err != nil {
			return Doc{}, err
		}
		if existing != nil {
			return m.updateLocked(existing.Slug, p)
		}
	}

	title := ""
	if p.Title != nil {
		title = *p.Title
	}
	slug, err := m.uniqueSlug(title, "")
	if err != nil {
		return Doc{}, err
	}

	now := time.Now().UTC()
	doc := Doc{
		Slug:      slug,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyPatch(&doc, p)

	if err := m.persistCover(&doc, p.Cover); err != nil {
		return Doc{}, err
	}
	if err := m.write(doc); err != nil {
		return Doc{}, err
	}
	return doc, nil
}

// Update applies p to the mixtape at slug. Returns muserr.KindNotFound if no
// mixtape exists at that slug.
func (m *Manager) Update(ctx context.Context, slug string, p Patch) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(slug, p)
}

func (m *Manager) updateLocked(slug string, p Patch) (Doc, error) {
	doc, err := m.loadRaw(slug)
	if err != nil {
		return Doc{}, err
	}

	clientID := doc.ClientID
	applyPatch(&doc, p)
	if p.ClientID == nil {
		doc.ClientID = clientID
	}
	doc.Slug = slug
	doc.UpdatedAt = time.Now().UTC()

	if p.Cover != nil {
		if err := m.persistCover(&doc, p.Cover); err != nil {
			return Doc{}, err
		}
	}
	if err := m.write(doc); err != nil {
		return Doc{}, err
	}
	return doc, nil
}

func applyPatch(doc *Doc, p Patch) {
	if p.Title != nil {
		doc.Title = *p.Title
	}
	if p.TracksSet {
		doc.Tracks = p.Tracks
	}
	if p.LinerNotes != nil {
		doc.LinerNotes = *p.LinerNotes
	}
	if p.CreatorName != nil {
		doc.CreatorName = *p.CreatorName
	}
	if p.GiftFlowEnabled != nil {
		doc.GiftFlowEnabled = *p.GiftFlowEnabled
	}
	if p.UnwrapStyle != nil {
		doc.UnwrapStyle = *p.UnwrapStyle
	}
	if p.ShowTracklistAfterCompletion != nil {
		doc.ShowTracklistAfterCompletion = *p.ShowTracklistAfterCompletion
	}
	if p.ClientID != nil {
		doc.ClientID = *p.ClientID
	}
}

// persistCover converts a data: URL cover into a processed JPEG file and
// rewrites doc.Cover to point at it; a non-data-URL value (an existing
// "covers/slug.jpg" reference, or empty) is stored as-is.
func (m *Manager) persistCover(doc *Doc, cover *string) error {
	if cover == nil {
		return nil
	}
	if !strings.HasPrefix(*cover, "data:") {
		doc.Cover = *cover
		return nil
	}
	jpegBytes, err := processCoverDataURL(*cover, m.coverMaxWidth)
	if err != nil {
		return muserr.New(muserr.KindInvalidInput, "persistCover", err)
	}
	if err := os.MkdirAll(m.coverDir, 0o755); err != nil {
		return muserr.New(muserr.KindFatal, "persistCover", err)
	}
	coverPath := filepath.Join(m.coverDir, doc.Slug+".jpg")
	if err := os.WriteFile(coverPath, jpegBytes, 0o644); err != nil {
		return muserr.New(muserr.KindFatal, "persistCover", err)
	}
	doc.Cover = filepath.Join("covers", doc.Slug+".jpg")
	return nil
}

// Get loads the mixtape at slug and reconciles its cached track metadata
// against the Index Store. If the store is unavailable, the cached JSON
// data is returned as-is rather than failing the read.
func (m *Manager) Get(ctx context.Context, slug string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadRaw(slug)
	if err != nil {
		return Doc{}, err
	}

	if m.idx == nil {
		return doc, nil
	}

	changed := false
	for i, tr := range doc.Tracks {
		row, err := m.idx.GetByPath(ctx, tr.Path)
		if err != nil {
			if muserr.Is(err, muserr.KindNotFound) {
				continue
			}
			if m.log != nil {
				m.log.WithError(err).WithField("slug", slug).Warn("mixtape track reconciliation unavailable, using cached metadata")
			}
			return doc, nil
		}
		fresh := Track{
			Path:     tr.Path,
			Filename: row.Filename,
			Artist:   row.Artist,
			Album:    row.Album,
			Track:    row.Title,
			Duration: row.Duration,
			Cover:    tr.Cover,
		}
		if fresh != doc.Tracks[i] {
			doc.Tracks[i] = fresh
			changed = true
		}
	}

	if changed {
		if err := m.write(doc); err != nil {
			return Doc{}, err
		}
	}
	return doc, nil
}

// List returns every mixtape, newest-updated first, skipping any document
// that fails to parse (logged, not fatal — mirrors list_all's warn-and-skip).
func (m *Manager) List(ctx context.Context) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
	if err != nil {
		return nil, muserr.New(muserr.KindFatal, "List", err)
	}

	var docs []Doc
	for _, p := range paths {
		doc, err := readDocFile(p)
		if err != nil {
			if m.log != nil {
				m.log.WithError(err).WithField("path", p).Warn("skipping unreadable mixtape file")
			}
			continue
		}
		docs = append(docs, doc)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return docs, nil
}

// Delete removes the mixtape at slug and its cover file, if any. Deleting a
// mixtape that doesn't exist is not an error.
func (m *Manager) Delete(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.jsonPath(slug))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return muserr.New(muserr.KindFatal, "Delete", err)
	}

	coverPath := filepath.Join(m.coverDir, slug+".jpg")
	if err := os.Remove(coverPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return muserr.New(muserr.KindFatal, "Delete", err)
	}
	return nil
}

func (m *Manager) jsonPath(slug string) string {
	return filepath.Join(m.dir, slug+".json")
}

func (m *Manager) loadRaw(slug string) (Doc, error) {
	doc, err := readDocFile(m.jsonPath(slug))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Doc{}, muserr.New(muserr.KindNotFound, "loadRaw", err)
		}
		return Doc{}, err
	}
	return doc, nil
}

func (m *Manager) findByClientID(clientID string) (*Doc, error) {
	paths, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
	if err != nil {
		return nil, muserr.New(muserr.KindFatal, "findByClientID", err)
	}
	for _, p := range paths {
		doc, err := readDocFile(p)
		if err != nil {
			if m.log != nil {
				m.log.WithError(err).WithField("path", p).Warn("skipping unreadable mixtape file")
			}
			continue
		}
		if doc.ClientID == clientID {
			d := doc
			return &d, nil
		}
	}
	return nil, nil
}

// readDocFile reads and normalizes one mixtape JSON file, migrating legacy
// field names before unmarshaling into Doc.
func readDocFile(path string) (Doc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Doc{}, err
	}
	normalized, err := normalizeLegacyFields(raw)
	if err != nil {
		return Doc{}, fmt.Errorf("normalize %s: %w", path, err)
	}
	var doc Doc
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return Doc{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Slug == "" {
		doc.Slug = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return doc, nil
}

func (m *Manager) write(doc Doc) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return muserr.New(muserr.KindFatal, "write", err)
	}
	return writeAtomicJSON(m.jsonPath(doc.Slug), doc)
}

func writeAtomicJSON(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mixtape-*.tmp")
	if err != nil {
		return muserr.New(muserr.KindFatal, "writeAtomicJSON", err)
	}
	tmpPath := tmp.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return muserr.New(muserr.KindFatal, "writeAtomicJSON", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return muserr.New(muserr.KindFatal, "writeAtomicJSON", err)
	}
	if err := tmp.Close(); err != nil {
		return muserr.New(muserr.KindFatal, "writeAtomicJSON", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return muserr.New(muserr.KindFatal, "writeAtomicJSON", err)
	}
	succeeded = true
	return nil
}
