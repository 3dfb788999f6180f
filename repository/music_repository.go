package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"moodfm/logger"
	"moodfm/model"
	"moodfm/storage"

	json "github.com/goccy/go-json"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("music record not found")
	// ErrForbidden is returned when the requester does not own the record.
	ErrForbidden = errors.New("music record belongs to another user")
)

// ParseError reports a fallback file that exists but is not a JSON array of
// records. It is never recovered from by resetting the collection.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse music data file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AssetRemover deletes media assets named by MusicRecord.FilePath.
type AssetRemover interface {
	Remove(ctx context.Context, name string) error
}

// MusicRepository is the local fallback data source for music records.
type MusicRepository interface {
	Load() ([]model.MusicRecord, error)
	Save(records []model.MusicRecord) error
	Create(record model.MusicRecord) error
	Upsert(id string, record model.MusicRecord) error
	MergeByID(id string, requester string, patch model.MusicRecord) error
	DeleteByID(id string, requester string) (*model.MusicRecord, error)
	ListForOwner(owner string) ([]model.MusicRecord, error)
	FindByID(id string) (*model.MusicRecord, error)
}

// jsonMusicRepository keeps the whole collection in one JSON array file. Every
// call reads the full file and every write replaces it; mu serializes the
// load-mutate-save cycles of this process.
type jsonMusicRepository struct {
	path   string
	assets AssetRemover
	// placeholder is the shared stand-in asset; deleting a record that points
	// at it leaves the file alone.
	placeholder string
	mu          sync.Mutex
}

// NewJSONMusicRepository creates a repository backed by path. assets may be
// nil; placeholder names the media file that is never removed with a record.
func NewJSONMusicRepository(path string, assets AssetRemover, placeholder string) MusicRepository {
	return &jsonMusicRepository{path: path, assets: assets, placeholder: placeholder}
}

func (r *jsonMusicRepository) Load() ([]model.MusicRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *jsonMusicRepository) Save(records []model.MusicRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(records)
}

func (r *jsonMusicRepository) load() ([]model.MusicRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.MusicRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read music data file %s: %w", r.path, err)
	}

	var records []model.MusicRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &ParseError{Path: r.path, Err: err}
	}
	if records == nil {
		// a literal null is well-formed JSON but not a collection
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			return nil, &ParseError{Path: r.path, Err: errors.New("expected a JSON array, got null")}
		}
		records = []model.MusicRecord{}
	}
	return records, nil
}

// save writes a temporary file next to the target and renames it over the
// target, so readers see either the old or the new collection.
func (r *jsonMusicRepository) save(records []model.MusicRecord) error {
	if records == nil {
		records = []model.MusicRecord{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode music records: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", r.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", r.path, err)
	}
	return nil
}

// Create appends record. The caller guarantees the id is unique.
func (r *jsonMusicRepository) Create(record model.MusicRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	records = append(records, record)
	if err := r.save(records); err != nil {
		return err
	}
	logger.Debug("[MusicRepository] record created", logger.String("id", record.ID), logger.Int("count", len(records)))
	return nil
}

func indexOf(records []model.MusicRecord, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

// Upsert replaces the record with the same id in place, or appends it.
// An existing created_at always survives the replacement.
func (r *jsonMusicRepository) Upsert(id string, record model.MusicRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	record.ID = id
	if i := indexOf(records, id); i >= 0 {
		if records[i].CreatedAt != "" {
			record.CreatedAt = records[i].CreatedAt
		}
		records[i] = record
	} else {
		records = append(records, record)
	}
	return r.save(records)
}

// MergeByID merges the non-zero fields of patch into the record with the
// same id, or appends patch as a new record. Merging into an existing record
// requires CanModify; an owner already set is kept.
func (r *jsonMusicRepository) MergeByID(id string, requester string, patch model.MusicRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	if i := indexOf(records, id); i >= 0 {
		if !CanModify(&records[i], requester) {
			return fmt.Errorf("%w: %s", ErrForbidden, id)
		}
		if records[i].HasOwner() {
			patch.UserID = ""
		}
		records[i].MergeFrom(patch)
	} else {
		patch.ID = id
		records = append(records, patch)
	}
	return r.save(records)
}

// CanModify reports whether requester may change or delete rec. An empty
// requester is a session-less request and may modify anything.
func CanModify(rec *model.MusicRecord, requester string) bool {
	return requester == "" || !rec.HasOwner() || rec.UserID == requester
}

// DeleteByID removes the record when requester may delete it. An empty
// requester means a session-less request, which may delete any record.
// The record's media asset is removed on a best-effort basis.
func (r *jsonMusicRepository) DeleteByID(id string, requester string) (*model.MusicRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := records[i]
	if !CanModify(&removed, requester) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, id)
	}

	records = append(records[:i], records[i+1:]...)
	if err := r.save(records); err != nil {
		return nil, err
	}

	if r.assets != nil && removed.FilePath != "" && removed.FilePath != r.placeholder {
		if err := r.assets.Remove(context.Background(), removed.FilePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("[MusicRepository] failed to remove media asset",
				logger.String("id", id),
				logger.String("file_path", removed.FilePath),
				logger.ErrorField(err))
		}
	}
	return &removed, nil
}

// ListForOwner returns the records of owner (all records when owner is
// empty), newest first. Records without created_at are left out.
func (r *jsonMusicRepository) ListForOwner(owner string) ([]model.MusicRecord, error) {
	records, err := r.Load()
	if err != nil {
		return nil, err
	}

	out := make([]model.MusicRecord, 0, len(records))
	for _, rec := range records {
		if owner != "" && rec.UserID != owner {
			continue
		}
		if rec.CreatedAt == "" {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return model.CreatedAfter(out[i].CreatedAt, out[j].CreatedAt)
	})
	return out, nil
}

func (r *jsonMusicRepository) FindByID(id string) (*model.MusicRecord, error) {
	records, err := r.Load()
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, id); i >= 0 {
		rec := records[i]
		return &rec, nil
	}
	return nil, nil
}
