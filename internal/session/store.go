// Package session reads, merges, and writes the per-user session record.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/atifdosyasi/dossier/internal/models"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"go.uber.org/zap"
)

// Store persists one SessionRecord per user as JSON in the user's
// workspace. All access to one userID's file, reads included, is
// serialized through a per-user mutex, so concurrent cover uploads or
// session saves cannot lose updates and readers never race a writer.
type Store struct {
	ws     *workspace.Resolver
	logger *zap.Logger
	locks  sync.Map // userID -> *sync.Mutex
}

// NewStore creates a session store over the given workspace resolver.
func NewStore(ws *workspace.Resolver, logger *zap.Logger) *Store {
	return &Store{ws: ws, logger: logger}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Load returns the user's session record. A missing or unparseable file
// yields an empty record, never an error: a corrupt session is treated as
// a fresh one.
func (s *Store) Load(userID string) (models.SessionRecord, error) {
	paths, err := s.ws.Resolve(userID)
	if err != nil {
		return models.SessionRecord{}, err
	}
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.read(paths.SessionFile), nil
}

func (s *Store) read(path string) models.SessionRecord {
	var rec models.SessionRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("session file unparseable, treating as empty",
			zap.String("path", path), zap.Error(err))
		return models.SessionRecord{}
	}
	return rec
}

// Save replaces the user's session record wholesale.
func (s *Store) Save(userID string, rec models.SessionRecord) error {
	paths, err := s.ws.Resolve(userID)
	if err != nil {
		return err
	}
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.write(paths.SessionFile, rec)
}

// write replaces the session file atomically so a reader from another
// process never sees a truncated record.
func (s *Store) write(path string, rec models.SessionRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

// Merge applies a field-scoped partial update. Candidate, SourceArticle,
// CitingArticles, and UploadedFiles replace wholesale when provided.
// UpdateArticle performs a shallow property merge on the entry at its
// index; an out-of-range index is a no-op, preserving compatibility with
// late-arriving client updates.
func (s *Store) Merge(userID string, upd models.SessionUpdate) error {
	paths, err := s.ws.Resolve(userID)
	if err != nil {
		return err
	}
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec := s.read(paths.SessionFile)
	changed := false
	if upd.Candidate != nil {
		rec.Candidate = upd.Candidate
		changed = true
	}
	if upd.SourceArticle != nil {
		rec.SourceArticle = upd.SourceArticle
		changed = true
	}
	if upd.CitingArticles != nil {
		rec.CitingArticles = upd.CitingArticles
		changed = true
	}
	if upd.UploadedFiles != nil {
		rec.UploadedFiles = upd.UploadedFiles
		changed = true
	}
	if upd.UpdateArticle != nil {
		applied, err := mergeArticle(&rec, upd.UpdateArticle)
		if err != nil {
			return err
		}
		changed = changed || applied
	}
	if !changed {
		// Nothing applied (e.g. an out-of-range article update): leave
		// the file untouched.
		return nil
	}
	rec.SavedAt = time.Now().UTC().Format(time.RFC3339)
	return s.write(paths.SessionFile, rec)
}

// mergeArticle overlays upd.Data onto the citing article at upd.Index.
// The overlay goes through JSON so that only the keys present in Data
// overwrite; everything else on the stored entry survives. Reports
// whether the entry was actually replaced.
func mergeArticle(rec *models.SessionRecord, upd *models.ArticleUpdate) (bool, error) {
	if upd.Index < 0 || upd.Index >= len(rec.CitingArticles) {
		return false, nil
	}
	current, err := json.Marshal(rec.CitingArticles[upd.Index])
	if err != nil {
		return false, fmt.Errorf("marshal article %d: %w", upd.Index, err)
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return false, fmt.Errorf("unmarshal article %d: %w", upd.Index, err)
	}
	for k, v := range upd.Data {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return false, fmt.Errorf("marshal merged article %d: %w", upd.Index, err)
	}
	var out models.CitingArticle
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("unmarshal merged article %d: %w", upd.Index, err)
	}
	rec.CitingArticles[upd.Index] = out
	return true, nil
}

// AppendCoverPage appends a cover entry to the citing article at index.
// Returns ErrStaleArticle when the index no longer exists in the session;
// the cover file itself stays on disk, only the session link is skipped.
func (s *Store) AppendCoverPage(userID string, index int, cover models.CoverPage) error {
	paths, err := s.ws.Resolve(userID)
	if err != nil {
		return err
	}
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	rec := s.read(paths.SessionFile)
	if index < 0 || index >= len(rec.CitingArticles) {
		return ErrStaleArticle
	}
	rec.CitingArticles[index].CoverPages = append(rec.CitingArticles[index].CoverPages, cover)
	return s.write(paths.SessionFile, rec)
}

// ErrStaleArticle means the targeted citing article no longer exists in
// the session. Callers treat it as a skipped mutation, not a failure.
var ErrStaleArticle = errors.New("citing article index no longer in session")

// Clear removes the user's session file. A missing file is not an error.
func (s *Store) Clear(userID string) (bool, error) {
	paths, err := s.ws.Resolve(userID)
	if err != nil {
		return false, err
	}
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	if err := os.Remove(paths.SessionFile); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove session: %w", err)
	}
	return true, nil
}
