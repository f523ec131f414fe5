// Package upload persists uploaded files into the user's workspace and
// records them in the session.
package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atifdosyasi/dossier/internal/models"
	"github.com/atifdosyasi/dossier/internal/session"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"go.uber.org/zap"
)

// Intake writes uploaded payloads under the user's downloads and covers
// directories.
type Intake struct {
	ws       *workspace.Resolver
	sessions *session.Store
	logger   *zap.Logger
}

// NewIntake creates an intake over the given resolver and session store.
func NewIntake(ws *workspace.Resolver, sessions *session.Store, logger *zap.Logger) *Intake {
	return &Intake{ws: ws, sessions: sessions, logger: logger}
}

// StoreDownload writes data under the user's downloads directory using
// filename verbatim. Callers are responsible for distinct names, e.g. by
// prefixing with the article index.
func (in *Intake) StoreDownload(userID, filename string, data []byte) (string, error) {
	paths, err := in.ws.Resolve(userID)
	if err != nil {
		return "", err
	}
	// Strip any client-supplied directory components.
	path := filepath.Join(paths.Downloads, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("store download: %w", err)
	}
	return path, nil
}

// StoreCover writes a cover-page upload under downloads/covers with a
// filename synthesized from the sanitized DOI and the article/cover
// indices, then appends it to the session's matching citing article.
// If that article is gone from the session by write time, the file stays
// but the session link is skipped.
func (in *Intake) StoreCover(userID, doi string, articleIndex, coverIndex int, originalName string, data []byte) (string, error) {
	paths, err := in.ws.Resolve(userID)
	if err != nil {
		return "", err
	}
	ext := strings.TrimPrefix(filepath.Ext(originalName), ".")
	if ext == "" {
		ext = "pdf"
	}
	name := fmt.Sprintf("cover_%s_%d_%d.%s", SanitizeDOI(doi), articleIndex, coverIndex, ext)
	path := filepath.Join(paths.Covers, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("store cover: %w", err)
	}

	err = in.sessions.AppendCoverPage(userID, articleIndex, models.CoverPage{
		Name: originalName,
		Path: path,
	})
	if err != nil {
		if errors.Is(err, session.ErrStaleArticle) {
			in.logger.Warn("cover stored but article index gone from session",
				zap.String("user_id", userID), zap.Int("article_index", articleIndex))
			return path, nil
		}
		return "", err
	}
	return path, nil
}

// SanitizeDOI makes a DOI safe to embed in a filename. Filesystem-unsafe
// characters become an underscore escape carrying the character's hex
// code, and a literal underscore is escaped the same way, so the mapping
// is injective: two different DOIs always sanitize to different strings.
func SanitizeDOI(doi string) string {
	if doi == "" {
		return "unknown"
	}
	var b strings.Builder
	b.Grow(len(doi))
	for _, r := range doi {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '_':
			fmt.Fprintf(&b, "_%02x", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClearDownloads removes the contents of the user's downloads tree
// (covers included) and returns the removed top-level names. The
// generated directory is never touched: artifacts are durable output.
func (in *Intake) ClearDownloads(userID string) ([]string, error) {
	paths, err := in.ws.Resolve(userID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(paths.Downloads)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read downloads: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if e.Name() == ".gitkeep" {
			continue
		}
		p := filepath.Join(paths.Downloads, e.Name())
		if err := os.RemoveAll(p); err != nil {
			in.logger.Error("clear downloads entry failed", zap.String("path", p), zap.Error(err))
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
