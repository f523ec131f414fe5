// Package catalog enumerates and deletes generated artifact sets from the
// filename conventions in a user's generated directory.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atifdosyasi/dossier/internal/apperr"
	"github.com/atifdosyasi/dossier/internal/models"
	"github.com/atifdosyasi/dossier/internal/session"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Artifact naming convention: {kind}_{YYYYMMDD_HHMMSS}.{ext}. The
// timestamp token is both the set's identity and its creation time.
const (
	finalPDFPrefix = "docentlik_atif_dosyasi_"
	excelPrefix    = "atif_raporu_"
	listPDFPrefix  = "atif_listesi_"
	tokenLayout    = "20060102_150405"
)

var (
	finalPDFPattern = regexp.MustCompile(`^docentlik_atif_dosyasi_(\d{8}_\d{6})\.pdf$`)
	tokenPattern    = regexp.MustCompile(`(\d{8}_\d{6})`)
)

const fallbackTitle = "Doçentlik Atıf Dosyası"

// Catalog lists and deletes generated artifact sets.
type Catalog struct {
	ws       *workspace.Resolver
	sessions *session.Store
	logger   *zap.Logger
}

// NewCatalog creates a catalog over the given resolver and session store.
func NewCatalog(ws *workspace.Resolver, sessions *session.Store, logger *zap.Logger) *Catalog {
	return &Catalog{ws: ws, sessions: sessions, logger: logger}
}

// List scans the user's generated directory for final PDFs and
// reconstructs one DocumentSummary per timestamp token. The token, not
// filesystem metadata, is the authoritative creation instant. Session
// data decorates the entries best-effort; results are ordered newest
// first. An empty list is a valid state, never an error.
func (c *Catalog) List(userID string) ([]models.DocumentSummary, error) {
	if userID == "" {
		return []models.DocumentSummary{}, nil
	}
	paths, err := c.ws.Resolve(userID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(paths.Generated)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.DocumentSummary{}, nil
		}
		return nil, fmt.Errorf("read generated dir: %w", err)
	}

	rec, _ := c.sessions.Load(userID)
	title := fallbackTitle
	if rec.SourceArticle != nil && rec.SourceArticle.Title != "" {
		title = rec.SourceArticle.Title
	}

	docs := make([]models.DocumentSummary, 0, len(entries))
	for _, e := range entries {
		m := finalPDFPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		token := m[1]
		created, err := time.ParseInLocation(tokenLayout, token, time.Local)
		if err != nil {
			c.logger.Warn("artifact with malformed timestamp token skipped",
				zap.String("name", e.Name()))
			continue
		}

		files := models.GeneratedFiles{
			FinalPDF: filepath.Join(paths.Generated, e.Name()),
		}
		excelPath := filepath.Join(paths.Generated, excelPrefix+token+".xlsx")
		if _, err := os.Stat(excelPath); err == nil {
			files.Excel = excelPath
		}
		listPath := filepath.Join(paths.Generated, listPDFPrefix+token+".pdf")
		if _, err := os.Stat(listPath); err == nil {
			files.ListPDF = listPath
		}

		docs = append(docs, models.DocumentSummary{
			ID:            token,
			ArticleTitle:  title,
			CreatedAt:     created,
			CitationCount: c.citationCount(rec, files.Excel),
			Files:         files,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

// citationCount prefers the live session's citing-article count; with no
// session it falls back to counting data rows in the generated Excel
// report, and to a placeholder when that too is unavailable.
func (c *Catalog) citationCount(rec models.SessionRecord, excelPath string) string {
	if len(rec.CitingArticles) > 0 {
		return strconv.Itoa(len(rec.CitingArticles))
	}
	if excelPath != "" {
		if n, ok := excelRowCount(excelPath); ok {
			return strconv.Itoa(n)
		}
	}
	return "-"
}

func excelRowCount(path string) (int, bool) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, false
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil || len(rows) == 0 {
		return 0, false
	}
	// First row is the header.
	return len(rows) - 1, true
}

// Delete removes an artifact set by timestamp token, or a single explicit
// path plus its inferable siblings. An explicit path must lie inside the
// caller's generated directory. Deletion is best-effort per file: missing
// files are simply excluded from the returned list, so a repeated call
// reports nothing deleted without erroring.
func (c *Catalog) Delete(userID, id, path string) ([]string, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if id == "" && path == "" {
		return nil, apperr.Validation("id", "document id or path required")
	}
	paths, err := c.ws.Resolve(userID)
	if err != nil {
		return nil, err
	}

	var targets []string
	switch {
	case path != "":
		if !workspace.Within(paths.Generated, path) {
			return nil, fmt.Errorf("%w: cannot delete files outside your directory", apperr.ErrAccessDenied)
		}
		targets = append(targets, path)
		// A final PDF drags its siblings along via the shared token.
		if strings.Contains(filepath.Base(path), finalPDFPrefix) {
			if m := tokenPattern.FindStringSubmatch(filepath.Base(path)); m != nil {
				targets = append(targets,
					filepath.Join(paths.Generated, excelPrefix+m[1]+".xlsx"),
					filepath.Join(paths.Generated, listPDFPrefix+m[1]+".pdf"),
				)
			}
		}
	default:
		targets = append(targets,
			filepath.Join(paths.Generated, finalPDFPrefix+id+".pdf"),
			filepath.Join(paths.Generated, excelPrefix+id+".xlsx"),
			filepath.Join(paths.Generated, listPDFPrefix+id+".pdf"),
		)
	}

	deleted := make([]string, 0, len(targets))
	for _, t := range targets {
		if err := os.Remove(t); err != nil {
			if !os.IsNotExist(err) {
				c.logger.Error("delete artifact failed", zap.String("path", t), zap.Error(err))
			}
			continue
		}
		deleted = append(deleted, t)
	}
	return deleted, nil
}
