package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atifdosyasi/dossier/internal/apperr"
	"github.com/atifdosyasi/dossier/internal/models"
	"github.com/atifdosyasi/dossier/internal/session"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"go.uber.org/zap"
)

// Orchestrator turns accumulated session state into a generation run:
// normalize, snapshot the session, invoke the engine, reconcile its
// result.
type Orchestrator struct {
	ws       *workspace.Resolver
	sessions *session.Store
	runner   *Runner
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(ws *workspace.Resolver, sessions *session.Store, runner *Runner, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{ws: ws, sessions: sessions, runner: runner, logger: logger}
}

// Request is the input to one generation run.
type Request struct {
	Candidate      models.Candidate
	SourceArticle  models.SourceArticle
	CitingArticles []models.CitingArticle
}

// engineResult is the JSON object the engine prints as its final stdout
// line on a generate run.
type engineResult struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	Files   models.GeneratedFiles `json:"files"`
}

// Generate validates and normalizes the request, persists it as the
// session snapshot, invokes the engine, and returns the three produced
// artifact paths. Validation failures occur before any I/O.
func (o *Orchestrator) Generate(ctx context.Context, userID string, req Request) (models.GeneratedFiles, error) {
	if userID == "" {
		return models.GeneratedFiles{}, apperr.ErrUnauthorized
	}
	if req.Candidate.Name == "" {
		return models.GeneratedFiles{}, apperr.Validation("candidateInfo", "candidate info is required")
	}
	if len(req.CitingArticles) == 0 {
		return models.GeneratedFiles{}, apperr.Validation("citingArticles", "at least one citing article is required")
	}

	paths, err := o.ws.Resolve(userID)
	if err != nil {
		return models.GeneratedFiles{}, err
	}

	rec := o.normalize(req, paths)
	if err := o.sessions.Save(userID, rec); err != nil {
		return models.GeneratedFiles{}, fmt.Errorf("persist session snapshot: %w", err)
	}

	// One token per run names all three outputs so the catalog can
	// correlate them as a single logical document.
	token := time.Now().Format("20060102_150405")
	extra := []string{
		"generate",
		"--session", paths.SessionFile,
		"--output", paths.Generated,
		"--timestamp", token,
	}

	var result engineResult
	out, err := o.runner.Run(ctx, extra, &result)
	if err != nil {
		return models.GeneratedFiles{}, err
	}
	if !result.Success {
		return models.GeneratedFiles{}, &apperr.EngineError{
			Msg: "generation failed: " + result.Message, Stdout: out.Stdout, Stderr: out.Stderr,
		}
	}

	o.logger.Info("generation complete",
		zap.String("user_id", userID),
		zap.String("id", token),
		zap.String("final_pdf", result.Files.FinalPDF),
	)
	return result.Files, nil
}

// normalize shapes the request into the canonical session record. A
// relative pdf_path is resolved against the user's downloads directory;
// an absolute one is kept as-is, since client state may carry either form
// depending on upload history.
func (o *Orchestrator) normalize(req Request, paths workspace.Paths) models.SessionRecord {
	candidate := req.Candidate
	source := req.SourceArticle
	if source.Year == 0 {
		source.Year = time.Now().Year()
	}
	articles := make([]models.CitingArticle, len(req.CitingArticles))
	for i, a := range req.CitingArticles {
		if a.PDFPath != "" && !filepath.IsAbs(a.PDFPath) {
			a.PDFPath = filepath.Join(paths.Downloads, a.PDFPath)
		}
		if a.TitlePage == 0 {
			a.TitlePage = 1
		}
		articles[i] = a
	}
	return models.SessionRecord{
		Candidate:      &candidate,
		SourceArticle:  &source,
		CitingArticles: articles,
		SavedAt:        time.Now().UTC().Format(time.RFC3339),
	}
}

// CheckResult is the engine's verdict on whether an uploaded PDF cites
// the source article, with the extracted evidence.
type CheckResult struct {
	Status          string      `json:"status"`
	Message         string      `json:"message,omitempty"`
	Found           bool        `json:"found"`
	CitationPages   []int       `json:"citation_pages,omitempty"`
	CitationBBoxes  [][]float64 `json:"citation_bboxes,omitempty"`
	ReferencePage   *int        `json:"reference_page,omitempty"`
	ReferenceNumber *int        `json:"reference_number,omitempty"`
	ReferenceBBox   []float64   `json:"reference_bbox,omitempty"`
}

// checkRequest is the payload handed to the engine's check mode through a
// temporary request file.
type checkRequest struct {
	PDFPath     string                 `json:"pdf_path"`
	ArticleData map[string]interface{} `json:"article_data"`
}

// CheckCitation asks the engine whether the stored PDF cites the source
// article. The request travels through a temporary JSON file in the
// user's downloads directory, removed when the run finishes.
func (o *Orchestrator) CheckCitation(ctx context.Context, userID, pdfPath string, articleData map[string]interface{}) (CheckResult, error) {
	if userID == "" {
		return CheckResult{}, apperr.ErrUnauthorized
	}
	paths, err := o.ws.Resolve(userID)
	if err != nil {
		return CheckResult{}, err
	}

	payload, err := json.Marshal(checkRequest{PDFPath: pdfPath, ArticleData: articleData})
	if err != nil {
		return CheckResult{}, fmt.Errorf("marshal check request: %w", err)
	}
	reqFile := filepath.Join(paths.Downloads, fmt.Sprintf("temp_req_%d.json", time.Now().UnixNano()))
	if err := os.WriteFile(reqFile, payload, 0644); err != nil {
		return CheckResult{}, fmt.Errorf("write check request: %w", err)
	}
	defer os.Remove(reqFile)

	var result CheckResult
	if _, err := o.runner.Run(ctx, []string{"check", "--request", reqFile}, &result); err != nil {
		return CheckResult{}, err
	}
	return result, nil
}
