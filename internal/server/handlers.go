package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/atifdosyasi/dossier/internal/apperr"
	"github.com/atifdosyasi/dossier/internal/auth"
	"github.com/atifdosyasi/dossier/internal/docinfo"
	"github.com/atifdosyasi/dossier/internal/generate"
	"github.com/atifdosyasi/dossier/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const maxUploadBytes = 64 << 20

// userID extracts the caller's identity from the configured cookie, with
// an X-User-Id header fallback. Empty means unauthenticated.
func (s *Server) userID(r *http.Request) string {
	if c, err := r.Cookie(s.config.Auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-User-Id")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Institution string `json:"institution"`
	Department  string `json:"department"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.users.Register(r.Context(), req.Name, req.Email, req.Password, req.Institution, req.Department)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Auth.CookieName,
		Value:    user.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		// No identity reads as an empty session, not an error.
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":         true,
			"candidate":       nil,
			"source_article":  nil,
			"citing_articles": []models.CitingArticle{},
		})
		return
	}
	rec, err := s.sessions.Load(userID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	citing := rec.CitingArticles
	if citing == nil {
		citing = []models.CitingArticle{}
	}
	uploaded := rec.UploadedFiles
	if uploaded == nil {
		uploaded = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"candidate":       rec.Candidate,
		"source_article":  rec.SourceArticle,
		"citing_articles": citing,
		"uploaded_files":  uploaded,
	})
}

func (s *Server) handleSessionData(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondJSON(w, http.StatusOK, models.SessionRecord{})
		return
	}
	rec, err := s.sessions.Load(userID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

// candidateInfoPayload is the client-side shape of candidate data; it
// carries both the candidate identity and the source-article fields.
type candidateInfoPayload struct {
	Name               string `json:"name"`
	Institution        string `json:"institution"`
	Department         string `json:"department"`
	ApplicationPeriod  string `json:"applicationPeriod"`
	ArticleTitle       string `json:"articleTitle"`
	DOI                string `json:"doi"`
	FirstAuthorSurname string `json:"firstAuthorSurname"`
	Year               int    `json:"year"`
}

type sessionSaveRequest struct {
	CandidateInfo  *candidateInfoPayload  `json:"candidate_info,omitempty"`
	CitingArticles []models.CitingArticle `json:"citing_articles,omitempty"`
	UploadedFiles  []string               `json:"uploaded_files,omitempty"`
	UpdateArticle  *models.ArticleUpdate  `json:"update_article,omitempty"`
}

func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	var req sessionSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := models.SessionUpdate{
		CitingArticles: req.CitingArticles,
		UploadedFiles:  req.UploadedFiles,
		UpdateArticle:  req.UpdateArticle,
	}
	if ci := req.CandidateInfo; ci != nil {
		upd.Candidate = &models.Candidate{
			Name:              ci.Name,
			Institution:       ci.Institution,
			Department:        ci.Department,
			ApplicationPeriod: ci.ApplicationPeriod,
		}
		year := ci.Year
		if year == 0 {
			year = time.Now().Year()
		}
		var authors []string
		if ci.FirstAuthorSurname != "" {
			authors = []string{ci.FirstAuthorSurname}
		}
		upd.SourceArticle = &models.SourceArticle{
			Title:   ci.ArticleTitle,
			DOI:     ci.DOI,
			Authors: authors,
			Year:    year,
		}
	}

	if err := s.sessions.Merge(userID, upd); err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Session saved"})
}

// readUploadedFile pulls the named file part out of a multipart request.
func readUploadedFile(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func (s *Server) handleExtractDOI(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	data, filename, err := readUploadedFile(r, "file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file")
		return
	}
	path, err := s.intake.StoreDownload(userID, filename, data)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	result, err := docinfo.ExtractDOI(path)
	if err != nil {
		s.logger.Warn("DOI extraction failed", zap.String("path", path), zap.Error(err))
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false, "filename": filename, "found": false, "message": err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filename": filename,
		"doi":      result.DOI,
		"source":   result.Source,
		"found":    result.Found,
	})
}

func (s *Server) handleCheckPDF(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	data, filename, err := readUploadedFile(r, "file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file or data")
		return
	}
	rawData := r.FormValue("data")
	if rawData == "" {
		s.respondError(w, http.StatusBadRequest, "missing file or data")
		return
	}
	var articleData map[string]interface{}
	if err := json.Unmarshal([]byte(rawData), &articleData); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid article data")
		return
	}

	path, err := s.intake.StoreDownload(userID, filename, data)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	// The session's source article is authoritative over whatever the
	// client still has in memory.
	if rec, err := s.sessions.Load(userID); err == nil && rec.SourceArticle != nil {
		articleData["source_title"] = rec.SourceArticle.Title
		articleData["source_doi"] = rec.SourceArticle.DOI
		articleData["source_authors"] = rec.SourceArticle.Authors
		articleData["source_year"] = rec.SourceArticle.Year
	}

	result, err := s.orchestrator.CheckCitation(r.Context(), userID, path, articleData)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"status":           result.Status,
		"found":            result.Found,
		"citation_pages":   result.CitationPages,
		"citation_bboxes":  result.CitationBBoxes,
		"reference_page":   result.ReferencePage,
		"reference_number": result.ReferenceNumber,
		"reference_bbox":   result.ReferenceBBox,
	})
}

func (s *Server) handleUploadCover(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	data, filename, err := readUploadedFile(r, "file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file")
		return
	}
	doi := r.FormValue("doi")
	articleIndex, _ := strconv.Atoi(r.FormValue("index"))
	coverIndex, _ := strconv.Atoi(r.FormValue("coverIndex"))

	path, err := s.intake.StoreCover(userID, doi, articleIndex, coverIndex, filename, data)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Cover uploaded",
		"path":     path,
		"filename": filepath.Base(path),
	})
}

type generateRequest struct {
	CandidateInfo *candidateInfoPayload `json:"candidateInfo"`
	SourceArticle *struct {
		ArticleTitle string `json:"articleTitle"`
		Title        string `json:"title"`
		DOI          string `json:"doi"`
		Year         int    `json:"year"`
	} `json:"sourceArticle,omitempty"`
	CitingArticles []models.CitingArticle `json:"citingArticles"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CandidateInfo == nil {
		s.respondError(w, http.StatusBadRequest, "missing required data: candidateInfo or citingArticles")
		return
	}

	ci := req.CandidateInfo
	source := models.SourceArticle{Title: ci.ArticleTitle, DOI: ci.DOI, Year: ci.Year}
	if sa := req.SourceArticle; sa != nil {
		if sa.Title != "" {
			source.Title = sa.Title
		}
		if sa.ArticleTitle != "" {
			source.Title = sa.ArticleTitle
		}
		if sa.DOI != "" {
			source.DOI = sa.DOI
		}
		if sa.Year != 0 {
			source.Year = sa.Year
		}
	}
	if ci.FirstAuthorSurname != "" {
		source.Authors = []string{ci.FirstAuthorSurname}
	}

	files, err := s.orchestrator.Generate(r.Context(), userID, generate.Request{
		Candidate: models.Candidate{
			Name:              ci.Name,
			Institution:       ci.Institution,
			Department:        ci.Department,
			ApplicationPeriod: ci.ApplicationPeriod,
		},
		SourceArticle:  source,
		CitingArticles: req.CitingArticles,
	})
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "files": files})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	docs, err := s.catalog.List(userID)
	if err != nil {
		// The document list degrades to empty rather than erroring.
		s.logger.Error("document list failed", zap.String("user_id", userID), zap.Error(err))
		s.respondJSON(w, http.StatusOK, []models.DocumentSummary{})
		return
	}
	s.respondJSON(w, http.StatusOK, docs)
}

type deleteDocumentRequest struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	var req deleteDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	deleted, err := s.catalog.Delete(userID, req.ID, req.Path)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Document deleted successfully",
		"deleted": deleted,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	var deletedFiles []string
	removedSession, err := s.sessions.Clear(userID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	if removedSession {
		deletedFiles = append(deletedFiles, "session_data.json")
	}
	removed, err := s.intake.ClearDownloads(userID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	deletedFiles = append(deletedFiles, removed...)
	if deletedFiles == nil {
		deletedFiles = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      "User data cleared successfully",
		"deletedFiles": deletedFiles,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		s.respondError(w, http.StatusUnauthorized, apperr.ErrUnauthorized.Error())
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	paths, err := s.ws.Resolve(userID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	if !paths.Contains(path) {
		s.respondError(w, http.StatusForbidden, apperr.ErrAccessDenied.Error())
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

// respondAppError maps the error taxonomy onto HTTP statuses. Engine
// errors carry both captured streams in the body for diagnosis.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	var vErr *apperr.ValidationError
	if errors.As(err, &vErr) {
		s.respondError(w, http.StatusBadRequest, vErr.Error())
		return
	}
	var eErr *apperr.EngineError
	if errors.As(err, &eErr) {
		s.logger.Error("engine error", zap.String("msg", eErr.Msg), zap.String("stderr", eErr.Stderr))
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  eErr.Error(),
			"stdout": eErr.Stdout,
			"stderr": eErr.Stderr,
		})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		s.respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apperr.ErrAccessDenied):
		s.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
