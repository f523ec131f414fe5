// Package models defines core data structures for sessions, articles, and generated documents.
package models

// Candidate identifies the dossier's subject.
type Candidate struct {
	Name              string `json:"name"`
	Institution       string `json:"institution"`
	Department        string `json:"department"`
	ApplicationPeriod string `json:"application_period"`
}

// SourceArticle is the publication the dossier collects citations for.
type SourceArticle struct {
	Title   string   `json:"title"`
	DOI     string   `json:"doi"`
	Authors []string `json:"authors"`
	Year    int      `json:"year"`
}

// CoverPage is one uploaded journal cover attached to a citing article.
type CoverPage struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// CitingArticle is one publication citing the source article, with the
// evidence extracted from its PDF. Bounding boxes are [x0, y0, x1, y1].
type CitingArticle struct {
	Title           string      `json:"title"`
	Authors         []string    `json:"authors"`
	Journal         string      `json:"journal"`
	Year            int         `json:"year"`
	Volume          string      `json:"volume"`
	Issue           string      `json:"issue"`
	Pages           string      `json:"pages"`
	DOI             string      `json:"doi"`
	PDFPath         string      `json:"pdf_path,omitempty"`
	TitlePage       int         `json:"title_page,omitempty"`
	CitationPages   []int       `json:"citation_pages,omitempty"`
	CitationBBoxes  [][]float64 `json:"citation_bboxes,omitempty"`
	ReferencePage   *int        `json:"reference_page,omitempty"`
	ReferenceNumber *int        `json:"reference_number,omitempty"`
	ReferenceBBox   []float64   `json:"reference_bbox,omitempty"`
	CoverPages      []CoverPage `json:"cover_pages,omitempty"`
}

// SessionRecord is the accumulated, mutable description of a dossier in
// progress. One record per user, persisted as session_data.json in the
// user's workspace.
type SessionRecord struct {
	Candidate      *Candidate      `json:"candidate,omitempty"`
	SourceArticle  *SourceArticle  `json:"source_article,omitempty"`
	CitingArticles []CitingArticle `json:"citing_articles,omitempty"`
	UploadedFiles  []string        `json:"uploaded_files,omitempty"`
	SavedAt        string          `json:"saved_at,omitempty"`
}

// SessionUpdate is a field-scoped partial update applied by the session
// store's merge. Nil fields leave the stored value untouched; non-nil
// Candidate/SourceArticle/CitingArticles/UploadedFiles replace wholesale.
type SessionUpdate struct {
	Candidate      *Candidate      `json:"candidate,omitempty"`
	SourceArticle  *SourceArticle  `json:"source_article,omitempty"`
	CitingArticles []CitingArticle `json:"citing_articles,omitempty"`
	UploadedFiles  []string        `json:"uploaded_files,omitempty"`
	UpdateArticle  *ArticleUpdate  `json:"update_article,omitempty"`
}

// ArticleUpdate targets a single citing-article entry by index. Data is a
// shallow property merge: keys present overwrite, absent keys survive.
type ArticleUpdate struct {
	Index int                    `json:"index"`
	Data  map[string]interface{} `json:"data"`
}
