package models

import "time"

// GeneratedFiles are the three correlated outputs of one generation run,
// named by a shared timestamp token.
type GeneratedFiles struct {
	ListPDF  string `json:"list_pdf,omitempty"`
	Excel    string `json:"excel,omitempty"`
	FinalPDF string `json:"final_pdf"`
}

// DocumentSummary describes one completed generation run, reconstructed
// from the filenames in the user's generated directory.
type DocumentSummary struct {
	ID            string         `json:"id"`
	ArticleTitle  string         `json:"articleTitle"`
	CreatedAt     time.Time      `json:"createdAt"`
	CitationCount string         `json:"citationCount"`
	Files         GeneratedFiles `json:"files"`
}
