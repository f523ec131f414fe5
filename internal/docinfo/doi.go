// Package docinfo extracts bibliographic identifiers from uploaded PDFs.
package docinfo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DOIResult is the outcome of a DOI scan.
type DOIResult struct {
	DOI    string `json:"doi,omitempty"`
	Source string `json:"source"`
	Found  bool   `json:"found"`
}

// DOIs are almost always on the first page; scanning three covers
// journals that front-load cover sheets.
const maxDOIScanPages = 3

var doiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)doi\s*[:.]?\s*(10\.\d{4,}/[^\s\]>)]+)`),
	regexp.MustCompile(`(?i)https?://doi\.org/(10\.\d{4,}/[^\s\]>)]+)`),
	regexp.MustCompile(`(?i)https?://dx\.doi\.org/(10\.\d{4,}/[^\s\]>)]+)`),
	regexp.MustCompile(`\b(10\.\d{4,}/[^\s\]>),]+)`),
}

var trailingPunct = regexp.MustCompile(`[.,;:\s]+$`)

// ExtractDOI scans the leading pages of the PDF at path for a DOI. When
// several candidates match, the longest one wins (it is most likely the
// complete identifier). The returned DOI is lowercased with trailing
// punctuation trimmed.
func ExtractDOI(path string) (DOIResult, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return DOIResult{Source: "error"}, fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	pages := r.NumPage()
	if pages > maxDOIScanPages {
		pages = maxDOIScanPages
	}
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if doi, ok := findDOI(text); ok {
			return DOIResult{
				DOI:    doi,
				Source: fmt.Sprintf("page_%d", i),
				Found:  true,
			}, nil
		}
	}
	return DOIResult{Source: "not_found"}, nil
}

func findDOI(text string) (string, bool) {
	var best string
	for _, re := range doiPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m[1]) > len(best) {
				best = m[1]
			}
		}
	}
	if best == "" {
		return "", false
	}
	best = trailingPunct.ReplaceAllString(best, "")
	return strings.ToLower(best), true
}
