package session

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/atifdosyasi/dossier/internal/models"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *workspace.Resolver) {
	t.Helper()
	ws := workspace.NewResolver(t.TempDir())
	return NewStore(ws, zap.NewNop()), ws
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	rec, err := s.Load("alice")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Candidate != nil || len(rec.CitingArticles) != 0 {
		t.Errorf("expected empty record, got %+v", rec)
	}
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	s, ws := newTestStore(t)
	paths, _ := ws.Resolve("alice")
	if err := os.WriteFile(paths.SessionFile, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	rec, err := s.Load("alice")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Candidate != nil || rec.CitingArticles != nil {
		t.Errorf("corrupt file should read as empty, got %+v", rec)
	}
}

func TestMergeFieldScoped(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Merge("alice", models.SessionUpdate{
		Candidate:     &models.Candidate{Name: "Dr. Yilmaz"},
		SourceArticle: &models.SourceArticle{Title: "Original Work", Year: 2020},
	})
	if err != nil {
		t.Fatal(err)
	}
	// A later update touching only the article list must not disturb the
	// candidate.
	err = s.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{{Title: "Citing A"}, {Title: "Citing B"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Load("alice")
	if rec.Candidate == nil || rec.Candidate.Name != "Dr. Yilmaz" {
		t.Errorf("candidate lost: %+v", rec.Candidate)
	}
	if len(rec.CitingArticles) != 2 {
		t.Fatalf("got %d citing articles, want 2", len(rec.CitingArticles))
	}
}

func TestWholesaleReplaceDiscardsIndexUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{{Title: "Old"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Merge("alice", models.SessionUpdate{
		UpdateArticle: &models.ArticleUpdate{Index: 0, Data: map[string]interface{}{"journal": "Nature"}},
	}); err != nil {
		t.Fatal(err)
	}
	// Full replace wins over the earlier partial update.
	if err := s.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{{Title: "New"}},
	}); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Load("alice")
	if len(rec.CitingArticles) != 1 || rec.CitingArticles[0].Title != "New" {
		t.Fatalf("unexpected articles: %+v", rec.CitingArticles)
	}
	if rec.CitingArticles[0].Journal != "" {
		t.Errorf("stale journal survived wholesale replace: %q", rec.CitingArticles[0].Journal)
	}
}

func TestIndexMergeShallow(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{
			{Title: "Citing", Journal: "Science", Year: 2021, DOI: "10.1/abc"},
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Merge("alice", models.SessionUpdate{
		UpdateArticle: &models.ArticleUpdate{
			Index: 0,
			Data: map[string]interface{}{
				"citation_pages": []int{3, 7},
				"journal":        "Nature",
			},
		},
	}); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Load("alice")
	a := rec.CitingArticles[0]
	if a.Journal != "Nature" {
		t.Errorf("journal: got %q, want Nature", a.Journal)
	}
	if a.Title != "Citing" || a.Year != 2021 || a.DOI != "10.1/abc" {
		t.Errorf("untouched properties did not survive: %+v", a)
	}
	if len(a.CitationPages) != 2 || a.CitationPages[0] != 3 {
		t.Errorf("citation pages: %v", a.CitationPages)
	}
}

func TestIndexMergeOutOfRangeIsNoOp(t *testing.T) {
	s, ws := newTestStore(t)
	if err := s.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{{Title: "Only"}},
	}); err != nil {
		t.Fatal(err)
	}
	paths, _ := ws.Resolve("alice")
	before, err := os.ReadFile(paths.SessionFile)
	if err != nil {
		t.Fatal(err)
	}

	for _, idx := range []int{-1, 1, 99} {
		if err := s.Merge("alice", models.SessionUpdate{
			UpdateArticle: &models.ArticleUpdate{Index: idx, Data: map[string]interface{}{"journal": "X"}},
		}); err != nil {
			t.Fatalf("index %d: %v", idx, err)
		}
	}
	rec, _ := s.Load("alice")
	if len(rec.CitingArticles) != 1 || rec.CitingArticles[0].Journal != "" {
		t.Errorf("out-of-range update mutated session: %+v", rec.CitingArticles)
	}
	after, err := os.ReadFile(paths.SessionFile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("session file rewritten by no-op merge:\nbefore: %s\nafter:  %s", before, after)
	}
}

func TestAppendCoverPage(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{{Title: "A"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendCoverPage("alice", 0, models.CoverPage{Name: "c1.pdf", Path: "/x/c1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendCoverPage("alice", 0, models.CoverPage{Name: "c2.pdf", Path: "/x/c2"}); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Load("alice")
	covers := rec.CitingArticles[0].CoverPages
	if len(covers) != 2 || covers[0].Name != "c1.pdf" || covers[1].Name != "c2.pdf" {
		t.Errorf("covers: %+v", covers)
	}

	err := s.AppendCoverPage("alice", 5, models.CoverPage{Name: "c3.pdf"})
	if !errors.Is(err, ErrStaleArticle) {
		t.Errorf("got %v, want ErrStaleArticle", err)
	}
}

func TestAppendCoverPageConcurrent(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{{Title: "A"}},
	}); err != nil {
		t.Fatal(err)
	}
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendCoverPage("alice", 0, models.CoverPage{Name: fmt.Sprintf("c%d.pdf", i)})
		}(i)
	}
	wg.Wait()
	rec, _ := s.Load("alice")
	if got := len(rec.CitingArticles[0].CoverPages); got != n {
		t.Errorf("lost cover appends: got %d, want %d", got, n)
	}
}

func TestConcurrentSaveLoad(t *testing.T) {
	s, _ := newTestStore(t)
	rec := models.SessionRecord{Candidate: &models.Candidate{Name: "Dr. Yilmaz"}}
	if err := s.Save("alice", rec); err != nil {
		t.Fatal(err)
	}

	// Readers racing writers must always see a complete record, never a
	// truncated or empty one.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if err := s.Save("alice", rec); err != nil {
					t.Error(err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				got, err := s.Load("alice")
				if err != nil {
					t.Error(err)
					return
				}
				if got.Candidate == nil || got.Candidate.Name != "Dr. Yilmaz" {
					t.Errorf("partial read: %+v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Save("alice", models.SessionRecord{Candidate: &models.Candidate{Name: "x"}}); err != nil {
		t.Fatal(err)
	}
	removed, err := s.Clear("alice")
	if err != nil || !removed {
		t.Fatalf("clear: removed=%v err=%v", removed, err)
	}
	removed, err = s.Clear("alice")
	if err != nil || removed {
		t.Fatalf("second clear: removed=%v err=%v", removed, err)
	}
}
