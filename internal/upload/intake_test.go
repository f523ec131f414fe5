package upload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atifdosyasi/dossier/internal/models"
	"github.com/atifdosyasi/dossier/internal/session"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"go.uber.org/zap"
)

func newTestIntake(t *testing.T) (*Intake, *session.Store, *workspace.Resolver) {
	t.Helper()
	ws := workspace.NewResolver(t.TempDir())
	sessions := session.NewStore(ws, zap.NewNop())
	return NewIntake(ws, sessions, zap.NewNop()), sessions, ws
}

func TestSanitizeDOI(t *testing.T) {
	unsafe := `10.1234/ab\c:d*e?f"g<h>i|j`
	got := SanitizeDOI(unsafe)
	for _, ch := range `/\:*?"<>|` {
		if strings.ContainsRune(got, ch) {
			t.Errorf("sanitized DOI still contains %q: %s", ch, got)
		}
	}
	if SanitizeDOI("") != "unknown" {
		t.Errorf("empty DOI: got %q", SanitizeDOI(""))
	}
}

func TestSanitizeDOIInjective(t *testing.T) {
	// DOIs differing only in which unsafe character they carry, or where
	// one already contains the escape shape literally, must not sanitize
	// to the same string.
	pairs := [][2]string{
		{"10.1/a", "10.1:a"},
		{"10.1/a", "10.1_a"},
		{"10.1_2fa", "10.1/a"},
		{`10.1\a`, "10.1|a"},
	}
	for _, p := range pairs {
		a, b := SanitizeDOI(p[0]), SanitizeDOI(p[1])
		if a == b {
			t.Errorf("SanitizeDOI(%q) == SanitizeDOI(%q) == %q", p[0], p[1], a)
		}
	}
}

func TestStoreDownload(t *testing.T) {
	in, _, ws := newTestIntake(t)
	path, err := in.StoreDownload("alice", "1_article.pdf", []byte("pdf-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	paths, _ := ws.Resolve("alice")
	if filepath.Dir(path) != paths.Downloads {
		t.Errorf("stored outside downloads: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "pdf-bytes" {
		t.Errorf("read back: %q, %v", data, err)
	}
}

func TestStoreDownloadStripsDirectories(t *testing.T) {
	in, _, ws := newTestIntake(t)
	path, err := in.StoreDownload("alice", "../../escape.pdf", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	paths, _ := ws.Resolve("alice")
	if !paths.Contains(path) {
		t.Errorf("upload escaped workspace: %s", path)
	}
	if filepath.Base(path) != "escape.pdf" {
		t.Errorf("unexpected name: %s", path)
	}
}

func TestStoreDownloadUnauthenticated(t *testing.T) {
	in, _, _ := newTestIntake(t)
	if _, err := in.StoreDownload("", "a.pdf", []byte("x")); err == nil {
		t.Error("expected authorization error for empty user")
	}
}

func TestStoreCoverNaming(t *testing.T) {
	in, sessions, _ := newTestIntake(t)
	if err := sessions.Merge("alice", models.SessionUpdate{
		CitingArticles: []models.CitingArticle{{Title: "A"}, {Title: "B"}},
	}); err != nil {
		t.Fatal(err)
	}

	p1, err := in.StoreCover("alice", "10.1000/a.b", 0, 0, "scan one.png", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := in.StoreCover("alice", "10.1000/a:b", 0, 0, "scan one.png", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p1) != "cover_10.1000_2fa.b_0_0.png" {
		t.Errorf("cover name: %s", filepath.Base(p1))
	}
	// Different DOIs with the same indices must not collide.
	if p1 == p2 {
		t.Errorf("distinct DOIs collided on %s", p1)
	}

	rec, _ := sessions.Load("alice")
	covers := rec.CitingArticles[0].CoverPages
	if len(covers) != 2 {
		t.Fatalf("got %d covers in session, want 2", len(covers))
	}
	if covers[0].Name != "scan one.png" || covers[0].Path != p1 {
		t.Errorf("cover entry: %+v", covers[0])
	}
}

func TestStoreCoverStaleArticleKeepsFile(t *testing.T) {
	in, sessions, _ := newTestIntake(t)
	// No citing articles in session: the index is stale by definition.
	path, err := in.StoreCover("alice", "10.1/x", 3, 0, "c.pdf", []byte("img"))
	if err != nil {
		t.Fatalf("stale index must not be an error: %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("cover file missing: %v", statErr)
	}
	rec, _ := sessions.Load("alice")
	if len(rec.CitingArticles) != 0 {
		t.Errorf("session grew unexpectedly: %+v", rec.CitingArticles)
	}
}

func TestStoreCoverDefaultExtension(t *testing.T) {
	in, _, _ := newTestIntake(t)
	path, err := in.StoreCover("alice", "10.1/x", 0, 1, "noext", []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, ".pdf") {
		t.Errorf("expected pdf default extension: %s", path)
	}
}

func TestClearDownloadsPreservesGenerated(t *testing.T) {
	in, _, ws := newTestIntake(t)
	paths, _ := ws.Resolve("alice")
	if _, err := in.StoreDownload("alice", "a.pdf", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := in.StoreCover("alice", "10.1/x", 0, 0, "c.pdf", []byte("y")); err != nil {
		t.Fatal(err)
	}
	artifact := filepath.Join(paths.Generated, "docentlik_atif_dosyasi_20250114_120000.pdf")
	if err := os.WriteFile(artifact, []byte("pdf"), 0644); err != nil {
		t.Fatal(err)
	}

	removed, err := in.ClearDownloads("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Errorf("removed %v, want downloads file and covers dir", removed)
	}
	entries, _ := os.ReadDir(paths.Downloads)
	if len(entries) != 0 {
		t.Errorf("downloads not empty: %v", entries)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("generated artifact was deleted: %v", err)
	}
}
