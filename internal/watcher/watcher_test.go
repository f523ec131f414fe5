package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestArtifactWatcherStartStop(t *testing.T) {
	base := t.TempDir()
	w := NewArtifactWatcher(base, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	// Second start is a no-op.
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestArtifactWatcherPicksUpNewWorkspaces(t *testing.T) {
	base := t.TempDir()
	w := NewArtifactWatcher(base, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// A workspace created after Start gets watched; writing an artifact
	// there must not error or wedge the loop.
	generated := filepath.Join(base, "user_alice", "generated")
	if err := os.MkdirAll(generated, 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	artifact := filepath.Join(generated, "docentlik_atif_dosyasi_20250114_120000.pdf")
	if err := os.WriteFile(artifact, []byte("pdf"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
}
