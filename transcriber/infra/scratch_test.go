package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScratch_RemoveOnlyTargetsTheJob(t *testing.T) {
	s, err := NewScratch(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new scratch: %v", err)
	}

	a := s.Path("job-a", "x.mp3")
	b := s.Path("job-b", "y.mp3")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if err := s.Remove("job-a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Fatalf("expected job-a artifact removed")
	}
	if _, err := os.Stat(b); err != nil {
		t.Fatalf("expected job-b artifact untouched: %v", err)
	}
}

func TestScratch_SweepRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewScratch(dir, zerolog.Nop(), WithScratchMaxAge(time.Minute))
	if err != nil {
		t.Fatalf("new scratch: %v", err)
	}

	old := filepath.Join(dir, "job-old_a.mp3")
	fresh := filepath.Join(dir, "job-new_b.mp3")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := s.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh file kept: %v", err)
	}
}
