package products

import (
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
)

func TestArchive_WriteAndLatest(t *testing.T) {
	a, err := NewArchive(ArchiveConfig{Source: "shop.example", RunID: "run-42"}, lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}

	fetched := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	if err := a.Write(t.Context(), sampleProducts(), fetched); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := a.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d products, want 3", len(got))
	}
	if got[1]["name"] != "Blue Pearl & Co" {
		t.Errorf("product[1] name = %v", got[1]["name"])
	}

	snap, err := a.Dataset().Latest(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Manifest.Files) == 0 {
		t.Fatal("snapshot has no files")
	}
	for _, want := range []string{"source=shop.example", "day=2024-03-09", "run_id=run-42"} {
		if !strings.Contains(snap.Manifest.Files[0].Path, want) {
			t.Errorf("path %q missing partition %q", snap.Manifest.Files[0].Path, want)
		}
	}
}

func TestArchive_FS(t *testing.T) {
	a, err := NewArchiveFS(ArchiveConfig{Source: "shop", RunID: "r1"}, t.TempDir())
	if err != nil {
		t.Fatalf("NewArchiveFS: %v", err)
	}
	if err := a.Write(t.Context(), sampleProducts()[:1], time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := a.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d products, want 1", len(got))
	}
}

func TestArchive_EmptyWriteIsNoop(t *testing.T) {
	a, err := NewArchive(ArchiveConfig{Source: "s", RunID: "r"}, lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Write(t.Context(), nil, time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := a.Latest(t.Context()); err == nil {
		t.Error("expected no snapshot after empty write")
	}
}

func TestArchive_WriteRequiresIdentity(t *testing.T) {
	a, err := NewArchive(ArchiveConfig{Source: "s"}, lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	if err := a.Write(t.Context(), sampleProducts(), time.Now()); err == nil {
		t.Error("expected error without run id")
	}
}

func TestArchive_ReadOnlyOpen(t *testing.T) {
	root := t.TempDir()
	w, err := NewArchiveFS(ArchiveConfig{Source: "shop", RunID: "r1"}, root)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(t.Context(), sampleProducts(), time.Now()); err != nil {
		t.Fatal(err)
	}

	r, err := NewArchiveFS(ArchiveConfig{}, root)
	if err != nil {
		t.Fatalf("NewArchiveFS without identity: %v", err)
	}
	got, err := r.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d products, want 3", len(got))
	}
}
