package pubspec

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const samplePubspec = `name: angel_stones
description: Product catalog app.

# assets: this comment must not be mistaken for the section

dependencies:
  flutter:
    sdk: flutter

flutter:
  uses-material-design: true
  assets:
    - assets/images/
    # generated below
    - assets/products/
  fonts:
    - family: Roboto
`

func TestPatch_InsertsMissingSorted(t *testing.T) {
	dirs := []string{"assets/products/", "assets/colors/", "assets/pdfs/specials/", "assets/colors/"}

	res, out, err := Patch([]byte(samplePubspec), dirs)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}

	wantAdded := []string{"assets/colors/", "assets/pdfs/specials/"}
	if !slices.Equal(res.Added, wantAdded) {
		t.Errorf("Added = %v, want %v", res.Added, wantAdded)
	}
	if !slices.Equal(res.AlreadyDeclared, []string{"assets/products/"}) {
		t.Errorf("AlreadyDeclared = %v", res.AlreadyDeclared)
	}

	want := `name: angel_stones
description: Product catalog app.

# assets: this comment must not be mistaken for the section

dependencies:
  flutter:
    sdk: flutter

flutter:
  uses-material-design: true
  assets:
    - assets/colors/
    - assets/pdfs/specials/
    - assets/images/
    # generated below
    - assets/products/
  fonts:
    - family: Roboto
`
	if string(out) != want {
		t.Errorf("patched content mismatch:\n--- got ---\n%s\n--- want ---\n%s", out, want)
	}
}

func TestPatch_Idempotent(t *testing.T) {
	dirs := []string{"assets/colors/", "assets/products/granite/"}

	_, once, err := Patch([]byte(samplePubspec), dirs)
	if err != nil {
		t.Fatal(err)
	}
	res, twice, err := Patch(once, dirs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed() {
		t.Errorf("second patch added %v", res.Added)
	}
	if string(once) != string(twice) {
		t.Error("second patch changed the content")
	}
}

func TestPatch_NothingMissingReturnsInputUnchanged(t *testing.T) {
	in := []byte(samplePubspec)
	res, out, err := Patch(in, []string{"assets/images/"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed() || string(out) != samplePubspec {
		t.Errorf("expected no-op, got %+v", res)
	}
}

func TestPatch_NoAssetsSection(t *testing.T) {
	_, out, err := Patch([]byte("name: app\n# assets:\n"), []string{"assets/x/"})
	if !errors.Is(err, ErrNoAssetsSection) {
		t.Fatalf("err = %v, want ErrNoAssetsSection", err)
	}
	if string(out) != "name: app\n# assets:\n" {
		t.Error("content must be returned unchanged")
	}
}

func TestPatch_EmptySectionUsesNestedIndent(t *testing.T) {
	in := "flutter:\n  assets:\n\nother: 1\n"
	_, out, err := Patch([]byte(in), []string{"assets/products/"})
	if err != nil {
		t.Fatal(err)
	}
	want := "flutter:\n  assets:\n    - assets/products/\n\nother: 1\n"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestPatch_AssetsLastLineWithoutNewline(t *testing.T) {
	_, out, err := Patch([]byte("flutter:\n  assets:"), []string{"assets/a/"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "flutter:\n  assets:\n    - assets/a/\n"; string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestPatch_PreservesCRLF(t *testing.T) {
	in := "flutter:\r\n  assets:\r\n   - assets/old/\r\n"
	_, out, err := Patch([]byte(in), []string{"assets/new/"})
	if err != nil {
		t.Fatal(err)
	}
	want := "flutter:\r\n  assets:\r\n   - assets/new/\r\n   - assets/old/\r\n"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestPatch_QuotedEntriesRecognised(t *testing.T) {
	in := "flutter:\n  assets:\n    - \"assets/colors/\"\n"
	res, _, err := Patch([]byte(in), []string{"assets/colors/"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed() {
		t.Errorf("quoted entry not recognised, added %v", res.Added)
	}
}

func TestPatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubspec.yaml")
	if err := os.WriteFile(path, []byte(samplePubspec), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := PatchFile(path, []string{"assets/colors/"})
	if err != nil {
		t.Fatalf("PatchFile: %v", err)
	}
	if !slices.Equal(res.Added, []string{"assets/colors/"}) {
		t.Errorf("Added = %v", res.Added)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600 preserved", info.Mode().Perm())
	}

	data, _ := os.ReadFile(path)
	if len(data) != len(samplePubspec)+len("    - assets/colors/\n") {
		t.Errorf("unexpected size %d", len(data))
	}
}

func TestPatchFile_Missing(t *testing.T) {
	if _, err := PatchFile(filepath.Join(t.TempDir(), "pubspec.yaml"), []string{"assets/a/"}); err == nil {
		t.Error("expected error for missing file")
	}
}
