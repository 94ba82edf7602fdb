package discover

import (
	"net/http"
	"strings"
	"testing"

	"github.com/pithecene-io/bundler/types"
)

func TestSpecials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/specials.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "list" {
			http.Error(w, "bad action", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{
			"success": true,
			"specials": [
				{"filename": "may_flyer.pdf", "url": "/images/specials/pdfs/may_flyer.pdf", "title": "May Specials", "size": "2.1 MB"},
				{"filename": "untitled.pdf", "url": "/images/specials/pdfs/untitled.pdf"},
				{"filename": "", "url": "/images/specials/pdfs/skip.pdf"}
			]
		}`))
	})
	d := newDiscoverer(t, mux, nil)

	got := d.Specials(t.Context())
	if len(got) != 2 {
		t.Fatalf("got %d specials, want 2: %+v", len(got), got)
	}

	first := got[0]
	if first.RemotePath != "images/specials/pdfs/may_flyer.pdf" {
		t.Errorf("RemotePath = %q", first.RemotePath)
	}
	if first.DisplayName != "May Specials" || first.SizeHint != "2.1 MB" || first.Category != "specials" {
		t.Errorf("metadata = %+v", first)
	}
	wantRoot := types.RootConfig{Path: "images/specials/pdfs", Class: types.AssetClassPDFs, Output: "assets/pdfs/specials"}
	if first.Root != wantRoot {
		t.Errorf("Root = %+v, want %+v", first.Root, wantRoot)
	}
	if got[1].DisplayName != "untitled.pdf" {
		t.Errorf("title fallback = %q, want filename", got[1].DisplayName)
	}
}

func TestSpecials_Unsuccessful(t *testing.T) {
	d := newDiscoverer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "specials": [{"filename": "a.pdf", "url": "a.pdf"}]}`))
	}), nil)

	if got := d.Specials(t.Context()); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestColors(t *testing.T) {
	d := newDiscoverer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/color.json" {
			http.NotFound(w, r)
			return
		}
		doc := `{
			"@type": "ItemList",
			"itemListElement": [
				{"item": {"name": "Absolute Black", "image": [{"url": "BASE/images/colors/absolute_black.jpg"}]}},
				{"item": {"name": "No Image", "image": []}},
				{"item": {"name": "Elsewhere", "image": [{"url": "https://cdn.example.com/c/blue.jpg"}]}}
			]
		}`
		_, _ = w.Write([]byte(strings.ReplaceAll(doc, "BASE", "http://"+r.Host)))
	}), nil)

	got := d.Colors(t.Context())
	if len(got) != 2 {
		t.Fatalf("got %d colors, want 2: %+v", len(got), got)
	}
	if got[0].RemotePath != "images/colors/absolute_black.jpg" || got[0].Name != "absolute_black.jpg" {
		t.Errorf("first = %+v", got[0])
	}
	if got[0].DisplayName != "Absolute Black" || got[0].Root != DefaultColorsRoot {
		t.Errorf("first metadata = %+v", got[0])
	}
	if got[1].RemotePath != "https://cdn.example.com/c/blue.jpg" {
		t.Errorf("foreign URL should stay absolute, got %q", got[1].RemotePath)
	}
}

func TestSources_Disabled(t *testing.T) {
	srv := &listingServer{}
	d := newDiscoverer(t, srv, nil)
	d.config.SpecialsEndpoint = ""
	d.config.ColorsEndpoint = ""

	if d.Specials(t.Context()) != nil || d.Colors(t.Context()) != nil {
		t.Error("disabled sources should return nil")
	}
	if len(srv.calls()) != 0 {
		t.Error("disabled sources should make no requests")
	}
}

func TestSources_SoftFailure(t *testing.T) {
	d := newDiscoverer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), nil)

	if d.Specials(t.Context()) != nil {
		t.Error("Specials should fail softly")
	}
	if d.Colors(t.Context()) != nil {
		t.Error("Colors should fail softly")
	}
}
