package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/bundler/discover"
	"github.com/pithecene-io/bundler/download"
	"github.com/pithecene-io/bundler/fetch"
	"github.com/pithecene-io/bundler/manifest"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/optimize"
	"github.com/pithecene-io/bundler/types"
)

const testPubspec = `name: app
flutter:
  assets:
    - assets/products/
`

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// siteHandler emulates the listing API, the catalog sources and the
// static files they point at.
func siteHandler(t *testing.T) http.Handler {
	img := tinyPNG(t)
	listings := map[string]string{
		"products": `{"files": [
			{"name": "granite", "path": "images/products/granite"},
			{"name": "main", "path": "products/main.jpg", "fullname": "main.jpg"},
			{"name": "broken", "path": "products/broken.jpg", "fullname": "broken.jpg"}
		]}`,
		"products/granite": `{"files": [
			{"name": "black_galaxy", "path": "products/granite/black_galaxy.png", "fullname": "black_galaxy.png"}
		]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/get_directory_files.php", func(w http.ResponseWriter, r *http.Request) {
		body, ok := listings[r.URL.Query().Get("directory")]
		if !ok {
			body = `{"files": []}`
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/api/specials.php", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "specials": [
			{"filename": "may_flyer.pdf", "url": "/images/specials/may_flyer.pdf", "title": "May"}
		]}`))
	})
	mux.HandleFunc("/api/color.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"itemListElement": [
			{"item": {"name": "Blue Pearl", "image": [{"url": "http://` + r.Host + `/images/colors/blue_pearl.jpg"}]}}
		]}`))
	})
	for _, p := range []string{"/products/main.jpg", "/products/granite/black_galaxy.png", "/images/colors/blue_pearl.jpg"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(img) })
	}
	mux.HandleFunc("/images/specials/may_flyer.pdf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 flyer"))
	})
	return mux
}

func newPipeline(t *testing.T, h http.Handler, cfg Config, c *metrics.Collector) *Pipeline {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	client := fetch.NewClient(fetch.Config{Timeout: 5 * time.Second, Attempts: 1}, ts.Client(), nil)
	d := discover.New(discover.DefaultConfig(ts.URL), client, nil, c)
	dl := download.New(download.Config{BaseURL: ts.URL}, client, optimize.New(optimize.Config{}), nil, c)
	return New(cfg, d, dl, nil, c)
}

func defaultTestConfig() Config {
	return Config{
		Roots:           []types.RootConfig{{Path: "products", Class: types.AssetClassImages, Output: "assets/products"}},
		Specials:        true,
		Colors:          true,
		Optimize:        true,
		Clean:           true,
		SweepDuplicates: true,
		PubspecPath:     "pubspec.yaml",
	}
}

func TestRun_EndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFiles(t, ".", "assets/products/stale.jpg", "assets/products/stale 2.jpg")
	if err := os.WriteFile("pubspec.yaml", []byte(testPubspec), 0o644); err != nil {
		t.Fatal(err)
	}

	c := metrics.NewCollector("bundle", "run-1")
	p := newPipeline(t, siteHandler(t), defaultTestConfig(), c)

	report, err := p.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Discovered[types.AssetClassImages] != 4 || report.Discovered[types.AssetClassPDFs] != 1 {
		t.Errorf("Discovered = %v, want images=4 pdfs=1", report.Discovered)
	}
	if report.Downloaded[types.AssetClassImages] != 3 || report.Downloaded[types.AssetClassPDFs] != 1 {
		t.Errorf("Downloaded = %v, want images=3 pdfs=1", report.Downloaded)
	}
	if len(report.Failures) != 1 || report.Failures[0].Name != "broken.jpg" || report.Failures[0].Stage != "fetch" {
		t.Errorf("Failures = %+v, want broken.jpg at fetch", report.Failures)
	}
	if report.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", report.DuplicatesRemoved)
	}

	// Pre-run clean removed stale files.
	if _, err := os.Stat("assets/products/stale.jpg"); !os.IsNotExist(err) {
		t.Error("stale file should have been cleaned")
	}
	for _, f := range []string{
		"assets/products/main.jpg",
		"assets/products/granite/black-galaxy.png",
		"assets/colors/blue-pearl.jpg",
		"assets/pdfs/specials/may-flyer.pdf",
	} {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("expected %s: %v", f, err)
		}
	}

	images, err := manifest.Read("assets/product_manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if images.Total != 3 || len(images.Items) != 3 {
		t.Errorf("image manifest total = %d items = %d, want 3", images.Total, len(images.Items))
	}
	var sum int64
	for _, it := range images.Items {
		sum += it.SizeBytes
	}
	if images.TotalSize != sum {
		t.Errorf("TotalSize = %d, sum of items = %d", images.TotalSize, sum)
	}
	gotOrder := []string{images.Items[0].Name, images.Items[1].Name, images.Items[2].Name}
	if !slices.Equal(gotOrder, []string{"black_galaxy.png", "main.jpg", "blue_pearl.jpg"}) {
		t.Errorf("item order = %v", gotOrder)
	}
	if images.Items[0].Optimization == nil {
		t.Error("images should carry optimization stats")
	}

	pdfs, err := manifest.Read("assets/pdf_manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if pdfs.Total != 1 || pdfs.Items[0].DisplayName != "May" || pdfs.Items[0].Optimization != nil {
		t.Errorf("pdf manifest = %+v", pdfs)
	}

	wantAdded := []string{"assets/colors/", "assets/pdfs/specials/", "assets/products/granite/"}
	if report.Pubspec == nil || !slices.Equal(report.Pubspec.Added, wantAdded) {
		t.Errorf("pubspec result = %+v, want added %v", report.Pubspec, wantAdded)
	}
	data, _ := os.ReadFile("pubspec.yaml")
	if !strings.Contains(string(data), "    - assets/colors/\n") {
		t.Errorf("pubspec not patched:\n%s", data)
	}

	s := report.Metrics
	if s.ListingCalls != 2 || s.DownloadsSucceeded != 4 || s.DownloadsFailed != 1 {
		t.Errorf("metrics = %+v", s)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
}

func TestRun_SecondRunIsStable(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("pubspec.yaml", []byte(testPubspec), 0o644); err != nil {
		t.Fatal(err)
	}
	h := siteHandler(t)

	cfg := defaultTestConfig()
	cfg.Clean = false
	if _, err := newPipeline(t, h, cfg, nil).Run(t.Context()); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile("pubspec.yaml")

	report, err := newPipeline(t, h, cfg, nil).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if report.Pubspec == nil || report.Pubspec.Changed() {
		t.Errorf("second run changed pubspec: %+v", report.Pubspec)
	}
	second, _ := os.ReadFile("pubspec.yaml")
	if string(first) != string(second) {
		t.Error("pubspec content changed on second run")
	}

	// Files are overwritten in place; no platform copies appear.
	entries, _ := os.ReadDir("assets/products")
	for _, e := range entries {
		if strings.Contains(e.Name(), " 2.") || strings.Contains(e.Name(), "(1)") {
			t.Errorf("duplicate copy created: %s", e.Name())
		}
	}
}

func TestRun_NothingDiscovered(t *testing.T) {
	t.Chdir(t.TempDir())
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": []}`))
	})
	cfg := defaultTestConfig()
	cfg.Specials, cfg.Colors = false, false

	report, err := newPipeline(t, h, cfg, nil).Run(t.Context())
	if !errors.Is(err, ErrNothingDiscovered) {
		t.Fatalf("err = %v, want ErrNothingDiscovered", err)
	}
	if report == nil || report.TotalDiscovered() != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRun_NothingDownloadedStillWritesManifest(t *testing.T) {
	t.Chdir(t.TempDir())
	mux := http.NewServeMux()
	mux.HandleFunc("/get_directory_files.php", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": [{"path": "products/gone.jpg"}]}`))
	})
	cfg := defaultTestConfig()
	cfg.Specials, cfg.Colors = false, false

	report, err := newPipeline(t, mux, cfg, nil).Run(t.Context())
	if !errors.Is(err, ErrNothingDownloaded) {
		t.Fatalf("err = %v, want ErrNothingDownloaded", err)
	}
	if len(report.Failures) != 1 {
		t.Errorf("Failures = %+v", report.Failures)
	}

	data, err := os.ReadFile("assets/product_manifest.json")
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if items, ok := raw["items"].([]any); !ok || len(items) != 0 {
		t.Errorf("items = %v, want []", raw["items"])
	}
}

func TestRun_MissingAssetsSectionIsReported(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("pubspec.yaml", []byte("name: app\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := newPipeline(t, siteHandler(t), defaultTestConfig(), nil).Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.PubspecError == "" || report.Pubspec != nil {
		t.Errorf("expected pubspec error in report, got %+v / %q", report.Pubspec, report.PubspecError)
	}
}

func TestRun_CustomManifestPaths(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := defaultTestConfig()
	cfg.PubspecPath = ""
	cfg.Manifests = map[types.AssetClass]string{
		types.AssetClassImages: "out/images.json",
		types.AssetClassPDFs:   "",
	}

	report, err := newPipeline(t, siteHandler(t), cfg, nil).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if report.Manifests[types.AssetClassImages] != "out/images.json" {
		t.Errorf("Manifests = %v", report.Manifests)
	}
	if _, ok := report.Manifests[types.AssetClassPDFs]; ok {
		t.Error("empty path should disable the pdf manifest")
	}
	if _, err := os.Stat("assets/pdf_manifest.json"); !os.IsNotExist(err) {
		t.Error("pdf manifest should not be written")
	}
}

func TestRun_ManifestMatchesDiskAfterSweep(t *testing.T) {
	t.Chdir(t.TempDir())
	img := tinyPNG(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/get_directory_files.php", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": [
			{"path": "products/slab.jpg"},
			{"path": "products/slab.jpeg"},
			{"path": "products/Rose 2.jpg"},
			{"path": "products/../../../escape.jpg"}
		]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(img) })

	cfg := defaultTestConfig()
	cfg.Specials, cfg.Colors, cfg.Clean = false, false, false
	cfg.PubspecPath = ""

	report, err := newPipeline(t, mux, cfg, nil).Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	m, err := manifest.Read("assets/product_manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if m.Total != 3 || len(m.Items) != 3 {
		t.Fatalf("manifest total = %d, items = %d, want 3", m.Total, len(m.Items))
	}
	for _, it := range m.Items {
		if _, err := os.Stat(it.Path); err != nil {
			t.Errorf("manifest lists %s but it is not on disk: %v", it.Path, err)
		}
	}
	if report.DuplicatesRemoved != 0 {
		t.Errorf("DuplicatesRemoved = %d, want 0", report.DuplicatesRemoved)
	}

	if len(report.Failures) != 1 || report.Failures[0].Stage != string(download.StageWrite) {
		t.Fatalf("Failures = %+v, want one write failure for the escaping path", report.Failures)
	}
	if _, err := os.Stat("escape.jpg"); !os.IsNotExist(err) {
		t.Error("escaping remote path must not be written")
	}
}
