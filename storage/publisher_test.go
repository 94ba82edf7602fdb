package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/bundler/metrics"
)

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        string
}

type fakeS3 struct {
	mu    sync.Mutex
	calls []putCall
	fail  string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.fail {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         key,
		contentType: aws.ToString(in.ContentType),
		body:        string(body),
	})
	return &s3.PutObjectOutput{}, nil
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPublishDir(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"products/granite/main.jpg": "jpg",
		"pdfs/specials/june.pdf":    "pdf",
		"product_manifest.json":     "{}",
	})

	fake := &fakeS3{}
	c := metrics.NewCollector("bundle", "run-1")
	p := NewPublisher(fake, "assets-bucket", "/site/", nil, c)

	res, err := p.PublishDir(t.Context(), dir, "v1")
	if err != nil {
		t.Fatalf("PublishDir: %v", err)
	}

	wantKeys := []string{
		"site/v1/pdfs/specials/june.pdf",
		"site/v1/product_manifest.json",
		"site/v1/products/granite/main.jpg",
	}
	if !slices.Equal(res.Keys, wantKeys) {
		t.Errorf("keys = %v, want %v", res.Keys, wantKeys)
	}
	if res.Bytes != 8 {
		t.Errorf("bytes = %d, want 8", res.Bytes)
	}

	types := map[string]string{}
	for _, call := range fake.calls {
		if call.bucket != "assets-bucket" {
			t.Errorf("bucket = %q", call.bucket)
		}
		types[call.key] = call.contentType
	}
	if got := types["site/v1/products/granite/main.jpg"]; got != "image/jpeg" {
		t.Errorf("jpg content type = %q", got)
	}
	if got := types["site/v1/pdfs/specials/june.pdf"]; got != "application/pdf" {
		t.Errorf("pdf content type = %q", got)
	}
	if got := c.Snapshot().ObjectsPublished; got != 3 {
		t.Errorf("ObjectsPublished = %d, want 3", got)
	}
}

func TestPublishDir_StopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.png": "a", "b.png": "b"})

	fake := &fakeS3{fail: "a.png"}
	c := metrics.NewCollector("bundle", "run-1")
	p := NewPublisher(fake, "bucket", "", nil, c)

	if _, err := p.PublishDir(t.Context(), dir, ""); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 0 {
		t.Errorf("uploads after failure = %d, want 0", len(fake.calls))
	}
	if got := c.Snapshot().PublishFailures; got != 1 {
		t.Errorf("PublishFailures = %d, want 1", got)
	}
}

func TestPublishDir_MissingDir(t *testing.T) {
	p := NewPublisher(&fakeS3{}, "bucket", "", nil, nil)
	if _, err := p.PublishDir(t.Context(), filepath.Join(t.TempDir(), "nope"), ""); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.JPG":    "image/jpeg",
		"a.jpeg":   "image/jpeg",
		"a.png":    "image/png",
		"a.webp":   "image/webp",
		"a.gif":    "image/gif",
		"a.pdf":    "application/pdf",
		"a.json":   "application/json",
		"noext":    "application/octet-stream",
		"a.zzzzzz": "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	if _, err := NewS3Client(t.Context(), S3Config{}); !errors.Is(err, ErrNoBucket) {
		t.Errorf("err = %v, want ErrNoBucket", err)
	}
}

func TestPublishFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"pdf_manifest.json": "{}"})

	fake := &fakeS3{}
	c := metrics.NewCollector("bundle", "run-1")
	p := NewPublisher(fake, "bucket", "site", nil, c)

	n, err := p.PublishFile(t.Context(), filepath.Join(dir, "pdf_manifest.json"), "/assets/pdf_manifest.json")
	if err != nil {
		t.Fatalf("PublishFile: %v", err)
	}
	if n != 2 {
		t.Errorf("bytes = %d, want 2", n)
	}
	if len(fake.calls) != 1 || fake.calls[0].key != "site/assets/pdf_manifest.json" {
		t.Fatalf("calls = %+v", fake.calls)
	}
	if fake.calls[0].contentType != "application/json" {
		t.Errorf("content type = %q", fake.calls[0].contentType)
	}

	if _, err := p.PublishFile(t.Context(), filepath.Join(dir, "missing.json"), "missing.json"); err == nil {
		t.Error("expected error for missing file")
	}
	if got := c.Snapshot().PublishFailures; got != 1 {
		t.Errorf("PublishFailures = %d, want 1", got)
	}
}
