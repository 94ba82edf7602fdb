package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pithecene-io/bundler/manifest"
	"github.com/pithecene-io/bundler/products"
	"github.com/pithecene-io/bundler/types"
)

// ErrInconsistentManifest is returned when a manifest's totals do not match
// its items.
var ErrInconsistentManifest = errors.New("manifest totals do not match items")

// Manifest loads a manifest and checks its totals.
func Manifest(path string) (*types.Manifest, error) {
	m, err := manifest.Read(path)
	if err != nil {
		return nil, err
	}
	var size int64
	for _, it := range m.Items {
		size += it.SizeBytes
	}
	if m.Total != len(m.Items) || m.TotalSize != size {
		return &m, fmt.Errorf("%w: %s (total %d, items %d)", ErrInconsistentManifest, path, m.Total, len(m.Items))
	}
	return &m, nil
}

// Report loads a bundle report saved with --report.
func Report(path string) (*BundleResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var resp BundleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	if resp.Report == nil {
		return nil, fmt.Errorf("parse report %s: no report section", path)
	}
	return &resp, nil
}

// Archive summarizes the latest snapshot of the fs product archive at root.
func Archive(ctx context.Context, root, dataset string) (*ArchiveSummary, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a, err := products.NewArchiveFS(products.ArchiveConfig{Dataset: dataset}, root)
	if err != nil {
		return nil, err
	}
	catalog, err := a.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if dataset == "" {
		dataset = products.DefaultDataset
	}
	return &ArchiveSummary{
		Dataset:  dataset,
		Root:     root,
		Products: len(catalog),
		Columns:  products.Columns(catalog),
	}, nil
}
