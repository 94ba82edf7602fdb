// Package reader provides the read-side data access layer for the bundler CLI.
//
// Run commands produce their responses here so the inspect commands can load
// the same shapes back from disk: manifests, saved bundle reports and product
// archives. Nothing in this package performs network I/O.
package reader

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/pithecene-io/bundler/bundle"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/storage"
	"github.com/pithecene-io/bundler/types"
)

// BundleResponse is the result of a bundle run, rendered by the bundle
// command and saved by --report.
type BundleResponse struct {
	RunID     string                 `json:"run_id" yaml:"run_id"`
	Outcome   string                 `json:"outcome" yaml:"outcome"`
	Error     string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Report    *bundle.Report         `json:"report" yaml:"report"`
	Published *storage.PublishResult `json:"published,omitempty" yaml:"published,omitempty"`
}

// Table implements render.Tabular with one row per asset class.
func (r *BundleResponse) Table() ([]string, [][]string) {
	header := []string{"class", "discovered", "downloaded", "manifest"}
	rep := r.Report
	if rep == nil {
		return header, nil
	}
	classes := slices.Sorted(maps.Keys(rep.Discovered))
	rows := make([][]string, 0, len(classes)+1)
	for _, class := range classes {
		rows = append(rows, []string{
			string(class),
			strconv.Itoa(rep.Discovered[class]),
			strconv.Itoa(rep.Downloaded[class]),
			rep.Manifests[class],
		})
	}
	if len(rows) > 0 {
		rows = append(rows, []string{
			"total",
			strconv.Itoa(rep.TotalDiscovered()),
			strconv.Itoa(rep.TotalDownloaded()),
			fmt.Sprintf("%d failed, %.2f MB, %s", len(rep.Failures), float64(rep.TotalBytes)/(1024*1024), rep.Duration().Round(time.Millisecond)),
		})
	}
	return header, rows
}

// ProductsResponse is the result of a products run.
type ProductsResponse struct {
	RunID    string           `json:"run_id" yaml:"run_id"`
	Outcome  string           `json:"outcome" yaml:"outcome"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
	Products int              `json:"products" yaml:"products"`
	Files    []string         `json:"files" yaml:"files"`
	Archive  string           `json:"archive,omitempty" yaml:"archive,omitempty"`
	Metrics  metrics.Snapshot `json:"metrics" yaml:"metrics"`
}

// Table implements render.Tabular.
func (r *ProductsResponse) Table() ([]string, [][]string) {
	rows := [][]string{
		{"outcome", r.Outcome},
		{"products", strconv.Itoa(r.Products)},
		{"pages", fmt.Sprintf("%d (%d retries)", r.Metrics.PagesFetched, r.Metrics.PageRetries)},
	}
	for _, f := range r.Files {
		rows = append(rows, []string{"file", f})
	}
	if r.Archive != "" {
		rows = append(rows, []string{"archive", r.Archive})
	}
	if r.Error != "" {
		rows = append(rows, []string{"error", r.Error})
	}
	return []string{"field", "value"}, rows
}

// ManifestTable renders a manifest as one row per item.
type ManifestTable struct {
	Manifest *types.Manifest
}

// Table implements render.Tabular.
func (t ManifestTable) Table() ([]string, [][]string) {
	header := []string{"path", "size_mb", "category", "optimized"}
	rows := make([][]string, 0, len(t.Manifest.Items))
	for _, it := range t.Manifest.Items {
		optimized := "-"
		if o := it.Optimization; o != nil {
			optimized = "no"
			if o.Optimized {
				optimized = fmt.Sprintf("-%.1f%%", o.ReductionPercent)
			}
		}
		rows = append(rows, []string{it.Path, fmt.Sprintf("%.2f", it.SizeMB), it.Category, optimized})
	}
	return header, rows
}

// ArchiveSummary describes the latest snapshot of a product archive.
type ArchiveSummary struct {
	Dataset  string   `json:"dataset" yaml:"dataset"`
	Root     string   `json:"root" yaml:"root"`
	Products int      `json:"products" yaml:"products"`
	Columns  []string `json:"columns" yaml:"columns"`
}
