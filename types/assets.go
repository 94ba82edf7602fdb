// Package types holds the data shared by the bundler packages: asset
// classes, manifest records and product pages.
//
//nolint:revive // types is a common Go package naming convention
package types

import "time"

// AssetClass is a category of bundled artifact. Each class has its own
// output directories and its own manifest.
type AssetClass string

const (
	// AssetClassImages covers product and color images.
	AssetClassImages AssetClass = "images"
	// AssetClassPDFs covers catalogs and specials flyers.
	AssetClassPDFs AssetClass = "pdfs"
)

// RootConfig describes where a group of assets lives remotely and where it
// lands locally.
type RootConfig struct {
	// Path is the remote root directory (e.g. "products").
	Path string `yaml:"path" json:"path"`
	// Class is the asset class of everything discovered under Path.
	Class AssetClass `yaml:"class" json:"class"`
	// Output is the local base directory (e.g. "assets/products").
	Output string `yaml:"output" json:"output"`
}

// FileDescriptor is a remote file as discovered, before download.
// Descriptors are values and are never mutated after discovery.
type FileDescriptor struct {
	Name        string     `json:"name"`
	RemotePath  string     `json:"path"`
	SizeHint    string     `json:"size,omitempty"`
	Category    string     `json:"category,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Root        RootConfig `json:"root"`
}

// OptimizationStats reports what the image optimizer did to one asset.
type OptimizationStats struct {
	Optimized        bool    `json:"optimized"`
	OriginalSize     int64   `json:"original_size,omitempty"`
	OptimizedSize    int64   `json:"optimized_size,omitempty"`
	ReductionPercent float64 `json:"reduction_percent,omitempty"`
	OriginalFormat   string  `json:"original_format,omitempty"`
	Width            int     `json:"width,omitempty"`
	Height           int     `json:"height,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// AssetRecord is the metadata of one successfully written asset.
type AssetRecord struct {
	// Name is the original remote name with query parameters removed.
	Name string `json:"name"`
	// FileName is the sanitized local file name.
	FileName string `json:"filename"`
	// Path is the local path the asset was written to.
	Path string `json:"path"`
	// AssetPath is the path the consuming app uses to load the asset.
	AssetPath    string             `json:"asset_path"`
	URL          string             `json:"url"`
	SizeBytes    int64              `json:"size_bytes"`
	SizeMB       float64            `json:"size_mb"`
	Optimization *OptimizationStats `json:"optimization,omitempty"`
	DownloadedAt time.Time          `json:"downloaded_at"`
	Category     string             `json:"category,omitempty"`
	DisplayName  string             `json:"display_name,omitempty"`
}

// Manifest is the machine-readable summary of one asset class for one run.
// Total and TotalSize always equal the count and byte sum of Items.
type Manifest struct {
	GeneratedAt time.Time     `json:"generated_at"`
	AssetClass  AssetClass    `json:"asset_class"`
	Total       int           `json:"total"`
	TotalSize   int64         `json:"total_size"`
	TotalSizeMB float64       `json:"total_size_mb"`
	Items       []AssetRecord `json:"items"`
}
