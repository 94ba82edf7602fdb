// Package manifest aggregates asset records into per-class manifest files.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/types"
)

// Default manifest locations per asset class.
const (
	DefaultImagesPath = "assets/product_manifest.json"
	DefaultPDFsPath   = "assets/pdf_manifest.json"
)

// DefaultPath returns the default manifest path for class, or "" when the
// class has none.
func DefaultPath(class types.AssetClass) string {
	switch class {
	case types.AssetClassImages:
		return DefaultImagesPath
	case types.AssetClassPDFs:
		return DefaultPDFsPath
	default:
		return ""
	}
}

// Build aggregates records into a manifest. Totals are computed from
// records alone; nothing from a previous run is merged in.
func Build(class types.AssetClass, records []types.AssetRecord, now time.Time) types.Manifest {
	items := make([]types.AssetRecord, len(records))
	copy(items, records)

	var total int64
	for _, r := range items {
		total += r.SizeBytes
	}

	return types.Manifest{
		GeneratedAt: now,
		AssetClass:  class,
		Total:       len(items),
		TotalSize:   total,
		TotalSizeMB: math.Round(float64(total)/(1<<20)*100) / 100,
		Items:       items,
	}
}

// Encode renders m as indented JSON with a trailing newline.
func Encode(m types.Manifest) ([]byte, error) {
	if m.Items == nil {
		m.Items = []types.AssetRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Write replaces the manifest at path in full.
func Write(path string, m types.Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) (types.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return types.Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}
