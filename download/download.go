// Package download fetches single assets, optionally optimizes images, and
// writes them to their local destination.
package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pithecene-io/bundler/fetch"
	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/log"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/normalize"
	"github.com/pithecene-io/bundler/optimize"
	"github.com/pithecene-io/bundler/types"
)

// Size thresholds above which a written asset is reported as large.
const (
	DefaultImageWarnBytes = 5 << 20
	DefaultPDFWarnBytes   = 10 << 20
)

// Stage identifies where a download failed.
type Stage string

const (
	// StageFetch covers request construction and the HTTP transfer.
	StageFetch Stage = "fetch"
	// StageWrite covers every local filesystem operation.
	StageWrite Stage = "write"
)

// Failure is returned when an asset could not be written. The caller logs
// it and moves on to the next asset.
type Failure struct {
	Stage Stage
	Name  string
	URL   string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.Name, f.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Config configures a Downloader.
type Config struct {
	// BaseURL is prefixed to relative remote paths.
	BaseURL string
	// ImageWarnBytes and PDFWarnBytes are the large-file warning thresholds.
	ImageWarnBytes int64
	PDFWarnBytes   int64
}

// Downloader writes remote assets to local files.
type Downloader struct {
	config    Config
	client    *fetch.Client
	optimizer *optimize.Optimizer
	logger    *log.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// New creates a Downloader. A nil optimizer disables optimization;
// logger and collector may be nil.
func New(cfg Config, client *fetch.Client, optimizer *optimize.Optimizer, logger *log.Logger, collector *metrics.Collector) *Downloader {
	if cfg.ImageWarnBytes <= 0 {
		cfg.ImageWarnBytes = DefaultImageWarnBytes
	}
	if cfg.PDFWarnBytes <= 0 {
		cfg.PDFWarnBytes = DefaultPDFWarnBytes
	}
	return &Downloader{
		config:    cfg,
		client:    client,
		optimizer: optimizer,
		logger:    log.OrNop(logger).Named("download"),
		metrics:   collector,
		now:       time.Now,
	}
}

// Download fetches desc and writes it to dest, replacing any existing file.
// Images are routed through the optimizer when optimize is set. On failure
// the returned error is a *Failure and nothing is recorded for the asset.
func (d *Downloader) Download(ctx context.Context, desc types.FileDescriptor, dest string, optimize bool) (*types.AssetRecord, error) {
	rec, err := d.download(ctx, desc, dest, optimize)
	if err != nil {
		d.metrics.IncDownloadFailed()
		d.logger.Warn("download failed", map[string]any{
			"name":  normalize.FileName(desc),
			"path":  desc.RemotePath,
			"error": err.Error(),
		})
		return nil, err
	}
	return rec, nil
}

func (d *Downloader) download(ctx context.Context, desc types.FileDescriptor, dest string, optimize bool) (*types.AssetRecord, error) {
	name := normalize.FileName(desc)
	if desc.RemotePath == "" {
		return nil, &Failure{Stage: StageFetch, Name: name, Err: errors.New("descriptor has no remote path")}
	}
	url := fetch.JoinURL(d.config.BaseURL, desc.RemotePath)

	// Replace rather than let the platform create "name 2.ext" next to it.
	if err := os.Remove(dest); err == nil {
		d.logger.Debug("removed existing file", map[string]any{"path": dest})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, &Failure{Stage: StageWrite, Name: name, URL: url, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, &Failure{Stage: StageWrite, Name: name, URL: url, Err: err}
	}

	data, err := d.client.GetBytes(ctx, url)
	if err != nil {
		return nil, &Failure{Stage: StageFetch, Name: name, URL: url, Err: err}
	}

	var stats *types.OptimizationStats
	if optimize && d.optimizer != nil && normalize.IsImage(name) {
		out, s := d.optimizer.Optimize(data)
		if s.Optimized {
			data = out
			stats = &s
			d.metrics.RecordOptimization(s.OriginalSize - s.OptimizedSize)
		} else {
			d.logger.Warn("optimization skipped", map[string]any{"name": name, "error": s.Error})
		}
	}

	if err := iox.WriteFileAtomic(dest, data, 0o644); err != nil {
		return nil, &Failure{Stage: StageWrite, Name: name, URL: url, Err: err}
	}

	size := int64(len(data))
	rec := &types.AssetRecord{
		Name:         name,
		FileName:     path.Base(filepath.ToSlash(dest)),
		Path:         filepath.ToSlash(dest),
		AssetPath:    filepath.ToSlash(dest),
		URL:          url,
		SizeBytes:    size,
		SizeMB:       toMB(size),
		Optimization: stats,
		DownloadedAt: d.now(),
		Category:     desc.Category,
		DisplayName:  desc.DisplayName,
	}
	d.metrics.RecordDownload(size)

	fields := map[string]any{"name": name, "path": rec.Path, "size_mb": rec.SizeMB}
	if stats != nil {
		fields["reduction_percent"] = stats.ReductionPercent
	}
	d.logger.Info("asset written", fields)

	switch {
	case normalize.IsImage(name) && size > d.config.ImageWarnBytes:
		d.logger.Warn("large image file", map[string]any{"name": name, "size_mb": rec.SizeMB})
	case normalize.IsPDF(name) && size > d.config.PDFWarnBytes:
		d.logger.Warn("large PDF file", map[string]any{"name": name, "size_mb": rec.SizeMB})
	}

	return rec, nil
}

// toMB converts bytes to mebibytes rounded to two decimals.
func toMB(n int64) float64 {
	return math.Round(float64(n)/(1<<20)*100) / 100
}
