// Package bundle runs the asset pipeline: discover remote files, download
// them into local asset directories, write one manifest per asset class,
// and declare the produced directories in the build config.
//
// Execution is sequential. A failing asset is logged and dropped; it never
// aborts the run or affects the records of other assets.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/pithecene-io/bundler/discover"
	"github.com/pithecene-io/bundler/download"
	"github.com/pithecene-io/bundler/log"
	"github.com/pithecene-io/bundler/manifest"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/normalize"
	"github.com/pithecene-io/bundler/pubspec"
	"github.com/pithecene-io/bundler/types"
)

// Run outcomes that carry a dedicated exit code.
var (
	// ErrNothingDiscovered is returned when every source came back empty.
	ErrNothingDiscovered = errors.New("no assets discovered")
	// ErrNothingDownloaded is returned when assets were found but none
	// could be written.
	ErrNothingDownloaded = errors.New("no assets downloaded")
)

// Config configures a Pipeline.
type Config struct {
	// Roots are walked through the listing API, in order.
	Roots []types.RootConfig
	// Specials and Colors enable the supplementary catalog sources.
	Specials bool
	Colors   bool
	// Optimize routes images through the optimizer.
	Optimize bool
	// Clean removes duplicates and the output directories before discovery.
	Clean bool
	// CleanDirs overrides the directories removed by Clean. Defaults to
	// every root output plus the specials and colors outputs.
	CleanDirs []string
	// SweepDuplicates removes duplicate copies after downloading.
	SweepDuplicates bool
	// Manifests maps each asset class to its manifest path. Classes
	// without an entry use manifest.DefaultPath.
	Manifests map[types.AssetClass]string
	// PubspecPath is the build config to patch. Empty disables patching.
	PubspecPath string
}

// Pipeline wires the discoverer and downloader into a full run.
type Pipeline struct {
	config     Config
	discoverer *discover.Discoverer
	downloader *download.Downloader
	logger     *log.Logger
	metrics    *metrics.Collector
	now        func() time.Time
}

// New creates a Pipeline. logger and collector may be nil.
func New(cfg Config, d *discover.Discoverer, dl *download.Downloader, logger *log.Logger, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		config:     cfg,
		discoverer: d,
		downloader: dl,
		logger:     log.OrNop(logger).Named("bundle"),
		metrics:    collector,
		now:        time.Now,
	}
}

// Run executes one bundle run. The returned report is non-nil even when
// an error is returned, so callers can render what happened.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := newReport(p.now())
	defer func() {
		report.FinishedAt = p.now()
		report.Metrics = p.metrics.Snapshot()
	}()

	if p.config.Clean {
		dirs := p.cleanDirs()
		removed, err := Clean(dirs)
		p.metrics.AddDuplicatesRemoved(removed)
		report.DuplicatesRemoved += removed
		if err != nil {
			return report, fmt.Errorf("clean output directories: %w", err)
		}
		p.logger.Info("output directories cleaned", map[string]any{"dirs": dirs, "duplicates_removed": removed})
	}

	descriptors := p.discoverAll(ctx)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	for _, d := range descriptors {
		report.Discovered[d.Root.Class]++
	}
	if len(descriptors) == 0 {
		return report, ErrNothingDiscovered
	}

	classes := lo.Uniq(lo.Map(descriptors, func(d types.FileDescriptor, _ int) types.AssetClass {
		return d.Root.Class
	}))
	groups := lo.GroupBy(descriptors, func(d types.FileDescriptor) types.AssetClass {
		return d.Root.Class
	})

	records := make(map[types.AssetClass][]types.AssetRecord, len(classes))
	for _, class := range classes {
		recs, err := p.downloadClass(ctx, class, groups[class], report)
		records[class] = recs
		if err != nil {
			return report, err
		}
	}

	if p.config.SweepDuplicates {
		removed, err := SweepDuplicates(p.outputDirs(), writtenPaths(records))
		p.metrics.AddDuplicatesRemoved(removed)
		report.DuplicatesRemoved += removed
		if err != nil {
			p.logger.Warn("duplicate sweep failed", map[string]any{"error": err.Error()})
		}
	}

	for _, class := range classes {
		path := p.manifestPath(class)
		if path == "" {
			continue
		}
		m := manifest.Build(class, records[class], p.now())
		if err := manifest.Write(path, m); err != nil {
			return report, err
		}
		report.Manifests[class] = path
		p.logger.Info("manifest written", map[string]any{
			"path":          path,
			"class":         string(class),
			"total":         m.Total,
			"total_size_mb": m.TotalSizeMB,
		})
	}

	if report.TotalDownloaded() == 0 {
		return report, ErrNothingDownloaded
	}

	if p.config.PubspecPath != "" {
		res, err := pubspec.PatchFile(p.config.PubspecPath, assetDirs(records))
		if err != nil {
			// The manifests are already written; a missing section is
			// reported but does not fail the run.
			p.logger.Warn("build config not patched", map[string]any{"path": p.config.PubspecPath, "error": err.Error()})
			report.PubspecError = err.Error()
		} else {
			report.Pubspec = &res
			if res.Changed() {
				p.logger.Info("build config patched", map[string]any{"added": res.Added})
			} else {
				p.logger.Info("all asset directories already declared", nil)
			}
		}
	}

	return report, nil
}

func (p *Pipeline) discoverAll(ctx context.Context) []types.FileDescriptor {
	var all []types.FileDescriptor
	for _, root := range p.config.Roots {
		all = append(all, p.discoverer.Walk(ctx, root)...)
	}
	if p.config.Specials {
		all = append(all, p.discoverer.Specials(ctx)...)
	}
	if p.config.Colors {
		all = append(all, p.discoverer.Colors(ctx)...)
	}
	return all
}

func (p *Pipeline) downloadClass(ctx context.Context, class types.AssetClass, descs []types.FileDescriptor, report *Report) ([]types.AssetRecord, error) {
	p.logger.Info("downloading", map[string]any{"class": string(class), "count": len(descs)})

	recs := make([]types.AssetRecord, 0, len(descs))
	for _, desc := range descs {
		if err := ctx.Err(); err != nil {
			return recs, err
		}

		output := desc.Root.Output
		if output == "" {
			output = "assets/" + string(class)
		}
		dest, err := normalize.LocalPath(desc, desc.Root.Path, output)
		if err != nil {
			p.metrics.IncDownloadFailed()
			p.logger.Warn("asset skipped", map[string]any{"path": desc.RemotePath, "error": err.Error()})
			report.addFailure(class, desc, &download.Failure{Stage: download.StageWrite, Name: normalize.FileName(desc), Err: err})
			continue
		}
		optimize := p.config.Optimize && class == types.AssetClassImages

		rec, err := p.downloader.Download(ctx, desc, dest, optimize)
		if err != nil {
			report.addFailure(class, desc, err)
			continue
		}
		recs = append(recs, *rec)
		report.Downloaded[class]++
		report.TotalBytes += rec.SizeBytes
	}
	return recs, nil
}

func (p *Pipeline) manifestPath(class types.AssetClass) string {
	if path, ok := p.config.Manifests[class]; ok {
		return path
	}
	return manifest.DefaultPath(class)
}

// outputDirs returns every local directory this configuration writes to.
func (p *Pipeline) outputDirs() []string {
	dirs := lo.Map(p.config.Roots, func(r types.RootConfig, _ int) string { return r.Output })
	if p.config.Specials {
		dirs = append(dirs, p.discoverer.Config().SpecialsOutput)
	}
	if p.config.Colors {
		dirs = append(dirs, p.discoverer.Config().ColorsRoot.Output)
	}
	return lo.Uniq(lo.Compact(dirs))
}

func (p *Pipeline) cleanDirs() []string {
	if len(p.config.CleanDirs) > 0 {
		return p.config.CleanDirs
	}
	return p.outputDirs()
}

// writtenPaths returns the local path of every asset written this run.
func writtenPaths(records map[types.AssetClass][]types.AssetRecord) []string {
	var paths []string
	for _, recs := range records {
		for _, r := range recs {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

// assetDirs returns the distinct asset directories holding written files.
func assetDirs(records map[types.AssetClass][]types.AssetRecord) []string {
	var dirs []string
	for _, recs := range records {
		for _, r := range recs {
			dirs = append(dirs, normalize.AssetDir(r.Path))
		}
	}
	return lo.Uniq(lo.Compact(dirs))
}
