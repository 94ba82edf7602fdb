package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bundler/adapter"
	"github.com/pithecene-io/bundler/bundle"
	"github.com/pithecene-io/bundler/cli/config"
	"github.com/pithecene-io/bundler/cli/reader"
	"github.com/pithecene-io/bundler/cli/render"
	"github.com/pithecene-io/bundler/cli/tui"
	"github.com/pithecene-io/bundler/discover"
	"github.com/pithecene-io/bundler/download"
	"github.com/pithecene-io/bundler/fetch"
	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/optimize"
	"github.com/pithecene-io/bundler/storage"
	"github.com/pithecene-io/bundler/types"
)

// Per-call timeouts. Listing calls are small; asset bodies can be large.
const (
	defaultDiscoveryTimeout = 30 * time.Second
	defaultDownloadTimeout  = 60 * time.Second
	defaultPubspecPath      = "pubspec.yaml"
)

// BundleCommand returns the bundle command.
func BundleCommand() *cli.Command {
	return &cli.Command{
		Name:  "bundle",
		Usage: "Download remote assets, write manifests and patch pubspec.yaml",
		Flags: append(RunFlags(),
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Site root for the listing API and asset paths",
				EnvVars: []string{"BUNDLER_BASE_URL"},
			},
			&cli.StringSliceFlag{
				Name:  "root",
				Usage: "Remote root as path[:class[:output]] (repeatable, replaces configured roots)",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "Listing recursion depth (default 3)",
			},
			&cli.BoolFlag{
				Name:  "no-optimize",
				Usage: "Write images as downloaded",
			},
			&cli.BoolFlag{
				Name:  "no-specials",
				Usage: "Skip the specials PDF source",
			},
			&cli.BoolFlag{
				Name:  "no-colors",
				Usage: "Skip the color swatch source",
			},
			&cli.BoolFlag{
				Name:  "clean",
				Usage: "Remove output directories before downloading",
			},
			&cli.StringFlag{
				Name:  "pubspec",
				Usage: "Build config to patch (default pubspec.yaml)",
			},
			&cli.BoolFlag{
				Name:  "no-pubspec",
				Usage: "Do not patch the build config",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Also write the run report as JSON to this path",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Mirror outputs to the configured S3 bucket after the run",
			},
		),
		Action: bundleAction,
	}
}

// bundleSetup is the fully resolved configuration of one bundle run.
type bundleSetup struct {
	discover      discover.Config
	discoverFetch fetch.Config
	download      download.Config
	downloadFetch fetch.Config
	optimize      *optimize.Config
	pipeline      bundle.Config
}

// resolveBundle merges the config file with the command-line flags.
// Flags always win.
func resolveBundle(c *cli.Context, cfg *config.Config) (*bundleSetup, error) {
	baseURL := strings.TrimRight(stringOr(c.String("base-url"), cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required (--base-url or base_url in the config file)")
	}

	if flags := c.StringSlice("root"); len(flags) > 0 {
		roots, err := parseRoots(flags)
		if err != nil {
			return nil, err
		}
		cfg.Roots = roots
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	roots := cfg.AssetRoots()

	d := cfg.Discovery
	dc := discover.DefaultConfig(baseURL)
	dc.ListingEndpoint = stringOr(d.ListingEndpoint, dc.ListingEndpoint)
	dc.SpecialsEndpoint = stringOr(d.SpecialsEndpoint, dc.SpecialsEndpoint)
	dc.ColorsEndpoint = stringOr(d.ColorsEndpoint, dc.ColorsEndpoint)
	if d.StripPrefix != nil {
		dc.StripPrefix = *d.StripPrefix
	}
	if d.MaxDepth > 0 {
		dc.MaxDepth = d.MaxDepth
	}
	if n := c.Int("max-depth"); n > 0 {
		dc.MaxDepth = n
	}

	setup := &bundleSetup{
		discover: dc,
		discoverFetch: fetch.Config{
			Timeout:    durationOr(d.Timeout, defaultDiscoveryTimeout),
			Attempts:   d.Attempts,
			RetryDelay: durationOr(d.RetryDelay, fetch.DefaultRetryDelay),
			UserAgent:  cfg.UserAgent,
			Headers:    cfg.Headers,
		},
		download: download.Config{
			BaseURL:        baseURL,
			ImageWarnBytes: cfg.Download.ImageWarnBytes,
			PDFWarnBytes:   cfg.Download.PDFWarnBytes,
		},
		downloadFetch: fetch.Config{
			Timeout:    durationOr(cfg.Download.Timeout, defaultDownloadTimeout),
			Attempts:   cfg.Download.Attempts,
			RetryDelay: durationOr(cfg.Download.RetryDelay, fetch.DefaultRetryDelay),
			UserAgent:  cfg.UserAgent,
			Headers:    cfg.Headers,
		},
	}

	optimizeOn := config.Enabled(cfg.Optimize.Enabled, true) && !c.Bool("no-optimize")
	if optimizeOn {
		setup.optimize = &optimize.Config{
			MaxDimension: cfg.Optimize.MaxDimension,
			Quality:      cfg.Optimize.Quality,
		}
	}

	manifests := map[types.AssetClass]string{}
	if p := cfg.Output.ImagesManifest; p != "" {
		manifests[types.AssetClassImages] = p
	}
	if p := cfg.Output.PDFsManifest; p != "" {
		manifests[types.AssetClassPDFs] = p
	}

	pubspecPath := defaultPubspecPath
	if cfg.Output.Pubspec != nil {
		pubspecPath = *cfg.Output.Pubspec
	}
	if c.IsSet("pubspec") {
		pubspecPath = c.String("pubspec")
	}
	if c.Bool("no-pubspec") {
		pubspecPath = ""
	}

	setup.pipeline = bundle.Config{
		Roots:           roots,
		Specials:        config.Enabled(d.Specials, true) && !c.Bool("no-specials"),
		Colors:          config.Enabled(d.Colors, true) && !c.Bool("no-colors"),
		Optimize:        optimizeOn,
		Clean:           c.Bool("clean") || config.Enabled(cfg.Output.Clean, false),
		CleanDirs:       cfg.Output.CleanDirs,
		SweepDuplicates: config.Enabled(cfg.Output.SweepDuplicates, true),
		Manifests:       manifests,
		PubspecPath:     pubspecPath,
	}
	return setup, nil
}

// parseRoots parses path[:class[:output]] root flags.
func parseRoots(values []string) ([]config.RootConfig, error) {
	roots := make([]config.RootConfig, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, ":", 3)
		r := config.RootConfig{Path: parts[0]}
		if len(parts) > 1 {
			r.Class = parts[1]
		}
		if len(parts) > 2 {
			r.Output = parts[2]
		}
		if strings.Trim(r.Path, "/") == "" {
			return nil, fmt.Errorf("invalid --root %q: path is required", v)
		}
		roots = append(roots, r)
	}
	return roots, nil
}

// outputDirs lists the local trees a run writes into, outermost first,
// with nested directories folded into their parent.
func (s *bundleSetup) outputDirs() []string {
	dirs := lo.Map(s.pipeline.Roots, func(r types.RootConfig, _ int) string {
		return filepath.Clean(r.Output)
	})
	if s.pipeline.Specials {
		dirs = append(dirs, filepath.Clean(s.discover.SpecialsOutput))
	}
	if s.pipeline.Colors {
		dirs = append(dirs, filepath.Clean(s.discover.ColorsRoot.Output))
	}
	dirs = lo.Uniq(dirs)
	slices.Sort(dirs)

	var out []string
	for _, d := range dirs {
		nested := lo.SomeBy(out, func(parent string) bool {
			return strings.HasPrefix(d, parent+string(filepath.Separator))
		})
		if !nested {
			out = append(out, d)
		}
	}
	return out
}

func bundleAction(c *cli.Context) error {
	env, err := newRunEnv(c, "bundle")
	if err != nil {
		return err
	}
	defer env.close()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	setup, err := resolveBundle(c, env.config)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid bundle config: %v", err), exitConfig)
	}

	var optimizer *optimize.Optimizer
	if setup.optimize != nil {
		optimizer = optimize.New(*setup.optimize)
	}
	discoverer := discover.New(setup.discover, fetch.NewClient(setup.discoverFetch, nil, env.logger), env.logger, env.metrics)
	downloader := download.New(setup.download, fetch.NewClient(setup.downloadFetch, nil, env.logger), optimizer, env.logger, env.metrics)
	pipeline := bundle.New(setup.pipeline, discoverer, downloader, env.logger, env.metrics)

	ctx, stop := signalContext(c.Context)
	defer stop()

	env.logger.Info("bundle started", map[string]any{
		"base_url": setup.discover.BaseURL,
		"roots":    len(setup.pipeline.Roots),
		"optimize": setup.pipeline.Optimize,
	})
	report, runErr := pipeline.Run(ctx)

	resp := &reader.BundleResponse{RunID: env.runID, Outcome: adapter.OutcomeSuccess, Report: report}
	if runErr == nil && (c.Bool("publish") || env.config.Storage.Publish) {
		resp.Published, runErr = publishBundle(c, env, setup, report)
	}
	if runErr != nil {
		resp.Outcome = adapter.OutcomeFailed
		resp.Error = runErr.Error()
	}

	if path := c.String("report"); path != "" {
		if err := writeReport(path, resp); err != nil {
			env.logger.Warn("report not written", map[string]any{"path": path, "error": err.Error()})
		}
	}

	env.notify(ctx, bundleEvent(resp, setup))

	if !c.Bool("quiet") {
		if c.Bool("tui") {
			if err := r.RenderTUI(tui.ViewReport, report); err != nil {
				return err
			}
		} else if err := r.Render(resp); err != nil {
			return err
		}
	}

	return bundleExit(ctx, runErr)
}

// bundleExit maps a run error to the command's exit code.
func bundleExit(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case interrupted(ctx, err):
		return cli.Exit("bundle interrupted", exitInterrupted)
	case errors.Is(err, bundle.ErrNothingDiscovered), errors.Is(err, bundle.ErrNothingDownloaded):
		return cli.Exit(err.Error(), exitFailure)
	default:
		return cli.Exit(fmt.Sprintf("bundle failed: %v", err), exitFailure)
	}
}

func publishBundle(c *cli.Context, env *runEnv, setup *bundleSetup, report *bundle.Report) (*storage.PublishResult, error) {
	s3cfg := env.s3Config()
	client, err := storage.NewS3Client(c.Context, s3cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	pub := storage.NewPublisher(client, s3cfg.Bucket, s3cfg.Prefix, env.logger, env.metrics)

	total := &storage.PublishResult{Keys: []string{}}
	for _, dir := range setup.outputDirs() {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		res, err := pub.PublishDir(c.Context, dir, filepath.ToSlash(dir))
		if res != nil {
			total.Keys = append(total.Keys, res.Keys...)
			total.Bytes += res.Bytes
		}
		if err != nil {
			return total, err
		}
	}
	for _, class := range slices.Sorted(maps.Keys(report.Manifests)) {
		path := report.Manifests[class]
		n, err := pub.PublishFile(c.Context, path, path)
		if err != nil {
			return total, err
		}
		total.Keys = append(total.Keys, filepath.ToSlash(filepath.Clean(path)))
		total.Bytes += n
	}
	return total, nil
}

func bundleEvent(resp *reader.BundleResponse, setup *bundleSetup) *adapter.BundleCompletedEvent {
	rep := resp.Report
	downloaded := make(map[string]int, len(rep.Downloaded))
	for class, n := range rep.Downloaded {
		downloaded[string(class)] = n
	}
	outputs := setup.outputDirs()
	for _, class := range slices.Sorted(maps.Keys(rep.Manifests)) {
		outputs = append(outputs, rep.Manifests[class])
	}
	event := &adapter.BundleCompletedEvent{
		EventType:  adapter.EventBundleCompleted,
		Outcome:    resp.Outcome,
		Error:      resp.Error,
		Discovered: rep.TotalDiscovered(),
		Downloaded: downloaded,
		Failed:     len(rep.Failures),
		TotalBytes: rep.TotalBytes,
		Outputs:    lo.Map(outputs, func(s string, _ int) string { return filepath.ToSlash(s) }),
	}
	if resp.Published != nil {
		event.Published = resp.Published.Keys
	}
	return event
}

func writeReport(path string, resp *reader.BundleResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	return iox.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
