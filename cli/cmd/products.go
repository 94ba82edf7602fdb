package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bundler/adapter"
	"github.com/pithecene-io/bundler/cli/config"
	"github.com/pithecene-io/bundler/cli/reader"
	"github.com/pithecene-io/bundler/cli/render"
	"github.com/pithecene-io/bundler/products"
	"github.com/pithecene-io/bundler/storage"
	"github.com/pithecene-io/bundler/types"
)

// Default export formats, matching the catalog files the app build reads.
var defaultExportFormats = []string{products.FormatJSON, products.FormatCSV}

// ProductsCommand returns the products command.
func ProductsCommand() *cli.Command {
	return &cli.Command{
		Name:  "products",
		Usage: "Download the full product catalog and export it",
		Flags: append(RunFlags(),
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Product API collection endpoint",
				EnvVars: []string{"BUNDLER_PRODUCTS_URL"},
			},
			&cli.StringFlag{
				Name:  "token-env",
				Usage: "Environment variable holding the bearer token (default BUNDLER_PRODUCTS_TOKEN)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file loaded before reading the token",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Directory for exported files",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Export file name prefix (default products)",
			},
			&cli.StringSliceFlag{
				Name:  "export",
				Usage: "Export formats: json, csv, msgpack (default json,csv)",
			},
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Records per page (default 100)",
			},
			&cli.StringFlag{
				Name:  "archive",
				Usage: "Also archive the snapshot: fs or s3",
			},
			&cli.StringFlag{
				Name:  "archive-path",
				Usage: "Root directory for the fs archive",
			},
		),
		Action: productsAction,
	}
}

// productsSetup is the resolved configuration of one products run.
type productsSetup struct {
	client    products.Config
	tokenEnv  string
	outputDir string
	prefix    string
	formats   []string
	archive   config.ArchiveConfig
}

func resolveProducts(c *cli.Context, cfg *config.Config) (*productsSetup, error) {
	p := cfg.Products
	endpoint := stringOr(c.String("url"), p.URL)
	if endpoint == "" {
		return nil, errors.New("product API URL is required (--url or products.url in the config file)")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid product API URL: %w", err)
	}

	pageDelay := products.DefaultPageDelay
	if p.PageDelay != nil {
		pageDelay = p.PageDelay.Duration
	}
	setup := &productsSetup{
		client: products.Config{
			URL:         endpoint,
			PageSize:    p.PageSize,
			MaxAttempts: p.MaxAttempts,
			RetryDelay:  durationOr(p.RetryDelay, products.DefaultRetryDelay),
			PageDelay:   pageDelay,
			Timeout:     p.Timeout.Duration,
			Headers:     p.Headers,
		},
		tokenEnv:  stringOr(c.String("token-env"), stringOr(p.TokenEnv, products.DefaultTokenEnv)),
		outputDir: stringOr(c.String("output-dir"), stringOr(p.OutputDir, ".")),
		prefix:    stringOr(c.String("prefix"), p.Prefix),
		formats:   p.Formats,
		archive:   p.Archive,
	}
	if n := c.Int("page-size"); n > 0 {
		setup.client.PageSize = n
	}
	if f := c.StringSlice("export"); len(f) > 0 {
		setup.formats = f
	}
	if len(setup.formats) == 0 {
		setup.formats = defaultExportFormats
	}
	for _, f := range setup.formats {
		switch f {
		case products.FormatJSON, products.FormatCSV, products.FormatMsgpack:
		default:
			return nil, fmt.Errorf("unknown export format %q", f)
		}
	}

	if b := c.String("archive"); b != "" {
		setup.archive.Backend = b
	}
	if path := c.String("archive-path"); path != "" {
		setup.archive.Path = path
	}
	switch setup.archive.Backend {
	case "":
	case "fs":
		setup.archive.Path = stringOr(setup.archive.Path, filepath.Join(setup.outputDir, "archive"))
	case "s3":
		if cfg.Storage.Bucket == "" {
			return nil, errors.New("s3 archive requires storage.bucket")
		}
	default:
		return nil, fmt.Errorf("archive backend must be fs or s3, got %q", setup.archive.Backend)
	}
	return setup, nil
}

func productsAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for products command", exitFailure)
	}

	env, err := newRunEnv(c, "products")
	if err != nil {
		return err
	}
	defer env.close()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	if err := loadEnvFile(c.String("env-file")); err != nil {
		return cli.Exit(fmt.Sprintf("cannot load %s: %v", c.String("env-file"), err), exitConfig)
	}

	setup, err := resolveProducts(c, env.config)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid products config: %v", err), exitConfig)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	creds := products.EnvCredentials{Var: setup.tokenEnv}
	client := products.NewClient(setup.client, creds, nil, env.logger, env.metrics)

	fetchedAt := time.Now()
	catalog, runErr := client.DownloadAll(ctx)

	resp := &reader.ProductsResponse{
		RunID:    env.runID,
		Outcome:  adapter.OutcomeSuccess,
		Products: len(catalog),
		Files:    []string{},
	}

	// A failed download still saves the pages it got.
	if runErr == nil || len(catalog) > 0 {
		files, err := exportCatalog(setup, catalog, fetchedAt)
		resp.Files = files
		if err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr == nil && setup.archive.Backend != "" {
		resp.Archive, runErr = archiveCatalog(ctx, env, setup, catalog, fetchedAt)
	}

	if runErr != nil {
		resp.Outcome = adapter.OutcomeFailed
		resp.Error = runErr.Error()
		env.logger.Error("products run failed", map[string]any{"error": runErr.Error(), "products": len(catalog)})
	} else {
		env.logger.Info("products run complete", map[string]any{"products": len(catalog), "files": resp.Files})
	}
	resp.Metrics = env.metrics.Snapshot()

	env.notify(ctx, &adapter.BundleCompletedEvent{
		EventType: adapter.EventProductsCompleted,
		Outcome:   resp.Outcome,
		Error:     resp.Error,
		Products:  resp.Products,
		Outputs:   resp.Files,
	})

	if !c.Bool("quiet") {
		if err := r.Render(resp); err != nil {
			return err
		}
	}

	return productsExit(ctx, runErr, setup.tokenEnv)
}

// productsExit maps a run error to the command's exit code.
func productsExit(ctx context.Context, err error, tokenEnv string) error {
	switch {
	case err == nil:
		return nil
	case interrupted(ctx, err):
		return cli.Exit("products download interrupted", exitInterrupted)
	case errors.Is(err, products.ErrAuthExpired):
		return cli.Exit(fmt.Sprintf("%v: refresh the token in %s and run again", err, tokenEnv), exitAuth)
	case errors.Is(err, products.ErrNoCredential):
		return cli.Exit(fmt.Sprintf("%v: set %s or add it to .env", err, tokenEnv), exitAuth)
	default:
		return cli.Exit(fmt.Sprintf("products download failed: %v", err), exitFailure)
	}
}

// loadEnvFile loads a dotenv file when it exists. Variables already set in
// the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func exportCatalog(setup *productsSetup, catalog []types.Product, now time.Time) ([]string, error) {
	files := []string{}
	for _, format := range setup.formats {
		path := filepath.Join(setup.outputDir, products.DefaultFileName(setup.prefix, format, now))
		switch format {
		case products.FormatJSON:
			if err := products.WriteJSON(path, catalog); err != nil {
				return files, err
			}
		case products.FormatCSV:
			written, err := products.WriteCSV(path, catalog)
			if err != nil {
				return files, err
			}
			if !written {
				continue
			}
		case products.FormatMsgpack:
			if err := products.WriteMsgpack(path, catalog); err != nil {
				return files, err
			}
		}
		files = append(files, path)
	}
	return files, nil
}

func archiveCatalog(ctx context.Context, env *runEnv, setup *productsSetup, catalog []types.Product, fetchedAt time.Time) (string, error) {
	u, err := url.Parse(setup.client.URL)
	if err != nil {
		return "", err
	}
	acfg := products.ArchiveConfig{
		Dataset: setup.archive.Dataset,
		Source:  u.Hostname(),
		RunID:   env.runID,
	}

	var archive *products.Archive
	var location string
	switch setup.archive.Backend {
	case "fs":
		archive, err = products.NewArchiveFS(acfg, setup.archive.Path)
		location = setup.archive.Path
	case "s3":
		s3cfg := env.s3Config()
		client, cerr := storage.NewS3Client(ctx, s3cfg)
		if cerr != nil {
			return "", fmt.Errorf("storage: %w", cerr)
		}
		archive, err = products.NewArchiveS3(acfg, client, s3cfg.Bucket, s3cfg.Prefix)
		location = "s3://" + s3cfg.Bucket
		if s3cfg.Prefix != "" {
			location += "/" + s3cfg.Prefix
		}
	}
	if err != nil {
		return "", err
	}
	if err := archive.Write(ctx, catalog, fetchedAt); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	return location, nil
}
