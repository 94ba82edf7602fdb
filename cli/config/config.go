package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/bundler/types"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "bundler.yaml"

// Config represents a bundler.yaml file. Every value is optional; CLI flags
// always override config values.
type Config struct {
	BaseURL   string            `yaml:"base_url"`
	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers"`
	LogLevel  string            `yaml:"log_level"`
	LogFormat string            `yaml:"log_format"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Roots     []RootConfig    `yaml:"roots"`
	Optimize  OptimizeConfig  `yaml:"optimize"`
	Download  DownloadConfig  `yaml:"download"`
	Output    OutputConfig    `yaml:"output"`
	Products  ProductsConfig  `yaml:"products"`
	Storage   StorageConfig   `yaml:"storage"`
	Adapters  []AdapterConfig `yaml:"adapters"`
}

// DiscoveryConfig configures the listing walk and the extra sources.
type DiscoveryConfig struct {
	ListingEndpoint  string   `yaml:"listing_endpoint"`
	SpecialsEndpoint string   `yaml:"specials_endpoint"`
	ColorsEndpoint   string   `yaml:"colors_endpoint"`
	Specials         *bool    `yaml:"specials"`
	Colors           *bool    `yaml:"colors"`
	StripPrefix      *string  `yaml:"strip_prefix"`
	MaxDepth         int      `yaml:"max_depth"`
	Timeout          Duration `yaml:"timeout"`
	Attempts         int      `yaml:"attempts"`
	RetryDelay       Duration `yaml:"retry_delay"`
}

// RootConfig is one remote directory tree to bundle.
type RootConfig struct {
	Path   string `yaml:"path"`
	Class  string `yaml:"class"`
	Output string `yaml:"output"`
}

// OptimizeConfig configures image optimization.
type OptimizeConfig struct {
	Enabled      *bool `yaml:"enabled"`
	MaxDimension int   `yaml:"max_dimension"`
	Quality      int   `yaml:"quality"`
}

// DownloadConfig configures asset downloads.
type DownloadConfig struct {
	Timeout        Duration `yaml:"timeout"`
	Attempts       int      `yaml:"attempts"`
	RetryDelay     Duration `yaml:"retry_delay"`
	ImageWarnBytes int64    `yaml:"image_warn_bytes"`
	PDFWarnBytes   int64    `yaml:"pdf_warn_bytes"`
}

// OutputConfig configures what the bundle run writes locally.
type OutputConfig struct {
	Clean           *bool    `yaml:"clean"`
	CleanDirs       []string `yaml:"clean_dirs"`
	SweepDuplicates *bool    `yaml:"sweep_duplicates"`
	ImagesManifest  string   `yaml:"images_manifest"`
	PDFsManifest    string   `yaml:"pdfs_manifest"`
	Pubspec         *string  `yaml:"pubspec"`
}

// ProductsConfig configures the product API download.
type ProductsConfig struct {
	URL         string            `yaml:"url"`
	TokenEnv    string            `yaml:"token_env"`
	PageSize    int               `yaml:"page_size"`
	MaxAttempts int               `yaml:"max_attempts"`
	RetryDelay  Duration          `yaml:"retry_delay"`
	PageDelay   *Duration         `yaml:"page_delay"`
	Timeout     Duration          `yaml:"timeout"`
	Headers     map[string]string `yaml:"headers"`
	OutputDir   string            `yaml:"output_dir"`
	Prefix      string            `yaml:"prefix"`
	Formats     []string          `yaml:"formats"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

// ArchiveConfig enables the partitioned product archive.
type ArchiveConfig struct {
	// Backend is "fs" or "s3". Empty disables the archive.
	Backend string `yaml:"backend"`
	Dataset string `yaml:"dataset"`
	// Path is the FS root for the fs backend.
	Path string `yaml:"path"`
}

// StorageConfig configures the S3-compatible publish target, also used by
// the s3 archive backend.
type StorageConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	// Publish mirrors the bundle output after a successful run.
	Publish bool `yaml:"publish"`
}

// AdapterConfig is one completion notification target.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	LastKey string            `yaml:"last_key,omitempty"`
	LastTTL Duration          `yaml:"last_ttl,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// DefaultRoots is used when the config lists no roots.
var DefaultRoots = []RootConfig{
	{Path: "products", Class: string(types.AssetClassImages), Output: "assets/products"},
}

// AssetRoots converts the configured roots, applying DefaultRoots when none
// are listed and assets/<class> when a root has no output.
func (c *Config) AssetRoots() []types.RootConfig {
	roots := c.Roots
	if len(roots) == 0 {
		roots = DefaultRoots
	}
	out := make([]types.RootConfig, 0, len(roots))
	for _, r := range roots {
		class := types.AssetClass(strings.ToLower(r.Class))
		if class == "" {
			class = types.AssetClassImages
		}
		output := r.Output
		if output == "" {
			output = "assets/" + string(class)
		}
		out = append(out, types.RootConfig{Path: strings.Trim(r.Path, "/"), Class: class, Output: output})
	}
	return out
}

// Enabled returns *b, or def when unset.
func Enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	switch c.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	for i, r := range c.Roots {
		if strings.Trim(r.Path, "/") == "" {
			errs = append(errs, fmt.Errorf("roots[%d]: path is required", i))
		}
		switch types.AssetClass(strings.ToLower(r.Class)) {
		case "", types.AssetClassImages, types.AssetClassPDFs:
		default:
			errs = append(errs, fmt.Errorf("roots[%d]: unknown class %q", i, r.Class))
		}
	}
	if q := c.Optimize.Quality; q < 0 || q > 100 {
		errs = append(errs, fmt.Errorf("optimize.quality must be 1-100, got %d", q))
	}
	if c.Optimize.MaxDimension < 0 {
		errs = append(errs, fmt.Errorf("optimize.max_dimension must be positive, got %d", c.Optimize.MaxDimension))
	}
	switch c.Products.Archive.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("products.archive.backend must be fs or s3, got %q", c.Products.Archive.Backend))
	}
	for _, f := range c.Products.Formats {
		switch f {
		case "json", "csv", "msgpack":
		default:
			errs = append(errs, fmt.Errorf("products.formats: unknown format %q", f))
		}
	}
	for i, a := range c.Adapters {
		switch a.Type {
		case "webhook", "redis":
		default:
			errs = append(errs, fmt.Errorf("adapters[%d]: unknown type %q", i, a.Type))
		}
		if a.URL == "" {
			errs = append(errs, fmt.Errorf("adapters[%d]: url is required", i))
		}
	}
	return errors.Join(errs...)
}
