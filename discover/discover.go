// Package discover walks the remote directory-listing API and the
// supplementary catalog sources, producing flat lists of file descriptors.
//
// Discovery fails softly: a listing that cannot be fetched or decoded is
// logged and treated as empty so the rest of the tree is still walked.
package discover

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/pithecene-io/bundler/fetch"
	"github.com/pithecene-io/bundler/log"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/normalize"
	"github.com/pithecene-io/bundler/types"
)

// Defaults for a Discoverer.
const (
	DefaultListingEndpoint  = "get_directory_files.php"
	DefaultSpecialsEndpoint = "api/specials.php?action=list"
	DefaultColorsEndpoint   = "api/color.json"
	DefaultStripPrefix      = "images/"
	DefaultMaxDepth         = 3
	DefaultSpecialsOutput   = "assets/pdfs/specials"
)

// DefaultColorsRoot is where color swatches land.
var DefaultColorsRoot = types.RootConfig{
	Path:   "images/colors",
	Class:  types.AssetClassImages,
	Output: "assets/colors",
}

// Config configures a Discoverer.
type Config struct {
	// BaseURL is the site root all endpoints and remote paths are relative to.
	BaseURL string
	// ListingEndpoint is the directory-listing API path.
	ListingEndpoint string
	// SpecialsEndpoint lists the specials PDFs. Empty disables the source.
	SpecialsEndpoint string
	// ColorsEndpoint serves the colors JSON-LD document. Empty disables the source.
	ColorsEndpoint string
	// StripPrefix is removed from a subdirectory path before it is queried.
	StripPrefix string
	// MaxDepth bounds listing recursion. Zero means DefaultMaxDepth.
	MaxDepth int
	// SpecialsOutput is the local directory for specials PDFs.
	SpecialsOutput string
	// ColorsRoot is the root assigned to color images.
	ColorsRoot types.RootConfig
}

// DefaultConfig returns the configuration for the given site.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		ListingEndpoint:  DefaultListingEndpoint,
		SpecialsEndpoint: DefaultSpecialsEndpoint,
		ColorsEndpoint:   DefaultColorsEndpoint,
		StripPrefix:      DefaultStripPrefix,
		MaxDepth:         DefaultMaxDepth,
		SpecialsOutput:   DefaultSpecialsOutput,
		ColorsRoot:       DefaultColorsRoot,
	}
}

// Discoverer queries the listing API and catalog sources.
type Discoverer struct {
	config  Config
	client  *fetch.Client
	logger  *log.Logger
	metrics *metrics.Collector
}

// New creates a Discoverer. logger and collector may be nil.
func New(cfg Config, client *fetch.Client, logger *log.Logger, collector *metrics.Collector) *Discoverer {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.ListingEndpoint == "" {
		cfg.ListingEndpoint = DefaultListingEndpoint
	}
	if cfg.SpecialsOutput == "" {
		cfg.SpecialsOutput = DefaultSpecialsOutput
	}
	if cfg.ColorsRoot == (types.RootConfig{}) {
		cfg.ColorsRoot = DefaultColorsRoot
	}
	return &Discoverer{
		config:  cfg,
		client:  client,
		logger:  log.OrNop(logger).Named("discover"),
		metrics: collector,
	}
}

// Config returns the effective configuration.
func (d *Discoverer) Config() Config {
	return d.config
}

// listingEntry is one item of a directory-listing response.
type listingEntry struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	FullName string     `json:"fullname"`
	Size     flexString `json:"size"`
}

type listingResponse struct {
	Files []listingEntry `json:"files"`
}

// IsFilePath reports whether a listing path names a file. Anything without
// a known file extension is treated as a directory.
func IsFilePath(p string) bool {
	return normalize.HasExtension(p, normalize.FileExtensions)
}

// Walk discovers everything under root, keeping only the extensions of the
// root's asset class, and tags each descriptor with root.
func (d *Discoverer) Walk(ctx context.Context, root types.RootConfig) []types.FileDescriptor {
	found := d.Discover(ctx, root.Path, ClassExtensions(root.Class), 0, d.config.MaxDepth)
	for i := range found {
		found[i].Root = root
	}
	d.metrics.AddDiscovered(len(found))
	d.logger.Info("root scanned", map[string]any{
		"root":  root.Path,
		"class": string(root.Class),
		"found": len(found),
	})
	return found
}

// ClassExtensions returns the extension filter for an asset class, or nil
// (keep everything) for an unknown class.
func ClassExtensions(class types.AssetClass) []string {
	switch class {
	case types.AssetClassImages:
		return normalize.ImageExtensions
	case types.AssetClassPDFs:
		return normalize.PDFExtensions
	default:
		return nil
	}
}

// Discover lists directory and recurses into its subdirectories, depth
// first, in the order the API returns entries. It makes no listing call
// once depth reaches maxDepth. When allowedExts is non-empty only files
// with those extensions are kept; directories are traversed regardless.
// The same remote path reached through different directories is reported
// once per occurrence.
func (d *Discoverer) Discover(ctx context.Context, directory string, allowedExts []string, depth, maxDepth int) []types.FileDescriptor {
	if depth >= maxDepth {
		d.logger.Warn("max depth reached", map[string]any{"directory": directory, "depth": depth})
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	entries, ok := d.list(ctx, directory)
	if !ok {
		return nil
	}

	var discovered []types.FileDescriptor
	for _, e := range entries {
		if e.Path == "" {
			continue
		}

		if IsFilePath(e.Path) {
			if len(allowedExts) > 0 && !normalize.HasExtension(e.Path, allowedExts) {
				continue
			}
			discovered = append(discovered, types.FileDescriptor{
				Name:       entryName(e),
				RemotePath: e.Path,
				SizeHint:   string(e.Size),
			})
			continue
		}

		sub := strings.TrimPrefix(e.Path, d.config.StripPrefix)
		discovered = append(discovered, d.Discover(ctx, sub, allowedExts, depth+1, maxDepth)...)
	}
	return discovered
}

func (d *Discoverer) list(ctx context.Context, directory string) ([]listingEntry, bool) {
	d.metrics.IncListingCall()
	d.logger.Debug("querying listing", map[string]any{"directory": directory})

	var resp listingResponse
	endpoint := fetch.JoinURL(d.config.BaseURL, d.config.ListingEndpoint)
	if err := d.client.GetJSON(ctx, endpoint, url.Values{"directory": {directory}}, &resp); err != nil {
		d.metrics.IncListingFailure()
		d.logger.Warn("listing failed", map[string]any{
			"directory": directory,
			"error":     err.Error(),
		})
		return nil, false
	}
	return resp.Files, true
}

// entryName prefers the full file name; the listing API's "name" field
// omits the extension for files.
func entryName(e listingEntry) string {
	if e.FullName != "" {
		return e.FullName
	}
	if e.Name != "" && IsFilePath(e.Name) {
		return e.Name
	}
	return normalize.FileName(types.FileDescriptor{RemotePath: e.Path})
}

// flexString accepts a JSON string or number. Size fields are numbers in
// the listing API and human-readable strings in the specials API.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
