package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/bundler/types"
)

// DefaultDataset is the archive dataset ID.
const DefaultDataset = "products"

// ArchiveConfig identifies where a catalog snapshot lands in the dataset.
type ArchiveConfig struct {
	// Dataset is the dataset ID. Empty means DefaultDataset.
	Dataset string
	// Source names the product API, e.g. the site host.
	Source string
	// RunID identifies this download.
	RunID string
}

// Archive stores catalog snapshots in a lode dataset partitioned by
// source/day/run_id. Each record wraps one product so partition keys never
// collide with product fields.
type Archive struct {
	dataset lode.Dataset
	cfg     ArchiveConfig
}

// NewArchive creates an Archive on the given store factory. Source and
// RunID are only needed for Write.
func NewArchive(cfg ArchiveConfig, factory lode.StoreFactory) (*Archive, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(cfg.Dataset),
		factory,
		lode.WithHiveLayout("source", "day", "run_id"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive dataset: %w", err)
	}
	return &Archive{dataset: ds, cfg: cfg}, nil
}

// NewArchiveFS creates an Archive rooted at a local directory.
func NewArchiveFS(cfg ArchiveConfig, root string) (*Archive, error) {
	return NewArchive(cfg, lode.NewFSFactory(root))
}

// NewArchiveS3 creates an Archive in an S3 bucket.
func NewArchiveS3(cfg ArchiveConfig, client *s3.Client, bucket, prefix string) (*Archive, error) {
	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: bucket,
			Prefix: prefix,
		})
	}
	return NewArchive(cfg, factory)
}

// Dataset returns the underlying dataset.
func (a *Archive) Dataset() lode.Dataset {
	return a.dataset
}

// Write stores products as one snapshot. fetchedAt selects the day
// partition.
func (a *Archive) Write(ctx context.Context, products []types.Product, fetchedAt time.Time) error {
	if len(products) == 0 {
		return nil
	}
	if a.cfg.Source == "" || a.cfg.RunID == "" {
		return errors.New("archive source and run id are required")
	}
	day := fetchedAt.UTC().Format("2006-01-02")
	records := make([]any, len(products))
	for i, p := range products {
		records[i] = map[string]any{
			"source":     a.cfg.Source,
			"day":        day,
			"run_id":     a.cfg.RunID,
			"fetched_at": fetchedAt.UTC().Format(time.RFC3339),
			"product":    p,
		}
	}
	if _, err := a.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return fmt.Errorf("archive products: %w", err)
	}
	return nil
}

// Latest reads back the products of the most recent snapshot.
func (a *Archive) Latest(ctx context.Context) ([]types.Product, error) {
	snap, err := a.dataset.Latest(ctx)
	if err != nil {
		return nil, err
	}
	data, err := a.dataset.Read(ctx, snap.ID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Product, 0, len(data))
	for _, rec := range data {
		m, ok := rec.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := m["product"].(map[string]any); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
