// Package metrics provides per-run counters for bundle and product runs.
//
// The Collector accumulates counters during a single run and is embedded in
// the run report via Snapshot. It is a leaf package with no internal
// dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Discovery
	ListingCalls    int64 `json:"listing_calls" yaml:"listing_calls"`
	ListingFailures int64 `json:"listing_failures" yaml:"listing_failures"`
	Discovered      int64 `json:"discovered" yaml:"discovered"`

	// Downloads
	DownloadsSucceeded int64 `json:"downloads_succeeded" yaml:"downloads_succeeded"`
	DownloadsFailed    int64 `json:"downloads_failed" yaml:"downloads_failed"`
	BytesWritten       int64 `json:"bytes_written" yaml:"bytes_written"`
	ImagesOptimized    int64 `json:"images_optimized" yaml:"images_optimized"`
	BytesSaved         int64 `json:"bytes_saved" yaml:"bytes_saved"`
	DuplicatesRemoved  int64 `json:"duplicates_removed" yaml:"duplicates_removed"`

	// Product API
	PagesFetched    int64 `json:"pages_fetched" yaml:"pages_fetched"`
	PageRetries     int64 `json:"page_retries" yaml:"page_retries"`
	ProductsFetched int64 `json:"products_fetched" yaml:"products_fetched"`

	// Publishing
	ObjectsPublished int64 `json:"objects_published" yaml:"objects_published"`
	PublishFailures  int64 `json:"publish_failures" yaml:"publish_failures"`

	// Dimensions (informational, set at construction)
	Command string `json:"command" yaml:"command"`
	RunID   string `json:"run_id" yaml:"run_id"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe so
// components can be constructed without a collector.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(command, runID string) *Collector {
	return &Collector{s: Snapshot{Command: command, RunID: runID}}
}

func (c *Collector) update(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// --- Discovery ---

// IncListingCall records one request to the directory-listing API.
func (c *Collector) IncListingCall() { c.update(func(s *Snapshot) { s.ListingCalls++ }) }

// IncListingFailure records a listing request that failed softly.
func (c *Collector) IncListingFailure() { c.update(func(s *Snapshot) { s.ListingFailures++ }) }

// AddDiscovered records n discovered file descriptors.
func (c *Collector) AddDiscovered(n int) {
	c.update(func(s *Snapshot) { s.Discovered += int64(n) })
}

// --- Downloads ---

// RecordDownload records a written asset of the given final size.
func (c *Collector) RecordDownload(bytes int64) {
	c.update(func(s *Snapshot) {
		s.DownloadsSucceeded++
		s.BytesWritten += bytes
	})
}

// IncDownloadFailed records an asset dropped from the run.
func (c *Collector) IncDownloadFailed() { c.update(func(s *Snapshot) { s.DownloadsFailed++ }) }

// RecordOptimization records a successful re-encode and the bytes it saved.
// Negative savings are recorded as zero.
func (c *Collector) RecordOptimization(saved int64) {
	c.update(func(s *Snapshot) {
		s.ImagesOptimized++
		if saved > 0 {
			s.BytesSaved += saved
		}
	})
}

// AddDuplicatesRemoved records n duplicate copies deleted from disk.
func (c *Collector) AddDuplicatesRemoved(n int) {
	c.update(func(s *Snapshot) { s.DuplicatesRemoved += int64(n) })
}

// --- Product API ---

// RecordPage records one fetched page and the number of products it held.
func (c *Collector) RecordPage(products int) {
	c.update(func(s *Snapshot) {
		s.PagesFetched++
		s.ProductsFetched += int64(products)
	})
}

// IncPageRetry records a failed page attempt that will be retried.
func (c *Collector) IncPageRetry() { c.update(func(s *Snapshot) { s.PageRetries++ }) }

// --- Publishing ---

// IncPublished records one object uploaded to storage.
func (c *Collector) IncPublished() { c.update(func(s *Snapshot) { s.ObjectsPublished++ }) }

// IncPublishFailure records one failed upload.
func (c *Collector) IncPublishFailure() { c.update(func(s *Snapshot) { s.PublishFailures++ }) }

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
