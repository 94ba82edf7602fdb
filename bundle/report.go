package bundle

import (
	"errors"
	"time"

	"github.com/pithecene-io/bundler/download"
	"github.com/pithecene-io/bundler/metrics"
	"github.com/pithecene-io/bundler/normalize"
	"github.com/pithecene-io/bundler/pubspec"
	"github.com/pithecene-io/bundler/types"
)

// Failure describes one asset dropped from the run.
type Failure struct {
	Class types.AssetClass `json:"class" yaml:"class"`
	Name  string           `json:"name" yaml:"name"`
	Path  string           `json:"path" yaml:"path"`
	Stage string           `json:"stage" yaml:"stage"`
	Error string           `json:"error" yaml:"error"`
}

// Report summarizes a bundle run.
type Report struct {
	StartedAt         time.Time                   `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time                   `json:"finished_at" yaml:"finished_at"`
	Discovered        map[types.AssetClass]int    `json:"discovered" yaml:"discovered"`
	Downloaded        map[types.AssetClass]int    `json:"downloaded" yaml:"downloaded"`
	Failures          []Failure                   `json:"failures" yaml:"failures"`
	TotalBytes        int64                       `json:"total_bytes" yaml:"total_bytes"`
	DuplicatesRemoved int                         `json:"duplicates_removed" yaml:"duplicates_removed"`
	Manifests         map[types.AssetClass]string `json:"manifests" yaml:"manifests"`
	Pubspec           *pubspec.Result             `json:"pubspec,omitempty" yaml:"pubspec,omitempty"`
	PubspecError      string                      `json:"pubspec_error,omitempty" yaml:"pubspec_error,omitempty"`
	Metrics           metrics.Snapshot            `json:"metrics" yaml:"metrics"`
}

func newReport(started time.Time) *Report {
	return &Report{
		StartedAt:  started,
		Discovered: make(map[types.AssetClass]int),
		Downloaded: make(map[types.AssetClass]int),
		Failures:   []Failure{},
		Manifests:  make(map[types.AssetClass]string),
	}
}

func (r *Report) addFailure(class types.AssetClass, desc types.FileDescriptor, err error) {
	f := Failure{
		Class: class,
		Name:  normalize.FileName(desc),
		Path:  desc.RemotePath,
		Error: err.Error(),
	}
	var df *download.Failure
	if errors.As(err, &df) {
		f.Stage = string(df.Stage)
	}
	r.Failures = append(r.Failures, f)
}

// TotalDiscovered returns the number of descriptors across all classes.
func (r *Report) TotalDiscovered() int {
	return sum(r.Discovered)
}

// TotalDownloaded returns the number of written assets across all classes.
func (r *Report) TotalDownloaded() int {
	return sum(r.Downloaded)
}

// Duration returns the wall-clock time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func sum(m map[types.AssetClass]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
