// Package optimize re-encodes downloaded images as bounded-size JPEGs.
//
// Output is always baseline (sequential) JPEG: the encoder has no
// progressive mode. Optimized=true in the stats means the image was
// flattened, bounded and re-encoded at the configured quality, nothing more.
package optimize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"strings"

	// Registered decoders.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/pithecene-io/bundler/types"
)

// Defaults for an Optimizer.
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 85
)

// Config configures an Optimizer.
type Config struct {
	// MaxDimension bounds both width and height of the output.
	MaxDimension int
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// Optimizer flattens, downsizes and re-encodes images.
type Optimizer struct {
	maxDim  int
	quality int
	kernel  *draw.Kernel
}

// New creates an Optimizer, applying defaults to zero fields.
func New(cfg Config) *Optimizer {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	return &Optimizer{
		maxDim:  cfg.MaxDimension,
		quality: cfg.Quality,
		kernel:  draw.CatmullRom,
	}
}

// Optimize decodes raw, composites it over white, shrinks it to fit within
// the maximum dimension and encodes it as JPEG.
//
// Optimize never fails: when raw cannot be decoded or encoded, raw is
// returned unchanged with Optimized=false and Error describing the cause.
func (o *Optimizer) Optimize(raw []byte) ([]byte, types.OptimizationStats) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return raw, types.OptimizationStats{Error: fmt.Sprintf("decode: %v", err)}
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), o.maxDim)

	// JPEG has no alpha channel: start from an opaque white canvas and
	// draw the source over it.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		o.kernel.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: o.quality}); err != nil {
		return raw, types.OptimizationStats{
			OriginalFormat: strings.ToUpper(format),
			Error:          fmt.Sprintf("encode: %v", err),
		}
	}

	out := buf.Bytes()
	return out, types.OptimizationStats{
		Optimized:        true,
		OriginalSize:     int64(len(raw)),
		OptimizedSize:    int64(len(out)),
		ReductionPercent: reduction(len(raw), len(out)),
		OriginalFormat:   strings.ToUpper(format),
		Width:            w,
		Height:           h,
	}
}

// fitWithin scales (w, h) down to fit inside a max×max box, preserving the
// aspect ratio. Sizes already inside the box are returned unchanged.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	scale := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	nw := min(limit, max(1, int(math.Round(float64(w)*scale))))
	nh := min(limit, max(1, int(math.Round(float64(h)*scale))))
	return nw, nh
}

// reduction returns the size reduction in percent, rounded to one decimal.
func reduction(before, after int) float64 {
	if before == 0 {
		return 0
	}
	pct := float64(before-after) / float64(before) * 100
	return math.Round(pct*10) / 10
}
