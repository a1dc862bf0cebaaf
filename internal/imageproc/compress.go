// Package imageproc transcodes uploaded images and reads their GPS metadata.
package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"
)

// ContentType is the media type of every compressed image
const ContentType = "image/jpeg"

// Extension is the file extension of every compressed image
const Extension = ".jpg"

// ErrEmptyImage is returned when there are no bytes to decode
var ErrEmptyImage = errors.New("empty image")

// Options bounds the output of a compression
type Options struct {
	MaxEdge  int
	MaxBytes int
}

// Presets used by the upload paths
var (
	PhotoOptions  = Options{MaxEdge: 600, MaxBytes: 100 * 1024}
	AvatarOptions = Options{MaxEdge: 200, MaxBytes: 20 * 1024}
	ThreadOptions = Options{MaxEdge: 800, MaxBytes: 500 * 1024}
)

const (
	startQuality = 85
	minQuality   = 35
	qualityStep  = 10
	minEdge      = 64
)

// Compressor runs image transcoding on a bounded pool of workers
type Compressor struct {
	sem *semaphore.Weighted
}

// NewCompressor creates a compressor allowing at most workers concurrent jobs
func NewCompressor(workers int) *Compressor {
	if workers <= 0 {
		workers = 1
	}
	return &Compressor{sem: semaphore.NewWeighted(int64(workers))}
}

// Compress decodes data, fits it into opts.MaxEdge and re-encodes it as JPEG,
// lowering quality and then size until the result fits opts.MaxBytes
func (c *Compressor) Compress(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire compression worker: %w", err)
	}
	defer c.sem.Release(1)

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	edge := opts.MaxEdge
	for {
		fitted := fit(img, edge)
		for quality := startQuality; quality >= minQuality; quality -= qualityStep {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := encode(fitted, quality)
			if err != nil {
				return nil, err
			}
			if opts.MaxBytes <= 0 || len(out) <= opts.MaxBytes || (edge <= minEdge && quality-qualityStep < minQuality) {
				return out, nil
			}
		}
		edge = edge * 3 / 4
		if edge < minEdge {
			edge = minEdge
		}
	}
}

func fit(img image.Image, edge int) image.Image {
	if edge <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= edge && b.Dy() <= edge {
		return img
	}
	return imaging.Fit(img, edge, edge, imaging.Lanczos)
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
