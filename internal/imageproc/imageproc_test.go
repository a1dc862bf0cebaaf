package imageproc

import (
	"bytes"
	"context"
	"math"
	"testing"

	"cat-map-backend/internal/imageproc/imagetest"

	"github.com/disintegration/imaging"
)

func TestDMSToDecimal(t *testing.T) {
	tests := []struct {
		name          string
		deg, min, sec float64
		ref           string
		want          float64
	}{
		{"north", 37, 30, 0, "N", 37.5},
		{"east", 126, 54, 0, "E", 126.9},
		{"south", 37, 30, 0, "S", -37.5},
		{"west", 126, 54, 0, "W", -126.9},
		{"nul padded ref", 33, 51, 0, "S\x00", -33.85},
		{"missing ref", 10, 0, 36, "", 10.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dmsToDecimal(tt.deg, tt.min, tt.sec, tt.ref)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("dmsToDecimal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocation_GPS(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
	}{
		{"north east", 37.5, 126.9},
		{"south west", -37.5, -126.9},
		{"seconds", 33.8568, 151.2153},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, ok := Location(imagetest.GeotaggedJPEG(t, tt.lat, tt.lng))
			if !ok {
				t.Fatalf("expected a location from the GPS tags")
			}
			if math.Abs(loc.Lat-tt.lat) > 1e-6 || math.Abs(loc.Lng-tt.lng) > 1e-6 {
				t.Fatalf("Location() = %+v, want %v,%v", loc, tt.lat, tt.lng)
			}
		})
	}
}

func TestLocation_NoExif(t *testing.T) {
	if _, ok := Location(imagetest.JPEG(t, 32, 32)); ok {
		t.Fatalf("expected no location for an image without EXIF")
	}
	if _, ok := Location([]byte("not an image")); ok {
		t.Fatalf("expected no location for garbage input")
	}
}

func TestCompress_FitsEdgeAndSize(t *testing.T) {
	c := NewCompressor(2)
	data := imagetest.JPEG(t, 1200, 900)

	out, err := c.Compress(context.Background(), data, PhotoOptions)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(out) > PhotoOptions.MaxBytes {
		t.Fatalf("output %d bytes exceeds %d", len(out), PhotoOptions.MaxBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > PhotoOptions.MaxEdge || b.Dy() > PhotoOptions.MaxEdge {
		t.Fatalf("output %dx%d exceeds max edge %d", b.Dx(), b.Dy(), PhotoOptions.MaxEdge)
	}
	if b.Dx() != 600 {
		t.Fatalf("expected longest edge scaled to 600, got %d", b.Dx())
	}
}

func TestCompress_RejectsEmptyAndCancelled(t *testing.T) {
	c := NewCompressor(1)
	if _, err := c.Compress(context.Background(), nil, PhotoOptions); err != ErrEmptyImage {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Compress(ctx, imagetest.JPEG(t, 8, 8), PhotoOptions); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
