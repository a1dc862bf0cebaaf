// Package imagetest builds images for tests.
package imagetest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"
)

// JPEG encodes a w x h gradient
func JPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		tb.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// GeotaggedJPEG returns a small JPEG whose EXIF GPS tags encode lat/lng.
// Negative values are written with S and W references.
func GeotaggedJPEG(tb testing.TB, lat, lng float64) []byte {
	tb.Helper()
	latRef, lngRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lng < 0 {
		lngRef = "W"
	}

	app1 := append([]byte("Exif\x00\x00"), gpsTIFF(latRef, dms(lat), lngRef, dms(lng))...)

	body := JPEG(tb, 16, 16)
	var out bytes.Buffer
	out.Write(body[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(app1)+2))
	out.Write(app1)
	out.Write(body[2:])
	return out.Bytes()
}

// rational is a numerator/denominator pair
type rational [2]uint32

func dms(v float64) [3]rational {
	v = math.Abs(v)
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	whole := math.Floor(minutes)
	sec := (minutes - whole) * 60
	return [3]rational{
		{uint32(deg), 1},
		{uint32(whole), 1},
		{uint32(math.Round(sec * 10000)), 10000},
	}
}

// gpsTIFF lays out a big-endian TIFF: IFD0 holding only the GPS IFD pointer,
// then the GPS IFD with tags 1-4, then the two rational triples.
func gpsTIFF(latRef string, lat [3]rational, lngRef string, lng [3]rational) []byte {
	const (
		typeASCII    = 2
		typeLong     = 4
		typeRational = 5

		ifd0Offset = 8
		gpsOffset  = ifd0Offset + 2 + 12 + 4
		dataOffset = gpsOffset + 2 + 4*12 + 4
	)

	var b bytes.Buffer
	w := func(v any) { binary.Write(&b, binary.BigEndian, v) }
	entry := func(tag, typ uint16, count uint32, value []byte) {
		w(tag)
		w(typ)
		w(count)
		var field [4]byte
		copy(field[:], value)
		b.Write(field[:])
	}
	offset := func(v uint32) []byte {
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], v)
		return p[:]
	}

	b.WriteString("MM")
	w(uint16(42))
	w(uint32(ifd0Offset))

	w(uint16(1))
	entry(0x8825, typeLong, 1, offset(gpsOffset))
	w(uint32(0))

	w(uint16(4))
	entry(1, typeASCII, 2, []byte(latRef+"\x00"))
	entry(2, typeRational, 3, offset(dataOffset))
	entry(3, typeASCII, 2, []byte(lngRef+"\x00"))
	entry(4, typeRational, 3, offset(dataOffset+24))
	w(uint32(0))

	for _, triple := range [][3]rational{lat, lng} {
		for _, r := range triple {
			w(r[0])
			w(r[1])
		}
	}
	return b.Bytes()
}
