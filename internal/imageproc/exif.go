package imageproc

import (
	"bytes"
	"fmt"
	"strings"

	"cat-map-backend/internal/models"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// Location reads the GPS coordinate embedded in the image metadata.
// ok is false when the image carries no usable GPS tags.
func Location(data []byte) (loc models.Location, ok bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Location{}, false
	}

	lat, err := coordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	if err != nil {
		return models.Location{}, false
	}
	lng, err := coordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if err != nil {
		return models.Location{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return models.Location{}, false
	}
	return models.Location{Lat: lat, Lng: lng}, true
}

func coordinate(x *exif.Exif, field, refField exif.FieldName) (float64, error) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, err
	}
	var parts [3]float64
	for i := range parts {
		v, err := rational(tag, i)
		if err != nil {
			return 0, err
		}
		parts[i] = v
	}

	ref := ""
	if refTag, err := x.Get(refField); err == nil {
		if s, err := refTag.StringVal(); err == nil {
			ref = s
		}
	}
	return dmsToDecimal(parts[0], parts[1], parts[2], ref), nil
}

func rational(tag *tiff.Tag, i int) (float64, error) {
	num, den, err := tag.Rat2(i)
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, fmt.Errorf("zero denominator in component %d", i)
	}
	return float64(num) / float64(den), nil
}

// dmsToDecimal converts degrees/minutes/seconds to decimal degrees;
// southern and western references are negative
func dmsToDecimal(deg, min, sec float64, ref string) float64 {
	v := deg + min/60 + sec/3600
	switch strings.ToUpper(strings.TrimSpace(strings.TrimRight(ref, "\x00"))) {
	case "S", "W":
		return -v
	}
	return v
}
