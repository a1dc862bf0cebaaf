// Package mapview keeps the marker layer a map client renders: one marker per
// photo, zoom dependent styling, the selected marker and the placement marker.
package mapview

import "cat-map-backend/internal/models"

// ThumbnailZoom is the first zoom level at which markers show the photo itself
const ThumbnailZoom = 16

// Default viewport used when the device location is unknown
const (
	DefaultLat  = 37.548
	DefaultLng  = 126.923
	DefaultZoom = 15
)

// MarkerKind is how a marker is drawn
type MarkerKind string

const (
	KindPin       MarkerKind = "pin"
	KindThumbnail MarkerKind = "thumbnail"
)

// Style describes how a single marker is drawn
type Style struct {
	Kind        MarkerKind `json:"kind"`
	Size        int        `json:"size"`
	BorderWidth int        `json:"border_width"`
	BorderColor string     `json:"border_color"`
	ZIndex      int        `json:"z_index"`
}

const (
	pinSize            = 24
	thumbnailSize      = 48
	selectedPinSize    = 32
	selectedThumbSize  = 64
	borderColor        = "#ffffff"
	selectedBorder     = "#ff7a00"
	baseZIndex         = 100
	selectedZIndex     = 1000
	borderWidth        = 2
	selectedBorderSize = 4
)

// StyleForZoom returns the marker style for zoom level z
func StyleForZoom(z int, selected bool) Style {
	s := Style{
		Kind:        KindPin,
		Size:        pinSize,
		BorderWidth: borderWidth,
		BorderColor: borderColor,
		ZIndex:      baseZIndex,
	}
	if z >= ThumbnailZoom {
		s.Kind = KindThumbnail
		s.Size = thumbnailSize
	}
	if selected {
		s.Size = selectedPinSize
		if s.Kind == KindThumbnail {
			s.Size = selectedThumbSize
		}
		s.BorderWidth = selectedBorderSize
		s.BorderColor = selectedBorder
		s.ZIndex = selectedZIndex
	}
	return s
}

// Viewport is the initial camera of a map client
type Viewport struct {
	Center models.Location `json:"center"`
	Zoom   int             `json:"zoom"`
}

// InitialCenter centers on the device when its location is known
func InitialCenter(device *models.Location) Viewport {
	if device != nil {
		return Viewport{Center: *device, Zoom: DefaultZoom}
	}
	return Viewport{
		Center: models.Location{Lat: DefaultLat, Lng: DefaultLng},
		Zoom:   DefaultZoom,
	}
}
