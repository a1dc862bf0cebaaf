package models

import "time"

// Role values stored on the user record
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Location is a WGS84 coordinate
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a viewport rectangle given by its south-west and north-east corners
type Bounds struct {
	SouthWest Location `json:"sw"`
	NorthEast Location `json:"ne"`
}

// Contains reports whether loc lies inside the bounds, edges included
func (b Bounds) Contains(loc Location) bool {
	if loc.Lat < b.SouthWest.Lat || loc.Lat > b.NorthEast.Lat {
		return false
	}
	// Viewports crossing the antimeridian have sw.lng > ne.lng
	if b.SouthWest.Lng <= b.NorthEast.Lng {
		return loc.Lng >= b.SouthWest.Lng && loc.Lng <= b.NorthEast.Lng
	}
	return loc.Lng >= b.SouthWest.Lng || loc.Lng <= b.NorthEast.Lng
}

// Author is the denormalized identity copied onto photos, comments and posts
type Author struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	AvatarURL string `json:"user_photo_url"`
}

// Photo represents a geotagged cat photo pinned on the map
type Photo struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"image_url"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	CreatedAt time.Time `json:"created_at"`
	Author
	CatID   *string `json:"cat_id,omitempty"`
	CatName *string `json:"cat_name,omitempty"`
}

// Location returns the photo's coordinate
func (p *Photo) Location() Location {
	return Location{Lat: p.Lat, Lng: p.Lng}
}

// CatProfile represents a named album for one stray cat
type CatProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Age          *string   `json:"age,omitempty"`
	Tags         []string  `json:"tags"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	MainPhotoURL string    `json:"main_photo_url"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Comment represents a comment on a photo
type Comment struct {
	ID      string `json:"id"`
	PhotoID string `json:"photo_id"`
	Author
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadPost represents a timeline entry on a cat profile
type ThreadPost struct {
	ID    string `json:"id"`
	CatID string `json:"cat_id"`
	Author
	Text      string    `json:"text,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile represents a signed-in user
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"photo_url"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	PushToken   *string   `json:"push_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AsAuthor returns the denormalized author fields for this user
func (u *UserProfile) AsAuthor() Author {
	return Author{
		UserID:    u.ID,
		UserName:  u.DisplayName,
		AvatarURL: u.AvatarURL,
	}
}

// IsAdmin reports whether the user carries the admin role
func (u *UserProfile) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// OrphanObject is a stored object whose deletion failed and awaits a retry
type OrphanObject struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
