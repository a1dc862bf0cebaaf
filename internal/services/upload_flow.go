package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/mapview"
	"cat-map-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// FlowState is the state of a user's upload confirmation
type FlowState string

const (
	FlowIdle       FlowState = "idle"
	FlowConfirming FlowState = "confirming"
	FlowUploading  FlowState = "uploading"
)

// Location sources of a draft
const (
	SourceExif   = "exif"
	SourceDevice = "device"
)

// BeginInput starts an upload confirmation
type BeginInput struct {
	User           *models.UserProfile
	Image          []byte
	DeviceLocation *models.Location
}

// DraftView is what a client sees of its pending upload
type DraftView struct {
	State     FlowState        `json:"state"`
	Location  *models.Location `json:"location,omitempty"`
	Source    string           `json:"source,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// PlacementListener is told when a draft's placement marker moves or blinks
type PlacementListener func(userID string, loc models.Location, lit bool)

type draft struct {
	user      *models.UserProfile
	image     []byte
	source    string
	placement *mapview.Placement
	state     FlowState
	expiresAt time.Time
}

// UploadFlow keeps at most one pending upload per user:
// idle -> confirming -> uploading -> idle, or confirming -> idle on cancel or expiry
type UploadFlow struct {
	mu       sync.Mutex
	drafts   map[string]*draft
	store    *PhotoStore
	ttl      time.Duration
	blink    time.Duration
	listener PlacementListener
	now      func() time.Time
}

// NewUploadFlow creates a flow whose drafts expire after ttl
func NewUploadFlow(store *PhotoStore, ttl time.Duration) *UploadFlow {
	return &UploadFlow{
		drafts: make(map[string]*draft),
		store:  store,
		ttl:    ttl,
		blink:  mapview.BlinkInterval,
		now:    time.Now,
	}
}

// OnPlacement registers the listener for placement marker updates
func (f *UploadFlow) OnPlacement(listener PlacementListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = listener
}

// Begin resolves the photo's location and shows a placement marker there.
// The EXIF position wins over the device position; with neither nothing is kept.
func (f *UploadFlow) Begin(ctx context.Context, in BeginInput) (DraftView, error) {
	if in.User == nil {
		return DraftView{}, ErrLoginRequired
	}
	if len(in.Image) == 0 {
		return DraftView{}, invalid("image is required")
	}

	var loc models.Location
	source := ""
	if exifLoc, ok := imageproc.Location(in.Image); ok {
		loc, source = exifLoc, SourceExif
	} else if in.DeviceLocation != nil {
		loc, source = *in.DeviceLocation, SourceDevice
	} else {
		return DraftView{}, ErrLocationUnavailable
	}
	if err := validateLocation(loc); err != nil {
		return DraftView{}, err
	}

	f.mu.Lock()
	prev, replacing := f.drafts[in.User.ID]
	if replacing && prev.state == FlowUploading {
		f.mu.Unlock()
		return DraftView{}, fmt.Errorf("upload in progress: %w", ErrInvalidState)
	}

	d := &draft{
		user:      in.User,
		image:     in.Image,
		source:    source,
		placement: mapview.NewPlacement(loc),
		state:     FlowConfirming,
		expiresAt: f.now().Add(f.ttl),
	}
	f.drafts[in.User.ID] = d
	v := view(d)
	listener := f.listener
	f.mu.Unlock()

	// Stopping waits for the old blink loop, which may be inside the listener
	if replacing {
		prev.placement.Stop()
	}

	userID := in.User.ID
	if listener != nil {
		listener(userID, loc, true)
		d.placement.Blink(context.Background(), f.blink, func(lit bool) {
			listener(userID, d.placement.Position(), lit)
		})
	}

	log.Info().Str("user_id", userID).Str("source", source).Msg("Upload confirmation started")
	return v, nil
}

// Move places the marker somewhere else while confirming
func (f *UploadFlow) Move(userID string, loc models.Location) (DraftView, error) {
	if err := validateLocation(loc); err != nil {
		return DraftView{}, err
	}

	f.mu.Lock()
	d, err := f.confirmingLocked(userID)
	if err != nil {
		f.mu.Unlock()
		return DraftView{}, err
	}
	d.placement.Move(loc)
	v := view(d)
	listener := f.listener
	f.mu.Unlock()

	if listener != nil {
		listener(userID, loc, d.placement.Lit())
	}
	return v, nil
}

// Confirm uploads the draft at the marker's position. The draft is gone afterwards
// whether or not the upload succeeded.
func (f *UploadFlow) Confirm(ctx context.Context, userID string) (*models.Photo, error) {
	f.mu.Lock()
	d, err := f.confirmingLocked(userID)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	d.state = FlowUploading
	f.mu.Unlock()

	d.placement.Stop()
	loc := d.placement.Position()

	photo, err := f.store.Upload(ctx, UploadInput{Image: d.image, Location: &loc, User: d.user})

	f.mu.Lock()
	if f.drafts[userID] == d {
		delete(f.drafts, userID)
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return photo, nil
}

// Cancel drops the draft
func (f *UploadFlow) Cancel(userID string) error {
	f.mu.Lock()
	d, err := f.confirmingLocked(userID)
	if err == nil {
		delete(f.drafts, userID)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}

	d.placement.Stop()
	log.Info().Str("user_id", userID).Msg("Upload confirmation cancelled")
	return nil
}

// Current returns the user's draft, or the idle view
func (f *UploadFlow) Current(userID string) DraftView {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.drafts[userID]
	if !ok || f.expiredLocked(d) {
		return DraftView{State: FlowIdle}
	}
	return view(d)
}

// Expire drops drafts nobody confirmed in time and returns how many
func (f *UploadFlow) Expire() int {
	f.mu.Lock()
	var expired []*draft
	for id, d := range f.drafts {
		if f.expiredLocked(d) {
			expired = append(expired, d)
			delete(f.drafts, id)
		}
	}
	f.mu.Unlock()

	for _, d := range expired {
		d.placement.Stop()
	}
	return len(expired)
}

// Run expires drafts on every interval until ctx is done
func (f *UploadFlow) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := f.Expire(); n > 0 {
				log.Info().Int("expired", n).Msg("Expired upload drafts")
			}
		}
	}
}

func (f *UploadFlow) confirmingLocked(userID string) (*draft, error) {
	d, ok := f.drafts[userID]
	if !ok || f.expiredLocked(d) {
		return nil, fmt.Errorf("no upload awaiting confirmation: %w", ErrInvalidState)
	}
	if d.state != FlowConfirming {
		return nil, fmt.Errorf("upload is %s: %w", d.state, ErrInvalidState)
	}
	return d, nil
}

func (f *UploadFlow) expiredLocked(d *draft) bool {
	return d.state == FlowConfirming && f.ttl > 0 && !f.now().Before(d.expiresAt)
}

func view(d *draft) DraftView {
	loc := d.placement.Position()
	exp := d.expiresAt
	return DraftView{
		State:     d.state,
		Location:  &loc,
		Source:    d.source,
		ExpiresAt: &exp,
	}
}
