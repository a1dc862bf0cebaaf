package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cat-map-backend/internal/events"
	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const jwtExpDays = 365

// nameRetries bounds the suffixed names tried when a provider name is taken
const nameRetries = 5

// Claims are the session token claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Session is an issued session token for a signed-in user
type Session struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	User      *models.UserProfile `json:"user"`
}

// UserService handles sign-in, session tokens and profile changes
type UserService struct {
	users       UserRepository
	cascades    CascadeRepository
	identity    IdentityProvider
	denylist    TokenDenylist
	media       *Media
	store       *PhotoStore
	publisher   EventPublisher
	jwtSecret   string
	adminEmails map[string]struct{}
	now         func() time.Time
}

// NewUserService creates a new user service
func NewUserService(
	users UserRepository,
	cascades CascadeRepository,
	identity IdentityProvider,
	denylist TokenDenylist,
	media *Media,
	store *PhotoStore,
	publisher EventPublisher,
	jwtSecret string,
	adminEmails []string,
) *UserService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &UserService{
		users:       users,
		cascades:    cascades,
		identity:    identity,
		denylist:    denylist,
		media:       media,
		store:       store,
		publisher:   publisher,
		jwtSecret:   jwtSecret,
		adminEmails: admins,
		now:         time.Now,
	}
}

// SignIn exchanges an authorization code, creates the user on first sign-in
// and issues a session token
func (s *UserService) SignIn(ctx context.Context, code string) (*Session, error) {
	if strings.TrimSpace(code) == "" {
		return nil, invalid("authorization code is required")
	}

	profile, err := s.identity.Authenticate(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}

	role := models.RoleUser
	if _, ok := s.adminEmails[strings.ToLower(profile.Email)]; ok {
		role = models.RoleAdmin
	}
	candidate := &models.UserProfile{
		ID:          profile.Subject,
		DisplayName: profile.Name,
		AvatarURL:   profile.Picture,
		Email:       profile.Email,
		Role:        role,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.createUser(ctx, candidate); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user, err := s.users.GetByID(ctx, profile.Subject)
	if err != nil {
		return nil, lookupErr(err, "user", profile.Subject)
	}

	token, expiresAt, err := s.GenerateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("User signed in")
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// createUser inserts a first-time user. A provider name already held by
// someone else gets a short random suffix.
func (s *UserService) createUser(ctx context.Context, user *models.UserProfile) error {
	base := user.DisplayName
	for attempt := 0; ; attempt++ {
		err := s.users.Create(ctx, user)
		if !errors.Is(err, repository.ErrConflict) || attempt == nameRetries {
			return err
		}
		user.DisplayName = fmt.Sprintf("%s_%s", base, uuid.New().String()[:4])
		log.Info().Str("user_id", user.ID).Str("display_name", user.DisplayName).Msg("Display name taken, trying another")
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(user *models.UserProfile) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.AddDate(0, 0, jwtExpDays)
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateJWT validates a JWT token and returns its claims
func (s *UserService) ValidateJWT(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("user_id not found in token")
	}

	if s.denylist != nil && claims.ID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("token revoked")
		}
	}

	return claims, nil
}

// SignOut revokes the session token until it would have expired
func (s *UserService) SignOut(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return ErrLoginRequired
	}
	expiresAt := s.now().AddDate(0, 0, jwtExpDays)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.denylist.Revoke(ctx, claims.ID, expiresAt); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	log.Info().Str("user_id", claims.UserID).Msg("User signed out")
	return nil
}

// GetUser returns a user profile
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, ErrLoginRequired
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrLoginRequired)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateNickname renames the user everywhere their name is shown.
// A name held by another user is rejected before anything is written.
func (s *UserService) UpdateNickname(ctx context.Context, user *models.UserProfile, name string) (*models.UserProfile, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("nickname is required")
	}
	if name == user.DisplayName {
		return nil, invalid("nickname is unchanged")
	}

	taken, err := s.users.DisplayNameTaken(ctx, name, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check nickname: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%q: %w", name, ErrNicknameTaken)
	}

	if err := s.cascades.UpdateAuthor(ctx, user.ID, repository.AuthorPatch{DisplayName: &name}); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%q: %w", name, ErrNicknameTaken)
		}
		return nil, writeErr(err, "update nickname")
	}
	s.store.patch(
		func(p *models.Photo) bool { return p.UserID == user.ID },
		func(p models.Photo) models.Photo {
			p.UserName = name
			return p
		},
	)
	publish(ctx, s.publisher, events.New(events.UserUpdated, user.ID, user.ID, map[string]string{"display_name": name}))

	log.Info().Str("user_id", user.ID).Msg("Nickname updated")
	return s.GetUser(ctx, user.ID)
}

// UpdateAvatar stores a new profile image and shows it everywhere the user appears
func (s *UserService) UpdateAvatar(ctx context.Context, user *models.UserProfile, image []byte) (*models.UserProfile, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	if len(image) == 0 {
		return nil, invalid("image is required")
	}

	url, err := s.media.Save(ctx, "avatars/"+user.ID, "avatar", image, imageproc.AvatarOptions)
	if err != nil {
		return nil, err
	}

	if err := s.cascades.UpdateAuthor(ctx, user.ID, repository.AuthorPatch{AvatarURL: &url}); err != nil {
		s.media.Discard(ctx, "avatar write failed", url)
		return nil, writeErr(err, "update avatar")
	}
	s.store.patch(
		func(p *models.Photo) bool { return p.UserID == user.ID },
		func(p models.Photo) models.Photo {
			p.AvatarURL = url
			return p
		},
	)
	publish(ctx, s.publisher, events.New(events.UserUpdated, user.ID, user.ID, map[string]string{"photo_url": url}))

	log.Info().Str("user_id", user.ID).Msg("Avatar updated")
	return s.GetUser(ctx, user.ID)
}

// UpdatePushToken registers or clears the device token for comment notifications
func (s *UserService) UpdatePushToken(ctx context.Context, user *models.UserProfile, token string) error {
	if user == nil {
		return ErrLoginRequired
	}
	var value *string
	if token = strings.TrimSpace(token); token != "" {
		value = &token
	}
	if err := s.users.UpdatePushToken(ctx, user.ID, value); err != nil {
		return writeErr(err, "update push token")
	}
	return nil
}
