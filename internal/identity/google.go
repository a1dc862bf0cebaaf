// Package identity exchanges OAuth2 authorization codes for the signed-in person.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Profile is what the identity provider tells us about a person
type Profile struct {
	Subject string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleOptions configures the Google OAuth2 client
type GoogleOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Google authenticates people with Google OAuth2
type Google struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
}

// NewGoogle creates a Google identity provider
func NewGoogle(opts GoogleOptions) *Google {
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &Google{
		oauth2Config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

// AuthURL returns the consent page URL for state
func (g *Google) AuthURL(state string) string {
	return g.oauth2Config.AuthCodeURL(state)
}

// Authenticate exchanges an authorization code and fetches the person's profile
func (g *Google) Authenticate(ctx context.Context, code string) (*Profile, error) {
	tok, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	client := g.oauth2Config.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user info request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if profile.Subject == "" {
		return nil, fmt.Errorf("user info missing id")
	}

	return &profile, nil
}
