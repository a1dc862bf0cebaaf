package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestGoogleAuthenticate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"g-42","email":"cat@example.com","name":"Cat Lover","picture":"https://img.test/p.jpg"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogle(GoogleOptions{ClientID: "id", ClientSecret: "secret"})
	g.oauth2Config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g.userInfoURL = srv.URL + "/userinfo"

	profile, err := g.Authenticate(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if profile.Subject != "g-42" || profile.Email != "cat@example.com" || profile.Name != "Cat Lover" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := g.Authenticate(context.Background(), "bad-code"); err == nil {
		t.Fatalf("expected error for rejected code")
	}

	if url := g.AuthURL("state-1"); !strings.Contains(url, "state=state-1") {
		t.Fatalf("auth url missing state: %s", url)
	}
}
