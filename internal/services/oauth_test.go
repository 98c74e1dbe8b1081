package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/babynest/backend/internal/config"
)

func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"g-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer g-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g-42","email":"mom@example.com","verified_email":true,"name":"Asha"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogle(t *testing.T) *GoogleOAuth {
	t.Helper()
	srv := fakeGoogle(t)
	g := NewGoogleOAuth(config.GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "http://localhost:5000/auth/google/callback",
	}, NewTokenManager("oauth-secret", time.Hour))
	g.conf.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g.userInfoURL = srv.URL + "/userinfo"
	return g
}

func TestGoogleAuthCodeURLCarriesState(t *testing.T) {
	g := newTestGoogle(t)
	consent, state, err := g.AuthCodeURL()
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	u, err := url.Parse(consent)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := u.Query().Get("state"); got != state || state == "" {
		t.Fatalf("state in url = %q, want %q", got, state)
	}
	if u.Query().Get("client_id") != "client" {
		t.Fatalf("client_id missing from %s", consent)
	}
}

func TestGoogleExchange(t *testing.T) {
	g := newTestGoogle(t)
	_, state, err := g.AuthCodeURL()
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}

	profile, err := g.Exchange(context.Background(), state, "good-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if profile.ID != "g-42" || profile.Email != "mom@example.com" || !profile.VerifiedEmail {
		t.Fatalf("profile = %+v", profile)
	}

	tests := []struct {
		name  string
		state string
		code  string
	}{
		{"forged state", "not-a-jwt", "good-code"},
		{"missing code", state, ""},
		{"rejected code", state, "bad-code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Exchange(context.Background(), tt.state, tt.code); !errors.Is(err, ErrOAuthFailed) {
				t.Fatalf("err = %v, want ErrOAuthFailed", err)
			}
		})
	}
}
