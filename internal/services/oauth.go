package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/babynest/backend/internal/config"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleOAuth runs the authorization code flow against Google.
type GoogleOAuth struct {
	conf        *oauth2.Config
	tokens      *TokenManager
	userInfoURL string
}

func NewGoogleOAuth(cfg config.GoogleConfig, tokens *TokenManager) *GoogleOAuth {
	return &GoogleOAuth{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		tokens:      tokens,
		userInfoURL: googleUserInfoURL,
	}
}

// AuthCodeURL returns the consent URL and the state it embeds.
func (g *GoogleOAuth) AuthCodeURL() (string, string, error) {
	state, err := g.tokens.IssueState()
	if err != nil {
		return "", "", err
	}
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOnline), state, nil
}

// Exchange verifies state, trades code for a token and fetches the profile.
func (g *GoogleOAuth) Exchange(ctx context.Context, state, code string) (*GoogleProfile, error) {
	if err := g.tokens.VerifyState(state); err != nil {
		return nil, fmt.Errorf("%w: bad state", ErrOAuthFailed)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrOAuthFailed)
	}
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned %d", ErrOAuthFailed, resp.StatusCode)
	}

	var profile GoogleProfile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}
	return &profile, nil
}
