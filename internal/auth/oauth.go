package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// RefreshSkew is how close to expiry a token may get before the guard
// refreshes it.
const RefreshSkew = 60 * time.Second

// OnshapeEndpoint describes Onshape's OAuth2 endpoints. Client credentials
// go in the Authorization header (HTTP Basic), per the Onshape docs.
var OnshapeEndpoint = oauth2.Endpoint{
	AuthURL:   "https://oauth.onshape.com/oauth/authorize",
	TokenURL:  "https://oauth.onshape.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// OAuthService manages the Onshape OAuth2 token lifecycle for a session.
type OAuthService struct {
	config *oauth2.Config
}

// NewOAuthService creates a new OAuthService.
// The oauthConfig should be constructed by the caller (e.g., from environment
// variables), with OnshapeEndpoint unless tests override it.
func NewOAuthService(oauthConfig *oauth2.Config) *OAuthService {
	return &OAuthService{config: oauthConfig}
}

// Config returns the OAuth2 config.
func (s *OAuthService) Config() *oauth2.Config {
	return s.config
}

// AuthURL returns the URL to redirect the user to for Onshape authorization.
func (s *OAuthService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair.
func (s *OAuthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.config.Exchange(ctx, code)
}

// EnsureFresh is the token guard. A token expiring more than RefreshSkew from
// now passes through untouched with no network call. Otherwise one
// refresh_token grant runs against the token endpoint; the new pair is
// returned with refreshed=true so the caller can persist it. A reissued
// refresh token replaces the old one; an absent one keeps it. Refresh failure
// is returned as an error and never retried here.
func (s *OAuthService) EnsureFresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, bool, error) {
	if tok.AccessToken != "" && time.Until(tok.Expiry) > RefreshSkew {
		return tok, false, nil
	}
	if tok.RefreshToken == "" {
		return nil, false, fmt.Errorf("no refresh token to renew expired access token")
	}

	// Force the TokenSource to run the refresh grant now.
	stale := &oauth2.Token{
		RefreshToken: tok.RefreshToken,
		Expiry:       time.Now().Add(-1 * time.Hour),
	}
	fresh, err := s.config.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, false, fmt.Errorf("refresh token grant failed: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return fresh, true, nil
}
