package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/cadnote/backend/internal/auth"
	"github.com/cadnote/backend/internal/crypto"
	"github.com/cadnote/backend/internal/model"
	"github.com/cadnote/backend/internal/session"
)

// ErrNoToken signals that the session never completed the Onshape
// authorization flow.
var ErrNoToken = errors.New("no onshape token in session")

// TokenGuard hands out a valid bearer token for a session, refreshing and
// persisting it transparently when expiry is near. Callers decide what a
// failure means: token-requiring routes redirect to /oauthStart, tolerant
// routes carry on without a token.
type TokenGuard struct {
	oauth     *auth.OAuthService
	sessions  *session.Store
	encryptor crypto.Encryptor
}

// NewTokenGuard creates a new TokenGuard.
func NewTokenGuard(oauthService *auth.OAuthService, sessions *session.Store, encryptor crypto.Encryptor) *TokenGuard {
	return &TokenGuard{oauth: oauthService, sessions: sessions, encryptor: encryptor}
}

// Ensure returns a non-expired access token for the session.
// Concurrent requests may each run a refresh; the session item takes the
// last writer and both tokens remain usable.
func (g *TokenGuard) Ensure(ctx context.Context, sess *model.Session) (string, error) {
	if !sess.HasToken() {
		return "", ErrNoToken
	}

	refreshToken := ""
	if sess.EncryptedRefreshToken != "" {
		rt, err := g.encryptor.Decrypt(ctx, sess.EncryptedRefreshToken)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		refreshToken = rt
	}

	tok := &oauth2.Token{
		AccessToken:  sess.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       time.Unix(sess.TokenExpiresAt, 0),
		TokenType:    "Bearer",
	}

	fresh, refreshed, err := g.oauth.EnsureFresh(ctx, tok)
	if err != nil {
		return "", err
	}

	if refreshed {
		encrypted, err := g.encryptor.Encrypt(ctx, fresh.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		if err := g.sessions.SaveToken(ctx, sess.SID, fresh.AccessToken, encrypted, fresh.Expiry.Unix()); err != nil {
			// The new token is still usable for this request.
			fmt.Printf("SaveToken after refresh error: %v\n", err)
		}
		sess.AccessToken = fresh.AccessToken
		sess.EncryptedRefreshToken = encrypted
		sess.TokenExpiresAt = fresh.Expiry.Unix()
	}

	return fresh.AccessToken, nil
}
