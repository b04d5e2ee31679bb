package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/cadnote/backend/internal/auth"
	"github.com/cadnote/backend/internal/crypto"
	"github.com/cadnote/backend/internal/session"
)

// OAuthHandler drives the Onshape authorization-code flow.
type OAuthHandler struct {
	oauth     *auth.OAuthService
	sessions  *session.Store
	encryptor crypto.Encryptor
	jwtSecret string
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(oauthService *auth.OAuthService, sessions *session.Store, encryptor crypto.Encryptor, jwtSecret string) *OAuthHandler {
	return &OAuthHandler{oauth: oauthService, sessions: sessions, encryptor: encryptor, jwtSecret: jwtSecret}
}

// Start mints a state nonce, pins it to the session and redirects the browser
// to Onshape's authorization page.
func (h *OAuthHandler) Start(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	state := uuid.New().String()
	if err := h.sessions.SetOAuthState(ctx, sess.SID, state); err != nil {
		fmt.Printf("SetOAuthState error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Failed to start authorization"), nil
	}

	return redirectResponse(h.oauth.AuthURL(state)), nil
}

// Callback exchanges the authorization code for a token pair and stores it on
// the session, refresh token encrypted.
func (h *OAuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	code := req.QueryStringParameters["code"]
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Missing authorization code"), nil
	}

	state := req.QueryStringParameters["state"]
	if sess.OAuthState == "" || state != sess.OAuthState {
		return errorResponse(http.StatusBadRequest, "Invalid state parameter"), nil
	}

	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		fmt.Printf("Code exchange error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Authorization failed"), nil
	}

	encrypted := ""
	if tok.RefreshToken != "" {
		encrypted, err = h.encryptor.Encrypt(ctx, tok.RefreshToken)
		if err != nil {
			fmt.Printf("Encrypt refresh token error: %v\n", err)
			return errorResponse(http.StatusInternalServerError, "Authorization failed"), nil
		}
	}

	if err := h.sessions.SaveToken(ctx, sess.SID, tok.AccessToken, encrypted, tok.Expiry.Unix()); err != nil {
		fmt.Printf("SaveToken error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Authorization failed"), nil
	}
	// The state nonce is single use.
	if err := h.sessions.SetOAuthState(ctx, sess.SID, ""); err != nil {
		fmt.Printf("Clear oauth state error: %v\n", err)
	}

	return redirectResponse(frontendURL()), nil
}
