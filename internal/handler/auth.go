package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/cadnote/backend/internal/auth"
	"github.com/cadnote/backend/internal/session"
	"github.com/cadnote/backend/internal/store"
)

// AuthHandler handles signup, login, logout and the current-user probe.
type AuthHandler struct {
	users     *store.UserStore
	sessions  *session.Store
	guard     *TokenGuard
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users *store.UserStore, sessions *session.Store, guard *TokenGuard, jwtSecret string) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, guard: guard, jwtSecret: jwtSecret}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup registers a new account.
func (h *AuthHandler) Signup(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var creds credentials
	if err := json.Unmarshal([]byte(req.Body), &creds); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if creds.Email == "" || creds.Password == "" {
		return errorResponse(http.StatusBadRequest, "email and password are required"), nil
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		fmt.Printf("HashPassword error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Signup failed"), nil
	}

	user, err := h.users.Create(ctx, creds.Email, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return errorResponse(http.StatusConflict, "Email already registered"), nil
		}
		fmt.Printf("Create user error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Signup failed"), nil
	}

	return jsonResponse(http.StatusCreated, map[string]interface{}{
		"message": "Signup successful, please log in",
		"user":    map[string]string{"id": user.ID, "email": user.Email},
	}), nil
}

// Login verifies credentials and opens a server-side session.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var creds credentials
	if err := json.Unmarshal([]byte(req.Body), &creds); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if creds.Email == "" || creds.Password == "" {
		return errorResponse(http.StatusBadRequest, "email and password are required"), nil
	}

	user, err := h.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorResponse(http.StatusUnauthorized, "Invalid email or password"), nil
		}
		fmt.Printf("GetByEmail error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Login failed"), nil
	}
	if !auth.CheckPassword(user.PasswordHash, creds.Password) {
		return errorResponse(http.StatusUnauthorized, "Invalid email or password"), nil
	}

	sess, err := h.sessions.Create(ctx, user.ID, user.Email)
	if err != nil {
		fmt.Printf("Create session error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Login failed"), nil
	}

	signed, err := signSessionToken(sess.SID, h.jwtSecret)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign session token"), nil
	}

	resp := jsonResponse(http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"user":    map[string]string{"id": user.ID, "email": user.Email},
	})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {sessionCookie(signed, int(session.DefaultTTL.Seconds()))},
	}
	return resp, nil
}

// Logout destroys the session and expires the cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if sid, err := SessionID(req, h.jwtSecret); err == nil {
		if err := h.sessions.Delete(ctx, sid); err != nil {
			fmt.Printf("Delete session error: %v\n", err)
		}
	}

	resp := jsonResponse(http.StatusOK, map[string]string{"message": "Logged out"})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {sessionCookie("", 0)},
	}
	return resp, nil
}

// CurrentUser returns the session's user. The Onshape link status is probed
// through the token guard but never blocks the response: a failed refresh
// just reports onshapeConnected=false.
func (h *AuthHandler) CurrentUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	connected := false
	if sess.HasToken() {
		if _, err := h.guard.Ensure(ctx, sess); err != nil {
			fmt.Printf("Token guard (tolerant) error: %v\n", err)
		} else {
			connected = true
		}
	}

	return jsonResponse(http.StatusOK, map[string]interface{}{
		"user":             map[string]string{"id": sess.UserID, "email": sess.Email},
		"onshapeConnected": connected,
	}), nil
}
