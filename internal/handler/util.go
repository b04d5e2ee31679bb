package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cadnote/backend/internal/model"
	"github.com/cadnote/backend/internal/session"
)

const cookieName = "session_token"

// getHeader does a case-insensitive header lookup on the event.
func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// SessionID extracts the signed session id from the Authorization header or
// the session cookie and verifies its signature.
func SessionID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	// 1. Check Authorization Header (Bearer <token>)
	tokenString := ""
	authHeader := getHeader(req, "Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check Cookie
	if tokenString == "" {
		cookies := getHeader(req, "Cookie")
		if cookies != "" {
			for _, part := range strings.Split(cookies, ";") {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, cookieName+"=") {
					tokenString = strings.TrimPrefix(part, cookieName+"=")
					break
				}
			}
		}
	}

	if tokenString == "" {
		return "", fmt.Errorf("no session token found")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %v", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if sid, ok := claims["sid"].(string); ok {
			return sid, nil
		}
	}

	return "", fmt.Errorf("invalid session token claims")
}

// GetSession loads the server-side session addressed by the request's cookie.
func GetSession(ctx context.Context, req events.APIGatewayProxyRequest, jwtSecret string, sessions *session.Store) (*model.Session, error) {
	sid, err := SessionID(req, jwtSecret)
	if err != nil {
		return nil, err
	}
	return sessions.Get(ctx, sid)
}

// signSessionToken mints the JWT carried by the session cookie; its sid claim
// locates the server-side session record.
func signSessionToken(sid, jwtSecret string) (string, error) {
	claims := jwt.MapClaims{
		"sid": sid,
		"exp": time.Now().Add(session.DefaultTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// sessionCookie formats the Set-Cookie value for the session token.
// maxAge <= 0 expires the cookie (logout).
func sessionCookie(signedToken string, maxAge int) string {
	sameSite := "Lax"
	if os.Getenv("DEV_MODE") != "true" {
		sameSite = "None"
	}
	if maxAge <= 0 {
		return fmt.Sprintf("%s=; HttpOnly; Path=/; Max-Age=0; SameSite=%s; Secure", cookieName, sameSite)
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure", cookieName, signedToken, maxAge, sameSite)
}

func jsonResponse(status int, v interface{}) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(v)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func errorResponse(status int, msg string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": msg})
}

func redirectResponse(location string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
}

func frontendURL() string {
	url := os.Getenv("FRONTEND_URL")
	if url == "" {
		url = "http://localhost:3000"
	}
	return url
}
