package model

import "time"

// User represents an account stored in the Users table.
type User struct {
	ID           string    `json:"id" dynamodbav:"id"`
	Email        string    `json:"email" dynamodbav:"email"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	ActiveNoteID string    `json:"-" dynamodbav:"active_note_id"` // empty = no active note
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Note represents a note stored in the Notes table.
// IsActive is never stored; it is derived from the owning user's
// ActiveNoteID pointer when notes are returned to the API.
type Note struct {
	ID        string    `json:"id" dynamodbav:"id"`
	UserID    string    `json:"-" dynamodbav:"user_id"`
	Title     string    `json:"title" dynamodbav:"title"`
	Content   string    `json:"content" dynamodbav:"content"`
	IsActive  bool      `json:"isActive" dynamodbav:"-"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// Session is the server-side session record, keyed by the sid carried in the
// session cookie. It owns the Onshape token pair for this login.
type Session struct {
	SID                   string `json:"sid" dynamodbav:"sid"`
	UserID                string `json:"user_id" dynamodbav:"user_id"`
	Email                 string `json:"email" dynamodbav:"email"`
	AccessToken           string `json:"-" dynamodbav:"access_token"`
	EncryptedRefreshToken string `json:"-" dynamodbav:"encrypted_refresh_token"`
	TokenExpiresAt        int64  `json:"-" dynamodbav:"token_expires_at"` // Unix timestamp
	OAuthState            string `json:"-" dynamodbav:"oauth_state"`
	ActiveNoteID          string `json:"-" dynamodbav:"active_note_id"`
	ExpiresAt             int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}

// HasToken reports whether this session ever obtained an Onshape token pair.
func (s *Session) HasToken() bool {
	return s.AccessToken != "" || s.EncryptedRefreshToken != ""
}
