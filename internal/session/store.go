package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/cadnote/backend/internal/model"
)

// DefaultTTL is how long a session lives without being recreated by login.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

func tableName() *string {
	name := os.Getenv("SESSIONS_TABLE")
	if name == "" {
		name = "Sessions"
	}
	return aws.String(name)
}

// Store keeps server-side sessions in DynamoDB with a TTL attribute.
// If client is nil, it uses an in-memory map (for tests and DEV_MODE).
type Store struct {
	client      *dynamodb.Client
	ttlDuration time.Duration

	// Fallback for tests
	sessions map[string]*model.Session
	mu       sync.RWMutex
}

// NewStore creates a new session Store.
func NewStore(client *dynamodb.Client) *Store {
	return &Store{
		client:      client,
		ttlDuration: DefaultTTL,
		sessions:    make(map[string]*model.Session),
	}
}

// Create mints a fresh session for a logged-in user.
func (s *Store) Create(ctx context.Context, userID, email string) (*model.Session, error) {
	sess := &model.Session{
		SID:       uuid.New().String(),
		UserID:    userID,
		Email:     email,
		ExpiresAt: time.Now().Add(s.ttlDuration).Unix(),
	}

	if s.client == nil {
		s.mu.Lock()
		s.sessions[sess.SID] = sess
		s.mu.Unlock()
		copied := *sess
		return &copied, nil
	}

	item, err := attributevalue.MarshalMap(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: tableName(),
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return sess, nil
}

// Get retrieves a session by sid. Expired sessions behave as missing.
func (s *Store) Get(ctx context.Context, sid string) (*model.Session, error) {
	var sess model.Session

	if s.client == nil {
		s.mu.RLock()
		stored, ok := s.sessions[sid]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrNotFound
		}
		sess = *stored
	} else {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: tableName(),
			Key: map[string]types.AttributeValue{
				"sid": &types.AttributeValueMemberS{Value: sid},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		if out.Item == nil {
			return nil, ErrNotFound
		}
		if err := attributevalue.UnmarshalMap(out.Item, &sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
	}

	// DynamoDB TTL deletion lags, so check expiry ourselves.
	if sess.ExpiresAt < time.Now().Unix() {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Delete destroys a session. Deleting an unknown sid is not an error.
func (s *Store) Delete(ctx context.Context, sid string) error {
	if s.client == nil {
		s.mu.Lock()
		delete(s.sessions, sid)
		s.mu.Unlock()
		return nil
	}

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: tableName(),
		Key: map[string]types.AttributeValue{
			"sid": &types.AttributeValueMemberS{Value: sid},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SaveToken overwrites the session's Onshape token triple after a code
// exchange or a refresh. Last writer wins for concurrent refreshes.
func (s *Store) SaveToken(ctx context.Context, sid, accessToken, encryptedRefreshToken string, tokenExpiresAt int64) error {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[sid]
		if !ok {
			return ErrNotFound
		}
		sess.AccessToken = accessToken
		sess.EncryptedRefreshToken = encryptedRefreshToken
		sess.TokenExpiresAt = tokenExpiresAt
		return nil
	}

	return s.update(ctx, sid,
		"SET access_token = :at, encrypted_refresh_token = :rt, token_expires_at = :exp",
		map[string]types.AttributeValue{
			":at":  &types.AttributeValueMemberS{Value: accessToken},
			":rt":  &types.AttributeValueMemberS{Value: encryptedRefreshToken},
			":exp": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", tokenExpiresAt)},
		})
}

// SetOAuthState stores the CSRF state for an in-flight authorization.
func (s *Store) SetOAuthState(ctx context.Context, sid, state string) error {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[sid]
		if !ok {
			return ErrNotFound
		}
		sess.OAuthState = state
		return nil
	}

	return s.update(ctx, sid, "SET oauth_state = :st", map[string]types.AttributeValue{
		":st": &types.AttributeValueMemberS{Value: state},
	})
}

// SetActiveNote updates the session's cached active-note id.
// An empty id clears the cache.
func (s *Store) SetActiveNote(ctx context.Context, sid, noteID string) error {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[sid]
		if !ok {
			return ErrNotFound
		}
		sess.ActiveNoteID = noteID
		return nil
	}

	return s.update(ctx, sid, "SET active_note_id = :nid", map[string]types.AttributeValue{
		":nid": &types.AttributeValueMemberS{Value: noteID},
	})
}

func (s *Store) update(ctx context.Context, sid, expr string, values map[string]types.AttributeValue) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: tableName(),
		Key: map[string]types.AttributeValue{
			"sid": &types.AttributeValueMemberS{Value: sid},
		},
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(sid)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}
