package store

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

func usersTableName() *string {
	name := os.Getenv("USERS_TABLE")
	if name == "" {
		name = "Users"
	}
	return aws.String(name)
}

// UserStore persists user accounts and each user's active-note pointer.
// If client is nil, it uses an in-memory map (for tests and DEV_MODE).
type UserStore struct {
	client *dynamodb.Client

	// Fallback for tests
	users map[string]*model.User // keyed by user ID
	mu    sync.RWMutex
}

// NewUserStore creates a new UserStore.
func NewUserStore(client *dynamodb.Client) *UserStore {
	return &UserStore{
		client: client,
		users:  make(map[string]*model.User),
	}
}

// Create inserts a new user with the given email and bcrypt password hash.
// Returns ErrEmailTaken if the email is already registered.
func (s *UserStore) Create(ctx context.Context, email, passwordHash string) (*model.User, error) {
	if _, err := s.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}

	if s.client == nil {
		s.mu.Lock()
		s.users[user.ID] = user
		s.mu.Unlock()
		return user, nil
	}

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           usersTableName(),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by ID. Returns ErrNotFound if missing.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*model.User, error) {
	if s.client == nil {
		s.mu.RLock()
		u, ok := s.users[userID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrNotFound
		}
		copied := *u
		return &copied, nil
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: usersTableName(),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var user model.User
	if err := attributevalue.UnmarshalMap(out.Item, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email. Returns ErrNotFound if missing.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.client == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, u := range s.users {
			if u.Email == email {
				copied := *u
				return &copied, nil
			}
		}
		return nil, ErrNotFound
	}

	// Scan and filter (inefficient but fine at this scale; login only)
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        usersTableName(),
		FilterExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}

	var user model.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// SetActiveNote moves the user's active-note pointer in a single update.
// An empty noteID clears the pointer. Returns ErrNotFound for unknown users.
func (s *UserStore) SetActiveNote(ctx context.Context, userID, noteID string) error {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		u, ok := s.users[userID]
		if !ok {
			return ErrNotFound
		}
		u.ActiveNoteID = noteID
		return nil
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: usersTableName(),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("SET active_note_id = :nid"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":nid": &types.AttributeValueMemberS{Value: noteID},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to set active note: %w", err)
	}
	return nil
}
