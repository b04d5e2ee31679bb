package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/cadnote/backend/internal/model"
)

func notesTableName() *string {
	name := os.Getenv("NOTES_TABLE")
	if name == "" {
		name = "Notes"
	}
	return aws.String(name)
}

// NoteStore persists notes. Ownership is enforced with condition
// expressions so an unowned ID behaves exactly like a missing one.
// If client is nil, it uses an in-memory map (for tests and DEV_MODE).
type NoteStore struct {
	client *dynamodb.Client

	// Fallback for tests
	notes map[string]*model.Note
	mu    sync.RWMutex
}

// NewNoteStore creates a new NoteStore.
func NewNoteStore(client *dynamodb.Client) *NoteStore {
	return &NoteStore{
		client: client,
		notes:  make(map[string]*model.Note),
	}
}

// Create inserts a new note owned by userID.
func (s *NoteStore) Create(ctx context.Context, userID, title, content string) (*model.Note, error) {
	now := time.Now()
	note := &model.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.client == nil {
		s.mu.Lock()
		s.notes[note.ID] = note
		s.mu.Unlock()
		copied := *note
		return &copied, nil
	}

	item, err := marshalNote(note)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           notesTableName(),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}

	return note, nil
}

// Get retrieves a note by ID, verifying that userID owns it.
// Missing and unowned notes are both ErrNotFound.
func (s *NoteStore) Get(ctx context.Context, userID, noteID string) (*model.Note, error) {
	if s.client == nil {
		s.mu.RLock()
		n, ok := s.notes[noteID]
		s.mu.RUnlock()
		if !ok || n.UserID != userID {
			return nil, ErrNotFound
		}
		copied := *n
		return &copied, nil
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: notesTableName(),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: noteID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var note model.Note
	if err := attributevalue.UnmarshalMap(out.Item, &note); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note: %w", err)
	}
	if note.UserID != userID {
		return nil, ErrNotFound
	}
	return &note, nil
}

// ListByUser returns all notes owned by userID, most recently updated first.
func (s *NoteStore) ListByUser(ctx context.Context, userID string) ([]model.Note, error) {
	var notes []model.Note

	if s.client == nil {
		s.mu.RLock()
		for _, n := range s.notes {
			if n.UserID == userID {
				notes = append(notes, *n)
			}
		}
		s.mu.RUnlock()
	} else {
		// Scan and filter (inefficient but fine at this scale)
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        notesTableName(),
			FilterExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan notes: %w", err)
		}
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
	}

	sort.Slice(notes, func(i, j int) bool {
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	return notes, nil
}

// Update overwrites title and content of a note owned by userID and bumps
// updated_at. The ownership check rides on the condition expression, so a
// concurrent delete or an unowned ID surfaces as ErrNotFound.
func (s *NoteStore) Update(ctx context.Context, userID, noteID, title, content string) (*model.Note, error) {
	now := time.Now()

	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		n, ok := s.notes[noteID]
		if !ok || n.UserID != userID {
			return nil, ErrNotFound
		}
		n.Title = title
		n.Content = content
		n.UpdatedAt = now
		copied := *n
		return &copied, nil
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: notesTableName(),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: noteID},
		},
		UpdateExpression:    aws.String("SET title = :title, content = :content, updated_at = :now"),
		ConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":title":   &types.AttributeValueMemberS{Value: title},
			":content": &types.AttributeValueMemberS{Value: content},
			":now":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":uid":     &types.AttributeValueMemberS{Value: userID},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update note: %w", err)
	}

	var note model.Note
	if err := attributevalue.UnmarshalMap(out.Attributes, &note); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note: %w", err)
	}
	return &note, nil
}

// Delete removes a note if userID owns it. Unowned and missing notes
// return ErrNotFound without touching anything.
func (s *NoteStore) Delete(ctx context.Context, userID, noteID string) error {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		n, ok := s.notes[noteID]
		if !ok || n.UserID != userID {
			return ErrNotFound
		}
		delete(s.notes, noteID)
		return nil
	}

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: notesTableName(),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: noteID},
		},
		ConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func marshalNote(note *model.Note) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(note)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal note: %w", err)
	}
	return item, nil
}
