// Package notes implements the active-note selection logic: each user has at
// most one note marked active at any time, tracked by a single pointer on the
// user record so transitions are one atomic update rather than a two-step
// flag flip.
package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cadnote/backend/internal/model"
	"github.com/cadnote/backend/internal/store"
)

// DefaultTitle is used when a note is created without one.
const DefaultTitle = "Untitled"

// Selector resolves and maintains the per-user active note.
type Selector struct {
	users *store.UserStore
	notes *store.NoteStore
}

// NewSelector creates a new Selector.
func NewSelector(users *store.UserStore, notes *store.NoteStore) *Selector {
	return &Selector{users: users, notes: notes}
}

// Activate marks noteID as the user's active note after verifying ownership.
// Unowned and missing notes return store.ErrNotFound and leave the current
// active note untouched.
func (s *Selector) Activate(ctx context.Context, userID, noteID string) (*model.Note, error) {
	note, err := s.notes.Get(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetActiveNote(ctx, userID, note.ID); err != nil {
		return nil, fmt.Errorf("failed to activate note: %w", err)
	}
	note.IsActive = true
	return note, nil
}

// CreateAndActivate inserts a new note and points the active pointer at it.
// An empty title becomes DefaultTitle.
func (s *Selector) CreateAndActivate(ctx context.Context, userID, title, content string) (*model.Note, error) {
	if title == "" {
		title = DefaultTitle
	}
	note, err := s.notes.Create(ctx, userID, title, content)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetActiveNote(ctx, userID, note.ID); err != nil {
		return nil, fmt.Errorf("failed to activate new note: %w", err)
	}
	note.IsActive = true
	return note, nil
}

// DeactivateAll clears the user's active pointer. Invoked when the active
// note is deleted.
func (s *Selector) DeactivateAll(ctx context.Context, userID string) error {
	return s.users.SetActiveNote(ctx, userID, "")
}

// Active returns the user's currently active note, or store.ErrNotFound when
// no note is active. A dangling pointer (note deleted out of band) is cleared
// and reported as not found.
func (s *Selector) Active(ctx context.Context, userID string) (*model.Note, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ActiveNoteID == "" {
		return nil, store.ErrNotFound
	}

	note, err := s.notes.Get(ctx, userID, user.ActiveNoteID)
	if errors.Is(err, store.ErrNotFound) {
		if clearErr := s.users.SetActiveNote(ctx, userID, ""); clearErr != nil {
			return nil, clearErr
		}
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	note.IsActive = true
	return note, nil
}

// Resolve implements the read path. An explicit id is ownership-checked and
// activated; failure falls back to the current active note; no active note at
// all creates a fresh empty one.
func (s *Selector) Resolve(ctx context.Context, userID, explicitID string) (*model.Note, error) {
	if explicitID != "" {
		note, err := s.Activate(ctx, userID, explicitID)
		if err == nil {
			return note, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Fall through to the current active note.
	}

	note, err := s.Active(ctx, userID)
	if err == nil {
		return note, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return s.CreateAndActivate(ctx, userID, "", "")
}

// Save implements the write path. The target note id is taken from the
// session cache when still valid, else from the active pointer; with no
// target at all the content lands in a new active note. Saving empty title
// and empty content onto an existing target is a no-op (saved=false).
func (s *Selector) Save(ctx context.Context, userID, cachedID, title, content string) (note *model.Note, saved bool, err error) {
	targetID := ""
	if cachedID != "" {
		if cached, getErr := s.notes.Get(ctx, userID, cachedID); getErr == nil {
			targetID = cached.ID
		} else if !errors.Is(getErr, store.ErrNotFound) {
			return nil, false, getErr
		}
	}
	if targetID == "" {
		active, activeErr := s.Active(ctx, userID)
		if activeErr == nil {
			targetID = active.ID
		} else if !errors.Is(activeErr, store.ErrNotFound) {
			return nil, false, activeErr
		}
	}

	if targetID == "" {
		created, createErr := s.CreateAndActivate(ctx, userID, title, content)
		if createErr != nil {
			return nil, false, createErr
		}
		return created, true, nil
	}

	if title == "" && content == "" {
		existing, getErr := s.notes.Get(ctx, userID, targetID)
		if getErr != nil {
			return nil, false, getErr
		}
		existing.IsActive = true
		return existing, false, nil
	}

	if title == "" {
		title = DefaultTitle
	}
	updated, err := s.notes.Update(ctx, userID, targetID, title, content)
	if err != nil {
		return nil, false, err
	}
	updated.IsActive = true
	return updated, true, nil
}

// BulkDelete removes the requested notes that the user actually owns.
// Unowned ids are silently dropped. If the active note is among the victims,
// the active pointer is cleared before any row is deleted. Returns how many
// notes were deleted and whether the active pointer was cleared.
func (s *Selector) BulkDelete(ctx context.Context, userID string, noteIDs []string) (deleted int, activeCleared bool, err error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	if user.ActiveNoteID != "" {
		for _, id := range noteIDs {
			if id == user.ActiveNoteID {
				if err := s.DeactivateAll(ctx, userID); err != nil {
					return 0, false, err
				}
				activeCleared = true
				break
			}
		}
	}

	for _, id := range noteIDs {
		delErr := s.notes.Delete(ctx, userID, id)
		if delErr == nil {
			deleted++
			continue
		}
		if !errors.Is(delErr, store.ErrNotFound) {
			return deleted, activeCleared, delErr
		}
	}
	return deleted, activeCleared, nil
}

// MarkActive sets IsActive on the note matching the user's active pointer.
func (s *Selector) MarkActive(ctx context.Context, userID string, list []model.Note) ([]model.Note, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].IsActive = list[i].ID == user.ActiveNoteID
	}
	return list, nil
}

// List returns all the user's notes, most recent first, with IsActive set.
func (s *Selector) List(ctx context.Context, userID string) ([]model.Note, error) {
	list, err := s.notes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.MarkActive(ctx, userID, list)
}
