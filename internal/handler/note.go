package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/cadnote/backend/internal/model"
	"github.com/cadnote/backend/internal/notes"
	"github.com/cadnote/backend/internal/session"
)

// NoteHandler handles note CRUD through the active-note selector.
type NoteHandler struct {
	selector  *notes.Selector
	sessions  *session.Store
	jwtSecret string
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(selector *notes.Selector, sessions *session.Store, jwtSecret string) *NoteHandler {
	return &NoteHandler{selector: selector, sessions: sessions, jwtSecret: jwtSecret}
}

type notePayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// cacheActive keeps the session's active-note cache in sync, best effort.
func (h *NoteHandler) cacheActive(ctx context.Context, sess *model.Session, noteID string) {
	if sess.ActiveNoteID == noteID {
		return
	}
	if err := h.sessions.SetActiveNote(ctx, sess.SID, noteID); err != nil {
		fmt.Printf("SetActiveNote cache error: %v\n", err)
	}
	sess.ActiveNoteID = noteID
}

// GetNote returns the requested note (activating it) or the current active
// note, creating a fresh empty one when the user has none.
func (h *NoteHandler) GetNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	note, err := h.selector.Resolve(ctx, sess.UserID, req.QueryStringParameters["id"])
	if err != nil {
		fmt.Printf("Resolve note error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Failed to load note"), nil
	}
	h.cacheActive(ctx, sess, note.ID)

	return jsonResponse(http.StatusOK, map[string]interface{}{"note": note}), nil
}

// SaveNote writes content into the active note, creating one when none
// exists. An empty title and content onto an existing note is a no-op.
func (h *NoteHandler) SaveNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	var payload notePayload
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	note, saved, err := h.selector.Save(ctx, sess.UserID, sess.ActiveNoteID, payload.Title, payload.Content)
	if err != nil {
		fmt.Printf("Save note error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Failed to save note"), nil
	}
	h.cacheActive(ctx, sess, note.ID)

	message := "Note saved"
	if !saved {
		message = "Nothing to save"
	}
	return jsonResponse(http.StatusOK, map[string]interface{}{
		"message": message,
		"note":    note,
	}), nil
}

// NewNote creates a fresh note and makes it active.
func (h *NoteHandler) NewNote(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	var payload notePayload
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
			return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
		}
	}

	note, err := h.selector.CreateAndActivate(ctx, sess.UserID, payload.Title, payload.Content)
	if err != nil {
		fmt.Printf("CreateAndActivate error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Failed to create note"), nil
	}
	h.cacheActive(ctx, sess, note.ID)

	return jsonResponse(http.StatusCreated, map[string]interface{}{
		"message": "Note created",
		"note":    note,
	}), nil
}

// DeleteNotes bulk-deletes the requested notes the caller owns. Unowned ids
// are dropped silently; deletedCount tells the caller what actually happened.
func (h *NoteHandler) DeleteNotes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	var payload struct {
		NoteIDs []string `json:"noteIds"`
	}
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if len(payload.NoteIDs) == 0 {
		return errorResponse(http.StatusBadRequest, "noteIds is required"), nil
	}

	deleted, activeCleared, err := h.selector.BulkDelete(ctx, sess.UserID, payload.NoteIDs)
	if err != nil {
		fmt.Printf("BulkDelete error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Failed to delete notes"), nil
	}
	if activeCleared {
		h.cacheActive(ctx, sess, "")
	}

	return jsonResponse(http.StatusOK, map[string]interface{}{
		"message":      fmt.Sprintf("Deleted %d note(s)", deleted),
		"deletedCount": deleted,
	}), nil
}

// ListNotes returns all the caller's notes, most recent first.
func (h *NoteHandler) ListNotes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	list, err := h.selector.List(ctx, sess.UserID)
	if err != nil {
		fmt.Printf("List notes error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Failed to list notes"), nil
	}
	if list == nil {
		list = []model.Note{}
	}

	return jsonResponse(http.StatusOK, map[string]interface{}{"notes": list}), nil
}
