package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func noteFromBody(t *testing.T, resp events.APIGatewayProxyResponse) map[string]interface{} {
	t.Helper()
	note, ok := decodeBody(t, resp)["note"].(map[string]interface{})
	if !ok {
		t.Fatalf("Response has no note object: %s", resp.Body)
	}
	return note
}

func TestNoteHandler_GetCreatesEmptyNoteOnFirstRead(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "reader@example.com")

	resp, _ := env.noteH.GetNote(ctx, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	note := noteFromBody(t, resp)
	if note["title"] != "Untitled" || note["content"] != "" {
		t.Errorf("Expected fresh empty note, got %v", note)
	}
	if note["isActive"] != true {
		t.Errorf("Fresh note must be active: %v", note)
	}

	// A second read returns the same note, not another fresh one.
	resp2, _ := env.noteH.GetNote(ctx, req)
	if noteFromBody(t, resp2)["id"] != note["id"] {
		t.Error("Second read must return the same active note")
	}
}

func TestNoteHandler_SaveCreatesThenUpdates(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "writer@example.com")

	save := req
	save.Body = `{"title":"Gearbox","content":"ratio 4:1"}`
	resp, _ := env.noteH.SaveNote(ctx, save)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	first := noteFromBody(t, resp)

	save.Body = `{"title":"Gearbox","content":"ratio 5:1"}`
	resp, _ = env.noteH.SaveNote(ctx, save)
	second := noteFromBody(t, resp)
	if second["id"] != first["id"] {
		t.Errorf("Second save must update the same note: %v vs %v", first["id"], second["id"])
	}
	if second["content"] != "ratio 5:1" {
		t.Errorf("Content not updated: %v", second)
	}
}

func TestNoteHandler_SaveEmptyOntoExistingIsNoop(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "noop@example.com")

	save := req
	save.Body = `{"title":"Keep","content":"me"}`
	resp, _ := env.noteH.SaveNote(ctx, save)
	existing := noteFromBody(t, resp)

	save.Body = `{"title":"","content":""}`
	resp, _ = env.noteH.SaveNote(ctx, save)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["message"] != "Nothing to save" {
		t.Errorf("Expected no-op message, got %v", body["message"])
	}
	note := noteFromBody(t, resp)
	if note["id"] != existing["id"] || note["content"] != "me" {
		t.Errorf("No-op save must leave the note untouched: %v", note)
	}
}

func TestNoteHandler_NewNoteActivates(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "new@example.com")

	create := req
	create.Body = `{"title":"First"}`
	resp, _ := env.noteH.NewNote(ctx, create)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, resp.Body)
	}
	first := noteFromBody(t, resp)

	create.Body = `{"title":"Second"}`
	resp, _ = env.noteH.NewNote(ctx, create)
	second := noteFromBody(t, resp)
	if second["id"] == first["id"] {
		t.Fatal("NewNote must create a distinct note")
	}

	// The latest created note is now the active one.
	resp, _ = env.noteH.GetNote(ctx, req)
	if noteFromBody(t, resp)["id"] != second["id"] {
		t.Error("GetNote must resolve to the newest note")
	}
}

func TestNoteHandler_GetActivatesExplicitID(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "switch@example.com")

	create := req
	create.Body = `{"title":"A"}`
	respA, _ := env.noteH.NewNote(ctx, create)
	a := noteFromBody(t, respA)
	create.Body = `{"title":"B"}`
	env.noteH.NewNote(ctx, create)

	byID := req
	byID.QueryStringParameters = map[string]string{"id": a["id"].(string)}
	resp, _ := env.noteH.GetNote(ctx, byID)
	if noteFromBody(t, resp)["id"] != a["id"] {
		t.Fatal("Explicit id must win over the active pointer")
	}

	// The explicit read moved the pointer.
	resp, _ = env.noteH.GetNote(ctx, req)
	if noteFromBody(t, resp)["id"] != a["id"] {
		t.Error("Explicit read must activate the requested note")
	}
}

func TestNoteHandler_DeleteNotes(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "del@example.com")
	_, otherReq := env.login(t, "other@example.com")

	create := req
	create.Body = `{"title":"A"}`
	a := noteFromBody(t, mustResp(env.noteH.NewNote(ctx, create)))
	create.Body = `{"title":"B"}`
	b := noteFromBody(t, mustResp(env.noteH.NewNote(ctx, create)))

	otherCreate := otherReq
	otherCreate.Body = `{"title":"Theirs"}`
	theirs := noteFromBody(t, mustResp(env.noteH.NewNote(ctx, otherCreate)))

	del := req
	ids, _ := json.Marshal(map[string][]string{
		"noteIds": {a["id"].(string), b["id"].(string), theirs["id"].(string), "no-such"},
	})
	del.Body = string(ids)
	resp, _ := env.noteH.DeleteNotes(ctx, del)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	body := decodeBody(t, resp)
	if body["deletedCount"] != float64(2) {
		t.Errorf("Expected deletedCount 2, got %v", body["deletedCount"])
	}

	// The other user's note survived.
	resp, _ = env.noteH.GetNote(ctx, otherReq)
	if noteFromBody(t, resp)["id"] != theirs["id"] {
		t.Error("Bulk delete must not touch other users' notes")
	}

	// The deleter's active pointer was cleared; the next read starts fresh.
	resp, _ = env.noteH.GetNote(ctx, req)
	fresh := noteFromBody(t, resp)
	if fresh["id"] == a["id"] || fresh["id"] == b["id"] {
		t.Error("Read after deleting the active note must create a fresh one")
	}
}

func TestNoteHandler_DeleteNotesRequiresIDs(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "empty-del@example.com")

	for _, body := range []string{`{}`, `{"noteIds":[]}`, "not-json"} {
		del := req
		del.Body = body
		resp, _ := env.noteH.DeleteNotes(ctx, del)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for %q, got %d", body, resp.StatusCode)
		}
	}
}

func TestNoteHandler_ListNotes(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "list@example.com")

	create := req
	create.Body = `{"title":"One"}`
	env.noteH.NewNote(ctx, create)
	create.Body = `{"title":"Two"}`
	two := noteFromBody(t, mustResp(env.noteH.NewNote(ctx, create)))

	resp, _ := env.noteH.ListNotes(ctx, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	list, ok := decodeBody(t, resp)["notes"].([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("Expected 2 notes, got %s", resp.Body)
	}

	activeCount := 0
	for _, raw := range list {
		n := raw.(map[string]interface{})
		if n["isActive"] == true {
			activeCount++
			if n["id"] != two["id"] {
				t.Errorf("Wrong note marked active: %v", n)
			}
		}
	}
	if activeCount != 1 {
		t.Errorf("Exactly one note must be active, got %d", activeCount)
	}
}

func TestNoteHandler_RequiresSession(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	anon := events.APIGatewayProxyRequest{Body: `{"title":"x"}`}

	for name, call := range map[string]func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error){
		"GetNote":     env.noteH.GetNote,
		"SaveNote":    env.noteH.SaveNote,
		"NewNote":     env.noteH.NewNote,
		"DeleteNotes": env.noteH.DeleteNotes,
		"ListNotes":   env.noteH.ListNotes,
	} {
		resp, _ := call(ctx, anon)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without session expected 401, got %d", name, resp.StatusCode)
		}
	}
}

func mustResp(resp events.APIGatewayProxyResponse, _ error) events.APIGatewayProxyResponse {
	return resp
}
