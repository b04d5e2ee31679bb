package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/cadnote/backend/internal/onshape"
)

func assemblyRequest(base events.APIGatewayProxyRequest) events.APIGatewayProxyRequest {
	req := base
	req.QueryStringParameters = map[string]string{
		"documentId":  "doc1",
		"workspaceId": "ws1",
		"elementId":   "el1",
	}
	return req
}

func TestProxyHandler_NoTokenRedirectsToOAuthStart(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	_, req := env.login(t, "untoken@example.com")

	proxy := NewProxyHandler(env.guard, onshape.NewClient(""), env.sessions, testJWTSecret)
	resp, _ := proxy.AssemblyData(ctx, assemblyRequest(req))
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d: %s", resp.StatusCode, resp.Body)
	}
	if resp.Headers["Location"] != "/oauthStart" {
		t.Errorf("Expected redirect to /oauthStart, got %q", resp.Headers["Location"])
	}
}

func TestProxyHandler_RefreshesExpiredTokenOnce(t *testing.T) {
	refreshes := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "refresh_token" {
			t.Errorf("Expected refresh_token grant, got %q", got)
		}
		if got := r.FormValue("refresh_token"); got != "old-rt" {
			t.Errorf("Expected refresh token 'old-rt', got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"refreshed-at","refresh_token":"rotated-rt","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer refreshed-at" {
			t.Errorf("Proxied call must carry the refreshed token, got %q", got)
		}
		fmt.Fprint(w, `{"rootAssembly":{}}`)
	}))
	defer apiSrv.Close()

	env := newTestEnv(t, tokenSrv.URL)
	ctx := context.Background()
	sess, req := env.login(t, "refresh@example.com")

	encrypted, _ := env.encryptor.Encrypt(ctx, "old-rt")
	expired := time.Now().Add(-1 * time.Minute).Unix()
	if err := env.sessions.SaveToken(ctx, sess.SID, "expired-at", encrypted, expired); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	proxy := NewProxyHandler(env.guard, onshape.NewClient(apiSrv.URL), env.sessions, testJWTSecret)
	resp, _ := proxy.AssemblyData(ctx, assemblyRequest(req))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	if refreshes != 1 {
		t.Errorf("Expected exactly one refresh, got %d", refreshes)
	}

	// The rotated pair was persisted on the session.
	stored, err := env.sessions.Get(ctx, sess.SID)
	if err != nil {
		t.Fatalf("Get session failed: %v", err)
	}
	if stored.AccessToken != "refreshed-at" {
		t.Errorf("Refreshed access token not persisted: %q", stored.AccessToken)
	}
	if stored.EncryptedRefreshToken != "mock:rotated-rt" {
		t.Errorf("Rotated refresh token not persisted encrypted: %q", stored.EncryptedRefreshToken)
	}

	// A second call finds the fresh token and skips the token endpoint.
	if _, err := proxy.AssemblyData(ctx, assemblyRequest(req)); err != nil {
		t.Fatalf("Second call failed: %v", err)
	}
	if refreshes != 1 {
		t.Errorf("Fresh token must not be refreshed again, got %d refreshes", refreshes)
	}
}

func TestProxyHandler_FailedRefreshRedirects(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer tokenSrv.Close()

	env := newTestEnv(t, tokenSrv.URL)
	ctx := context.Background()
	sess, req := env.login(t, "deadtoken@example.com")

	encrypted, _ := env.encryptor.Encrypt(ctx, "revoked-rt")
	expired := time.Now().Add(-1 * time.Minute).Unix()
	env.sessions.SaveToken(ctx, sess.SID, "expired-at", encrypted, expired)

	proxy := NewProxyHandler(env.guard, onshape.NewClient(""), env.sessions, testJWTSecret)
	resp, _ := proxy.GltfModel(ctx, assemblyRequest(req))
	if resp.StatusCode != http.StatusFound || resp.Headers["Location"] != "/oauthStart" {
		t.Errorf("Failed refresh expected 302 to /oauthStart, got %d %q", resp.StatusCode, resp.Headers["Location"])
	}
}

func TestProxyHandler_RequiresAssemblyParams(t *testing.T) {
	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	sess, req := env.login(t, "params@example.com")

	encrypted, _ := env.encryptor.Encrypt(ctx, "rt")
	env.sessions.SaveToken(ctx, sess.SID, "at", encrypted, time.Now().Add(time.Hour).Unix())

	proxy := NewProxyHandler(env.guard, onshape.NewClient(""), env.sessions, testJWTSecret)

	partial := req
	partial.QueryStringParameters = map[string]string{"documentId": "doc1"}
	for name, call := range map[string]func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error){
		"AssemblyData":   proxy.AssemblyData,
		"GltfModel":      proxy.GltfModel,
		"ExplodedConfig": proxy.ExplodedConfig,
		"Mates":          proxy.Mates,
	} {
		resp, _ := call(ctx, partial)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s with partial params expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestProxyHandler_PassesThroughUpstreamErrors(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"forbidden"}`)
	}))
	defer apiSrv.Close()

	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	sess, req := env.login(t, "upstream@example.com")

	encrypted, _ := env.encryptor.Encrypt(ctx, "rt")
	env.sessions.SaveToken(ctx, sess.SID, "at", encrypted, time.Now().Add(time.Hour).Unix())

	proxy := NewProxyHandler(env.guard, onshape.NewClient(apiSrv.URL), env.sessions, testJWTSecret)
	resp, _ := proxy.Mates(ctx, assemblyRequest(req))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected upstream 403 passed through, got %d", resp.StatusCode)
	}
	if resp.Body != `{"message":"forbidden"}` {
		t.Errorf("Expected upstream body passed through, got %q", resp.Body)
	}
}

func TestProxyHandler_ListDocumentsForwardsQuery(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "gearbox" {
			t.Errorf("Expected q=gearbox, got %q", got)
		}
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer apiSrv.Close()

	env := newTestEnv(t, "http://token.example/token")
	ctx := context.Background()
	sess, req := env.login(t, "docs@example.com")

	encrypted, _ := env.encryptor.Encrypt(ctx, "rt")
	env.sessions.SaveToken(ctx, sess.SID, "at", encrypted, time.Now().Add(time.Hour).Unix())

	proxy := NewProxyHandler(env.guard, onshape.NewClient(apiSrv.URL), env.sessions, testJWTSecret)
	list := req
	list.QueryStringParameters = map[string]string{"q": "gearbox"}
	resp, _ := proxy.ListDocuments(ctx, list)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
}
