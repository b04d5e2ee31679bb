package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/cadnote/backend/internal/onshape"
	"github.com/cadnote/backend/internal/session"
)

// ProxyHandler forwards CAD data requests to Onshape with a fresh bearer
// token attached.
type ProxyHandler struct {
	guard     *TokenGuard
	onshape   *onshape.Client
	sessions  *session.Store
	jwtSecret string
}

// NewProxyHandler creates a new ProxyHandler.
func NewProxyHandler(guard *TokenGuard, client *onshape.Client, sessions *session.Store, jwtSecret string) *ProxyHandler {
	return &ProxyHandler{guard: guard, onshape: client, sessions: sessions, jwtSecret: jwtSecret}
}

// withToken resolves the session and a usable access token, then hands off to
// fn. A missing or unrefreshable token redirects to /oauthStart so the
// browser can re-run the authorization flow.
func (h *ProxyHandler) withToken(ctx context.Context, req events.APIGatewayProxyRequest, fn func(token string) (events.APIGatewayProxyResponse, error)) (events.APIGatewayProxyResponse, error) {
	sess, err := GetSession(ctx, req, h.jwtSecret, h.sessions)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, "Unauthorized"), nil
	}

	token, err := h.guard.Ensure(ctx, sess)
	if err != nil {
		fmt.Printf("Token guard error: %v\n", err)
		return redirectResponse("/oauthStart"), nil
	}

	return fn(token)
}

// upstreamResponse passes the Onshape status and body through verbatim.
func upstreamResponse(res *onshape.Result, err error) (events.APIGatewayProxyResponse, error) {
	if err != nil {
		fmt.Printf("Onshape request error: %v\n", err)
		return errorResponse(http.StatusInternalServerError, "Onshape request failed"), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: res.StatusCode,
		Body:       string(res.Body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

func assemblyParams(req events.APIGatewayProxyRequest) (did, wid, eid string, ok bool) {
	q := req.QueryStringParameters
	did, wid, eid = q["documentId"], q["workspaceId"], q["elementId"]
	ok = did != "" && wid != "" && eid != ""
	return
}

// AssemblyData proxies the assembly definition for an element.
func (h *ProxyHandler) AssemblyData(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withToken(ctx, req, func(token string) (events.APIGatewayProxyResponse, error) {
		did, wid, eid, ok := assemblyParams(req)
		if !ok {
			return errorResponse(http.StatusBadRequest, "documentId, workspaceId and elementId are required"), nil
		}
		return upstreamResponse(h.onshape.AssemblyDefinition(ctx, token, did, wid, eid))
	})
}

// GltfModel proxies the glTF rendition of an assembly.
func (h *ProxyHandler) GltfModel(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withToken(ctx, req, func(token string) (events.APIGatewayProxyResponse, error) {
		did, wid, eid, ok := assemblyParams(req)
		if !ok {
			return errorResponse(http.StatusBadRequest, "documentId, workspaceId and elementId are required"), nil
		}
		return upstreamResponse(h.onshape.GltfModel(ctx, token, did, wid, eid))
	})
}

// ExplodedConfig proxies the exploded view configuration of an assembly.
func (h *ProxyHandler) ExplodedConfig(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withToken(ctx, req, func(token string) (events.APIGatewayProxyResponse, error) {
		did, wid, eid, ok := assemblyParams(req)
		if !ok {
			return errorResponse(http.StatusBadRequest, "documentId, workspaceId and elementId are required"), nil
		}
		return upstreamResponse(h.onshape.ExplodedConfig(ctx, token, did, wid, eid))
	})
}

// Mates proxies the mate features of an assembly.
func (h *ProxyHandler) Mates(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withToken(ctx, req, func(token string) (events.APIGatewayProxyResponse, error) {
		did, wid, eid, ok := assemblyParams(req)
		if !ok {
			return errorResponse(http.StatusBadRequest, "documentId, workspaceId and elementId are required"), nil
		}
		return upstreamResponse(h.onshape.Mates(ctx, token, did, wid, eid))
	})
}

// ListDocuments proxies the caller's Onshape document list, optionally
// filtered by a search query.
func (h *ProxyHandler) ListDocuments(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withToken(ctx, req, func(token string) (events.APIGatewayProxyResponse, error) {
		return upstreamResponse(h.onshape.Documents(ctx, token, req.QueryStringParameters["q"]))
	})
}
