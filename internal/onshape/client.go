// Package onshape is a thin read-only client for the Onshape REST API.
// Responses are passed back verbatim (status and body) so handlers can proxy
// them to the frontend without reshaping.
package onshape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaseURL is the production Onshape API root.
const DefaultBaseURL = "https://cad.onshape.com/api"

// Result carries the upstream status code and raw body for passthrough.
type Result struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client calls Onshape resource endpoints with a caller-supplied bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Client. An empty baseURL means production Onshape.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// AssemblyDefinition fetches the assembly definition for an element.
func (c *Client) AssemblyDefinition(ctx context.Context, accessToken, documentID, workspaceID, elementID string) (*Result, error) {
	path := fmt.Sprintf("/assemblies/d/%s/w/%s/e/%s", documentID, workspaceID, elementID)
	return c.get(ctx, accessToken, path, nil)
}

// GltfModel fetches the glTF export of an assembly element.
func (c *Client) GltfModel(ctx context.Context, accessToken, documentID, workspaceID, elementID string) (*Result, error) {
	path := fmt.Sprintf("/assemblies/d/%s/w/%s/e/%s/gltf", documentID, workspaceID, elementID)
	return c.get(ctx, accessToken, path, nil)
}

// ExplodedConfig fetches the exploded-view configuration of an assembly.
func (c *Client) ExplodedConfig(ctx context.Context, accessToken, documentID, workspaceID, elementID string) (*Result, error) {
	path := fmt.Sprintf("/assemblies/d/%s/w/%s/e/%s/explodedviews", documentID, workspaceID, elementID)
	return c.get(ctx, accessToken, path, nil)
}

// Mates fetches the mate list of an assembly element.
func (c *Client) Mates(ctx context.Context, accessToken, documentID, workspaceID, elementID string) (*Result, error) {
	path := fmt.Sprintf("/assemblies/d/%s/w/%s/e/%s/mates", documentID, workspaceID, elementID)
	return c.get(ctx, accessToken, path, nil)
}

// Documents lists the user's documents, optionally filtered by q.
func (c *Client) Documents(ctx context.Context, accessToken, q string) (*Result, error) {
	var query url.Values
	if q != "" {
		query = url.Values{"q": {q}}
	}
	return c.get(ctx, accessToken, "/documents", query)
}

func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values) (*Result, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onshape request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read onshape response: %w", err)
	}

	return &Result{StatusCode: resp.StatusCode, Body: body}, nil
}
