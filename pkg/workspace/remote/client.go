// Package remote is the HTTP client for the authoritative workspace
// backend: the REST endpoints for every entity collection and the
// streaming exchange endpoint. All records crossing this boundary are
// wire-shaped; callers map them through the wire package.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/loomworks/loom/go/pkg/workspace/apperrors"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

// Client talks to the workspace backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokenFunc  func() string // Function to get current token
}

// NewClient creates a Client for the backend at baseURL. tokenFunc may be
// nil when the backend requires no authentication.
func NewClient(baseURL string, tokenFunc func() string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		tokenFunc:  tokenFunc,
	}
}

func (c *Client) addAuthHeaders(req *http.Request) {
	if c.tokenFunc != nil {
		if token := c.tokenFunc(); token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path, errCode string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return apperrors.New(errCode, "failed to create request", err)
	}
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.New(errCode, "failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.New(errCode,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.New(errCode, "failed to decode response", err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path, errCode string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperrors.New(errCode, "failed to marshal request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.New(errCode, "failed to create request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.New(errCode, "failed to send request", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return apperrors.New(errCode,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.New(errCode, "failed to decode response", err)
		}
	}
	return nil
}

// GetConfig fetches the remote workspace config.
func (c *Client) GetConfig(ctx context.Context) (*wire.ConfigRecord, error) {
	var rec wire.ConfigRecord
	if err := c.getJSON(ctx, "/api/config", apperrors.ErrCodeConfigFetch, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutConfig pushes the workspace config.
func (c *Client) PutConfig(ctx context.Context, rec *wire.ConfigRecord) error {
	return c.sendJSON(ctx, "PUT", "/api/config", apperrors.ErrCodeConfigPush, rec, nil)
}

// ListKnowledgeBases fetches all knowledge bases (without file lists).
func (c *Client) ListKnowledgeBases(ctx context.Context) ([]wire.KnowledgeBaseRecord, error) {
	var recs []wire.KnowledgeBaseRecord
	if err := c.getJSON(ctx, "/api/knowledge-bases", apperrors.ErrCodeKnowledgeFetch, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListFiles fetches the file list of one knowledge base.
func (c *Client) ListFiles(ctx context.Context, kbID string) ([]wire.FileRecord, error) {
	var recs []wire.FileRecord
	path := fmt.Sprintf("/api/knowledge-bases/%s/files", url.PathEscape(kbID))
	if err := c.getJSON(ctx, path, apperrors.ErrCodeKnowledgeFetch, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListAgents fetches all agents.
func (c *Client) ListAgents(ctx context.Context) ([]wire.AgentRecord, error) {
	var recs []wire.AgentRecord
	if err := c.getJSON(ctx, "/api/agents", apperrors.ErrCodeAgentFetch, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListSessions fetches all sessions (without message history).
func (c *Client) ListSessions(ctx context.Context) ([]wire.SessionRecord, error) {
	var recs []wire.SessionRecord
	if err := c.getJSON(ctx, "/api/sessions", apperrors.ErrCodeSessionGet, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// CreateSession creates a session remotely.
func (c *Client) CreateSession(ctx context.Context, rec wire.SessionRecord) (*wire.SessionRecord, error) {
	var created wire.SessionRecord
	if err := c.sendJSON(ctx, "POST", "/api/sessions", apperrors.ErrCodeSessionCreate, rec, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteSession deletes a session remotely.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/api/sessions/%s", url.PathEscape(sessionID))
	return c.sendJSON(ctx, "DELETE", path, apperrors.ErrCodeSessionDelete, nil, nil)
}

// ListMessages fetches the stored message history of one session.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]wire.MessageRecord, error) {
	var recs []wire.MessageRecord
	path := fmt.Sprintf("/api/sessions/%s/messages", url.PathEscape(sessionID))
	if err := c.getJSON(ctx, path, apperrors.ErrCodeSessionGet, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// AppendMessage stores one message on a session.
func (c *Client) AppendMessage(ctx context.Context, sessionID string, rec wire.MessageRecord) error {
	path := fmt.Sprintf("/api/sessions/%s/messages", url.PathEscape(sessionID))
	return c.sendJSON(ctx, "POST", path, apperrors.ErrCodeMessagePush, rec, nil)
}

// ListToolServers fetches the tool server list.
func (c *Client) ListToolServers(ctx context.Context) ([]wire.ToolServerRecord, error) {
	var recs []wire.ToolServerRecord
	if err := c.getJSON(ctx, "/api/tool-servers", apperrors.ErrCodeToolServer, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// CreateToolServer registers a tool server remotely.
func (c *Client) CreateToolServer(ctx context.Context, rec wire.ToolServerRecord) error {
	return c.sendJSON(ctx, "POST", "/api/tool-servers", apperrors.ErrCodeToolServer, rec, nil)
}

// DeleteToolServer removes a tool server remotely.
func (c *Client) DeleteToolServer(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/tool-servers/%s", url.PathEscape(id))
	return c.sendJSON(ctx, "DELETE", path, apperrors.ErrCodeToolServer, nil, nil)
}

// CreateFeedback records a message rating remotely.
func (c *Client) CreateFeedback(ctx context.Context, rec wire.FeedbackRecord) error {
	return c.sendJSON(ctx, "POST", "/api/feedback", apperrors.ErrCodeFeedbackPush, rec, nil)
}

// Stream opens one streaming exchange. The returned body yields
// newline-delimited JSON chunks; the caller owns closing it and cancels
// the exchange through ctx.
func (c *Client) Stream(ctx context.Context, req *wire.StreamRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStreamOpen, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat/stream", bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStreamOpen, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	c.addAuthHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeStreamOpen, "failed to open stream", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apperrors.New(apperrors.ErrCodeStreamOpen,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	return resp.Body, nil
}
