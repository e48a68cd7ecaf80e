package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/go/pkg/workspace/apperrors"
	"github.com/loomworks/loom/go/pkg/workspace/wire"
)

func TestClient_SendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "tok-123" })
	_, err := c.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClient_NoAuthHeaderWhenSignedOut(t *testing.T) {
	var sawHeader bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header["Authorization"]
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer server.Close()

	c := NewClient(server.URL, func() string { return "" })
	_, err := c.GetConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, sawHeader)
}

func TestClient_ErrorStatusCarriesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	_, err := c.ListAgents(context.Background())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeAgentFetch, appErr.Code)
}

func TestClient_CreateSessionRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sessions", r.URL.Path)
		var rec wire.SessionRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rec) //nolint:errcheck
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	title := "My chat"
	created, err := c.CreateSession(context.Background(), wire.SessionRecord{ID: "s1", Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "s1", created.ID)
	require.NotNil(t, created.Title)
	assert.Equal(t, "My chat", *created.Title)
}

func TestClient_DeleteEscapesPathSegment(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	require.NoError(t, c.DeleteSession(context.Background(), "a/b"))
	assert.Equal(t, "/api/sessions/a%2Fb", gotPath)
}

func TestClient_StreamYieldsNDJSONLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Accept"))
		var req wire.StreamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Query)

		w.Write([]byte(`{"type":"content","text":"a"}` + "\n")) //nolint:errcheck
		w.Write([]byte(`{"type":"content","text":"b"}` + "\n")) //nolint:errcheck
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	body, err := c.Stream(context.Background(), &wire.StreamRequest{Query: "hello"})
	require.NoError(t, err)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Len(t, lines, 2)
}

func TestClient_StreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	_, err := c.Stream(context.Background(), &wire.StreamRequest{Query: "q"})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeStreamOpen, appErr.Code)
}
