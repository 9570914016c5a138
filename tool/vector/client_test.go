package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameiq/queryflow/core"
)

func TestClient_SearchPreservesRankOrder(t *testing.T) {
	var gotReq searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(searchResponse{Results: []searchHit{
			{ID: "603", Title: "The Matrix", MediaType: "movie", Year: "1999", Score: 0.93, Snippet: "a hacker discovers reality is simulated"},
			{ID: "27205", Title: "Inception", MediaType: "movie", Year: "2010", Score: 0.81, Snippet: "dreams within dreams"},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	items, err := c.Search(context.Background(), "mind-bending sci-fi", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "mind-bending sci-fi", gotReq.Query)
	assert.Equal(t, 5, gotReq.Limit)
	assert.Equal(t, "603", items[0].ID)
	assert.Equal(t, "27205", items[1].ID)
	assert.Greater(t, items[0].Score, items[1].Score)
	assert.Equal(t, "a hacker discovers reality is simulated", items[0].Snippet)
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), "anything", 3)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, core.KindUpstreamUnavailable, core.ClassifyError(err))
}

func TestClient_BadRequestIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), "", 3)
	require.Error(t, err)
	assert.False(t, core.IsTransient(err))
}

func TestClient_TimeoutIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	_, err := c.Search(context.Background(), "slow", 3)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, core.KindUpstreamTimeout, core.ClassifyError(err))
}

func TestClient_ConnectionRefusedIsTransient(t *testing.T) {
	// Grab an address nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Search(context.Background(), "anything", 3)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}
