package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBatchChunksRequests(t *testing.T) {
	var requests [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req.Inputs)

		resp := embedResponse{Embeddings: make([][]float32, len(req.Inputs))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{1, 2, 3}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", 3, 2, 5*time.Second)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, requests)
}

func TestEmbedBatchAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0, 0}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sekret", "m", 2, 16, 5*time.Second)
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "m", 384, 16, 5*time.Second)
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestEmbedBatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "m", 2, 16, 5*time.Second)
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := NewClient("http://unused", "", "m", 2, 16, time.Second)
	vecs, err := c.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}
