package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, batch int) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, APIKey: "test-key", BatchSize: batch, MaxRetries: 2})
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("DOCRAG_TEST_MISSING_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "DOCRAG_TEST_MISSING_KEY"})
	assert.Error(t, err)
}

func TestNewClient_KeyFromEnv(t *testing.T) {
	t.Setenv("DOCRAG_TEST_KEY", "secret")
	c, err := NewClient(Config{APIKeyEnv: "DOCRAG_TEST_KEY"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, ProviderName, c.Name())
}

func TestEmbed_BatchesAndOrdersByIndex(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)

		type item struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		// reply in reverse order; the client must reorder by index
		data := make([]item, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float64{float64(len(body.Input[i]))}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	vecs, err := c.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{1}, {2}, {3}}, vecs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestEmbed_RetriesOnTooManyRequests(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.5],"index":0}]}`))
	}))
	defer srv.Close()

	vecs, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.5}}, vecs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestEmbed_GivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "giving up after 3 attempts")
}

func TestEmbed_ClientErrorIsNotRetried(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "bad model")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["prompt"])
		_, _ = w.Write([]byte(`{"embedding":[1,2,3]}`))
	}))
	defer srv.Close()

	vecs, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}}, vecs)
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestRetryDelay_Capped(t *testing.T) {
	assert.Equal(t, retryDelay(0)*2, retryDelay(1))
	assert.Equal(t, retryDelay(10), retryDelay(20))
}
