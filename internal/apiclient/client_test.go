package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/things", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"corolla"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	err := New(srv.URL+"/", "tok").Get(context.Background(), "/things", &out)
	require.NoError(t, err)
	assert.Equal(t, "corolla", out.Name)
}

func TestClient_PatchSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body["read"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New(srv.URL, "tok").Patch(context.Background(), "/n/1", map[string]bool{"read": true}, &struct{}{})
	require.NoError(t, err)
}

func TestClient_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "tok").Get(context.Background(), "/x", &map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(srv.URL, "bad").Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"notification not found"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "tok").Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "notification not found")
}

func TestRetryAfterDuration_ExponentialFallback(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, "1s", retryAfterDuration(resp, 0).String())
	assert.Equal(t, "4s", retryAfterDuration(resp, 2).String())
	assert.Equal(t, "30s", retryAfterDuration(resp, 10).String())
}

func TestRetryAfterDuration_CapsServerHint(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"120"}}}
	assert.Equal(t, maxRetryWait, retryAfterDuration(resp, 0))

	resp.Header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, retryAfterDuration(resp, 0))
}

func TestClient_RateLimitWaitStopsOnDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := New(srv.URL, "tok").Get(ctx, "/x", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
