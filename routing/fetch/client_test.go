package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/EmediongPeter/tiwi-routing-core/routing/fetch"
)

func fastConfig() fetch.FailoverConfig {
	return fetch.FailoverConfig{
		MaxRetries:          1,
		RetryDelay:          time.Millisecond,
		HealthCheckInterval: time.Hour,
		Timeout:             2 * time.Second,
	}
}

func TestGetJSON(t *testing.T) {
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	c, err := fetch.NewClient(srv.URL,
		fetch.WithHeader("X-Api-Key", "secret"),
		fetch.WithFailoverConfig(fastConfig()))
	assert.NoError(t, err)
	defer c.Close()

	var out struct {
		Value int `json:"value"`
	}
	assert.NoError(t, c.GetJSON(context.Background(), "/quote", &out))
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, "secret", gotHeader.Load().(string))
}

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"echo": true}`))
	}))
	defer srv.Close()

	c, err := fetch.NewClient(srv.URL, fetch.WithFailoverConfig(fastConfig()))
	assert.NoError(t, err)
	defer c.Close()

	var out struct {
		Echo bool `json:"echo"`
	}
	in := map[string]string{"hello": "world"}
	assert.NoError(t, c.PostJSON(context.Background(), "/v1/route", in, &out))
	assert.True(t, out.Echo)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, err := fetch.NewClient(srv.URL, fetch.WithFailoverConfig(fastConfig()))
	assert.NoError(t, err)
	defer c.Close()

	var out map[string]any
	err = c.GetJSON(context.Background(), "/quote", &out)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var se *fetch.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := fetch.NewClient(srv.URL, fetch.WithFailoverConfig(fastConfig()))
	assert.NoError(t, err)
	defer c.Close()

	var out map[string]any
	assert.NoError(t, c.GetJSON(context.Background(), "/quote", &out))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFailoverToBackup(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"from": "backup"}`))
	}))
	defer backup.Close()

	c, err := fetch.NewClient(primary.URL,
		fetch.WithBackups(backup.URL),
		fetch.WithFailoverConfig(fastConfig()))
	assert.NoError(t, err)
	defer c.Close()

	var out struct {
		From string `json:"from"`
	}
	assert.NoError(t, c.GetJSON(context.Background(), "/quote", &out))
	assert.Equal(t, "backup", out.From)
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RetryDelay = 200 * time.Millisecond
	cfg.MaxRetries = 5
	c, err := fetch.NewClient(srv.URL, fetch.WithFailoverConfig(cfg))
	assert.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out map[string]any
	err = c.GetJSON(ctx, "/quote", &out)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := fetch.NewClient("://nope")
	assert.Error(t, err)
}
