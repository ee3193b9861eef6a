package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/menusync/internal/model"
	"github.com/ashita-ai/menusync/internal/testutil"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (failingLimiter) Close() error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func do(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/order", nil)
	req.RemoteAddr = remoteAddr
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_RejectsAfterBurst(t *testing.T) {
	limiter := NewMemoryLimiter(0.001, 2)
	defer func() { _ = limiter.Close() }()
	reqID := func(*http.Request) string { return "req-1" }
	h := Middleware(limiter, IPKeyFunc, reqID, testutil.TestLogger())(okHandler())

	assert.Equal(t, http.StatusOK, do(h, "192.168.1.1:12345").Code)
	assert.Equal(t, http.StatusOK, do(h, "192.168.1.1:23456").Code, "same IP, different port")

	rec := do(h, "192.168.1.1:12345")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-1", body.Meta.RequestID)

	assert.Equal(t, http.StatusOK, do(h, "10.0.0.1:1000").Code, "other IPs have their own bucket")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	h := Middleware(failingLimiter{}, IPKeyFunc, nil, testutil.TestLogger())(okHandler())
	assert.Equal(t, http.StatusOK, do(h, "10.0.0.1:1000").Code)
}

func TestMiddleware_NilLimiterAndEmptyKey(t *testing.T) {
	h := Middleware(nil, IPKeyFunc, nil, testutil.TestLogger())(okHandler())
	assert.Equal(t, http.StatusOK, do(h, "10.0.0.1:1000").Code)

	limiter := NewMemoryLimiter(0.001, 1)
	defer func() { _ = limiter.Close() }()
	skip := func(*http.Request) string { return "" }
	h = Middleware(limiter, skip, nil, testutil.TestLogger())(okHandler())
	for range 3 {
		assert.Equal(t, http.StatusOK, do(h, "10.0.0.1:1000").Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"192.168.1.1:8080", "ip:192.168.1.1"},
		{"[::1]:8080", "ip:::1"},
		{"unix-socket", "ip:unix-socket"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.addr
			assert.Equal(t, tt.want, IPKeyFunc(r))
		})
	}
}
