// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_DisabledAllowsAll(t *testing.T) {
	l := New(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("client-1"))
	}
	assert.False(t, l.IsEnabled())
}

func TestLimiter_NilConfigDisables(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	assert.False(t, l.IsEnabled())
	assert.True(t, l.Allow("anyone"))
}

func TestLimiter_EnforcesBurst(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             3,
	})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client-1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("client-1"), "burst exhausted")

	// Separate clients have separate buckets.
	assert.True(t, l.Allow("client-2"))
}

func TestLimiter_BurstDefaultsToRate(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 5,
	})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("client-1"))
	}
	assert.False(t, l.Allow("client-1"))
}

func TestLimiter_Cleanup(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		MaxIdle:           10 * time.Millisecond,
	})
	defer l.Stop()

	l.Allow("client-1")
	l.Allow("client-2")
	assert.Equal(t, 2, l.ActiveClients())

	time.Sleep(25 * time.Millisecond)
	l.cleanup()
	assert.Equal(t, 0, l.ActiveClients())
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	l := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             2,
	})
	defer l.Stop()

	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login/begin", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do())
	require.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	assert.Equal(t, "203.0.113.7:1234", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", "192.0.2.1, 198.51.100.4")
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "192.0.2.9")
	assert.Equal(t, "192.0.2.9", clientIP(req))
}
