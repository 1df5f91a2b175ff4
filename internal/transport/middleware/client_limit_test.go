// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	h := clientRateLimitWith(newClientLimiter(2, now), logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/errors", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allows up to the limit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if rec := send("10.0.0.1:5000"); rec.Code != http.StatusAccepted {
				t.Fatalf("request %d: expected status %d got %d", i+1, http.StatusAccepted, rec.Code)
			}
		}
	})

	t.Run("blocks over the limit with retry-after", func(t *testing.T) {
		rec := send("10.0.0.1:5001")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
		}
		if got := rec.Header().Get(headerRetryAfter); got != "30" {
			t.Fatalf("expected Retry-After 30 got %q", got)
		}
		if got := rec.Header().Get(headerRateLimitLimit); got != "2" {
			t.Fatalf("expected limit header 2 got %q", got)
		}
	})

	t.Run("other clients are unaffected", func(t *testing.T) {
		if rec := send("10.0.0.2:5000"); rec.Code != http.StatusAccepted {
			t.Fatalf("expected status %d got %d", http.StatusAccepted, rec.Code)
		}
	})

	t.Run("refills over time", func(t *testing.T) {
		clock = clock.Add(time.Minute)
		if rec := send("10.0.0.1:5002"); rec.Code != http.StatusAccepted {
			t.Fatalf("expected status %d got %d", http.StatusAccepted, rec.Code)
		}
	})
}

func TestClientLimiterSweepsIdleBuckets(t *testing.T) {
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := newClientLimiter(10, func() time.Time { return clock })

	l.take("a")
	clock = clock.Add(90 * time.Second)
	l.take("b")

	if _, ok := l.buckets["a"]; ok {
		t.Fatal("expected idle bucket to be swept")
	}
	if _, ok := l.buckets["b"]; !ok {
		t.Fatal("expected active bucket to stay")
	}
}

func TestClientLimiterBoundsClients(t *testing.T) {
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := newClientLimiter(10, func() time.Time { return clock })
	l.maxClients = 2

	if !l.take("a").allowed || !l.take("b").allowed {
		t.Fatal("expected first two clients to be admitted")
	}
	if v := l.take("c"); v.allowed {
		t.Fatal("expected a third concurrent client to be refused")
	}
	if !l.take("a").allowed {
		t.Fatal("expected known clients to keep their bucket")
	}

	clock = clock.Add(2 * time.Minute)
	if !l.take("c").allowed {
		t.Fatal("expected idle slots to be reclaimed")
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	if got := clientKey(req); got != "192.0.2.7" {
		t.Fatalf("expected host only, got %q", got)
	}
	req.RemoteAddr = "not-a-hostport"
	if got := clientKey(req); got != "not-a-hostport" {
		t.Fatalf("expected raw remote addr, got %q", got)
	}
}
