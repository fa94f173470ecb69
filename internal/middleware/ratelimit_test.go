package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"valid", RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}, false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative requests", RateLimitConfig{RequestsPerWindow: -1, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _ := store.Allow(ctx, "key-1", config)
		if !allowed {
			t.Fatalf("request %d blocked, want allowed", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, "key-1", config)
	if allowed {
		t.Error("request 4 allowed, want blocked")
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter = %d, want > 0", retryAfter)
	}

	// A different key has its own bucket
	if allowed, _ := store.Allow(ctx, "key-2", config); !allowed {
		t.Error("different key blocked, want allowed")
	}
}

func TestInMemoryRateLimitStore_WindowExpiry(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond}
	ctx := context.Background()

	if allowed, _ := store.Allow(ctx, "key", config); !allowed {
		t.Fatal("first request blocked")
	}
	if allowed, _ := store.Allow(ctx, "key", config); allowed {
		t.Fatal("second request allowed within window")
	}

	time.Sleep(15 * time.Millisecond)

	if allowed, _ := store.Allow(ctx, "key", config); !allowed {
		t.Error("request after window expiry blocked, want allowed")
	}
}

func TestInMemoryRateLimitStore_Cleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Millisecond}
	ctx := context.Background()

	store.Allow(ctx, "stale", config)
	time.Sleep(5 * time.Millisecond)
	store.Cleanup()

	store.mu.RLock()
	_, exists := store.buckets["stale"]
	store.mu.RUnlock()
	if exists {
		t.Error("expired bucket not removed by Cleanup")
	}
}

func TestRateLimiter_Blocks(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	metrics := NewMetrics()

	handler := RateLimiter(store, config, IPKeyFunc(), "test", metrics)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header not set")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr with port",
			remoteAddr: "192.0.2.10:5678",
			want:       "192.0.2.10",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for chain uses first",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 70.41.3.18, 150.172.238.178"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			want:       "198.51.100.2",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:80"
	if got := keyFunc(req); got != "ip:10.0.0.1" {
		t.Errorf("anonymous key = %q, want ip:10.0.0.1", got)
	}

	req = req.WithContext(SetUserID(req.Context(), "user-42"))
	if got := keyFunc(req); got != "user:user-42" {
		t.Errorf("authenticated key = %q, want user:user-42", got)
	}
}
