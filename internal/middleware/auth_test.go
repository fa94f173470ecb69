package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tiptune/tiptune/internal/auth"
)

func authTestHandler(gotUserID *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestOptionalAuth_ValidToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-that-is-long-enough!")
	token, err := jwtService.GenerateAccessToken("user-123")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	var gotUserID string
	handler := OptionalAuth(jwtService)(authTestHandler(&gotUserID))

	req := httptest.NewRequest(http.MethodPost, "/api/plays/record", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if gotUserID != "user-123" {
		t.Errorf("user ID in context = %q, want user-123", gotUserID)
	}
}

func TestOptionalAuth_NoToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-that-is-long-enough!")

	var gotUserID string
	handler := OptionalAuth(jwtService)(authTestHandler(&gotUserID))

	req := httptest.NewRequest(http.MethodPost, "/api/plays/record", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (anonymous requests proceed)", w.Code)
	}
	if gotUserID != "" {
		t.Errorf("user ID in context = %q, want empty", gotUserID)
	}
}

func TestOptionalAuth_InvalidToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-that-is-long-enough!")

	var gotUserID string
	handler := OptionalAuth(jwtService)(authTestHandler(&gotUserID))

	req := httptest.NewRequest(http.MethodPost, "/api/plays/record", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (invalid token falls back to anonymous)", w.Code)
	}
	if gotUserID != "" {
		t.Errorf("user ID in context = %q, want empty", gotUserID)
	}
}

func TestOptionalAuth_RefreshTokenRejected(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-that-is-long-enough!")
	refresh, err := jwtService.GenerateRefreshToken("user-123")
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	var gotUserID string
	handler := OptionalAuth(jwtService)(authTestHandler(&gotUserID))

	req := httptest.NewRequest(http.MethodPost, "/api/plays/record", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if gotUserID != "" {
		t.Errorf("user ID in context = %q, want empty for refresh token", gotUserID)
	}
}

func TestOptionalAuth_MalformedHeader(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-that-is-long-enough!")

	var gotUserID string
	handler := OptionalAuth(jwtService)(authTestHandler(&gotUserID))

	req := httptest.NewRequest(http.MethodPost, "/api/plays/record", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if gotUserID != "" {
		t.Errorf("user ID in context = %q, want empty", gotUserID)
	}
}
