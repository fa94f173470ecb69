package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type requestLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func TestLogging_SuccessfulRequest(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/plays/top-tracks", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var entry requestLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}

	if entry.Level != "INFO" {
		t.Errorf("level = %s, want INFO", entry.Level)
	}
	if entry.Method != http.MethodGet {
		t.Errorf("method = %s, want GET", entry.Method)
	}
	if entry.Path != "/api/plays/top-tracks" {
		t.Errorf("path = %s, want /api/plays/top-tracks", entry.Path)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("size = %d, want 5", entry.Size)
	}
}

func TestLogging_ServerErrorLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var entry requestLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry.Level != "ERROR" {
		t.Errorf("level = %s, want ERROR for 5xx", entry.Level)
	}
}

func TestLogging_ErrorCodeFromUpdatedContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "rate_limited")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/plays/record", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var entry requestLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry.Level != "WARN" {
		t.Errorf("level = %s, want WARN for 4xx", entry.Level)
	}
	if entry.ErrorCode != "rate_limited" {
		t.Errorf("error_code = %s, want rate_limited", entry.ErrorCode)
	}
}

func TestLogging_UserIDFromUpdatedContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetUserID(r.Context(), "user-9")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var entry requestLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry.UserID != "user-9" {
		t.Errorf("user_id = %s, want user-9", entry.UserID)
	}
}

func TestNewLogger_Environments(t *testing.T) {
	if NewLogger("production") == nil {
		t.Error("NewLogger(production) returned nil")
	}
	if NewLogger("development") == nil {
		t.Error("NewLogger(development) returned nil")
	}
}
