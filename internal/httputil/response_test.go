package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mynews-app/service_layer/internal/logging"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"count": 2})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	var out map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["count"] != 2 {
		t.Errorf("count = %d, want 2", out["count"])
	}
}

func TestWriteError_IncludesTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "abc"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, http.StatusNotFound, "not_found", "missing")

	var out ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.TraceID != "abc" || out.Code != "not_found" || out.Error != "missing" {
		t.Errorf("unexpected envelope: %+v", out)
	}
}

func TestErrorHelpers(t *testing.T) {
	testCases := []struct {
		name   string
		write  func(http.ResponseWriter, string)
		status int
	}{
		{"bad request", BadRequest, http.StatusBadRequest},
		{"unauthorized", Unauthorized, http.StatusUnauthorized},
		{"not found", NotFound, http.StatusNotFound},
		{"conflict", Conflict, http.StatusConflict},
		{"too many", TooManyRequests, http.StatusTooManyRequests},
		{"internal", InternalError, http.StatusInternalServerError},
		{"bad gateway", BadGateway, http.StatusBadGateway},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.write(rec, "msg")
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Username string `json:"username"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"ana"}`))
		rec := httptest.NewRecorder()
		var p payload
		if !DecodeJSON(rec, req, &p) {
			t.Fatalf("DecodeJSON() = false, body %s", rec.Body.String())
		}
		if p.Username != "ana" {
			t.Errorf("Username = %s, want ana", p.Username)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user":"ana"}`))
		rec := httptest.NewRecorder()
		var p payload
		if DecodeJSON(rec, req, &p) {
			t.Fatal("DecodeJSON() = true, want false")
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestRequireUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if _, ok := RequireUserID(rec, req); ok {
		t.Fatal("RequireUserID() ok without user")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req = req.WithContext(logging.WithUserID(req.Context(), "uid-1"))
	rec = httptest.NewRecorder()
	uid, ok := RequireUserID(rec, req)
	if !ok || uid != "uid-1" {
		t.Errorf("RequireUserID() = %q, %v", uid, ok)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !truncated || string(data) != "abcd" {
		t.Errorf("got %q truncated=%v", data, truncated)
	}

	data, truncated, err = ReadAllWithLimit(strings.NewReader("abc"), 4)
	if err != nil || truncated || string(data) != "abc" {
		t.Errorf("got %q truncated=%v err=%v", data, truncated, err)
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("abcdef"), 4); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("error = %v, want ErrBodyTooLarge", err)
	}
	data, err := ReadAllStrict(strings.NewReader("abcd"), 4)
	if err != nil || string(data) != "abcd" {
		t.Errorf("got %q err=%v", data, err)
	}
}
