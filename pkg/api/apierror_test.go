package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Steve-IX/Ezra/pkg/api"
)

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-1")
	api.WriteError(w, http.StatusBadRequest, "Bad Request", "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Status != 400 || problem.Title != "Bad Request" || problem.Detail != "field is missing" {
		t.Errorf("unexpected problem: %+v", problem)
	}
	if problem.Type != "urn:ezra:problem:400" {
		t.Errorf("unexpected type %q", problem.Type)
	}
	if problem.TraceID != "req-1" {
		t.Errorf("expected trace_id from X-Request-ID, got %q", problem.TraceID)
	}
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Detail == "pq: connection refused to host=10.0.0.1" {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequests_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, 30)

	if ra := w.Header().Get("Retry-After"); ra != "30" {
		t.Errorf("expected Retry-After '30', got %q", ra)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}

func TestWriteMethodNotAllowed_AllowHeader(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteMethodNotAllowed(w, http.MethodPost)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("expected Allow POST, got %q", got)
	}
}
