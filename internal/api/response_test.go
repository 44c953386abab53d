package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/store"
	"github.com/Spatial-NVR/constructor/internal/validation"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter)
		status  int
		code    string
		success bool
	}{
		{"ok", func(w http.ResponseWriter) { OK(w, "floor 2") }, http.StatusOK, "", true},
		{"created", func(w http.ResponseWriter) { Created(w, map[string]string{"id": "c-1"}) }, http.StatusCreated, "", true},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "floor out of range") }, http.StatusBadRequest, "BAD_REQUEST", false},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such zone") }, http.StatusNotFound, "NOT_FOUND", false},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "no camera selected") }, http.StatusConflict, "CONFLICT", false},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "boom") }, http.StatusInternalServerError, "INTERNAL_ERROR", false},
		{"custom", func(w http.ResponseWriter) { Error(w, http.StatusTeapot, "TEAPOT", "short and stout") }, http.StatusTeapot, "TEAPOT", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got %q", ct)
			}
			resp := decodeResponse(t, w)
			if resp.Success != tt.success {
				t.Errorf("Expected success %v", tt.success)
			}
			if tt.code == "" {
				if resp.Error != nil {
					t.Errorf("Unexpected error %+v", resp.Error)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("Expected code %s, got %+v", tt.code, resp.Error)
			}
		})
	}

	w := httptest.NewRecorder()
	NoContent(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("Expected empty 204, got %d %q", w.Code, w.Body.String())
	}
}

func TestJSONWithMeta_StatusCounts(t *testing.T) {
	w := httptest.NewRecorder()
	JSONWithMeta(w, http.StatusOK, []string{"A-1", "A-2"}, &Meta{
		Total:   5,
		Matched: 2,
		Counts:  map[int]int{1: 3, 2: 2},
	})

	resp := decodeResponse(t, w)
	if resp.Meta == nil {
		t.Fatal("Expected meta")
	}
	if resp.Meta.Total != 5 || resp.Meta.Matched != 2 {
		t.Errorf("Unexpected totals %+v", resp.Meta)
	}
	if resp.Meta.Counts[1] != 3 || resp.Meta.Counts[2] != 2 {
		t.Errorf("Unexpected counts %v", resp.Meta.Counts)
	}
}

func TestValidationErrorResponse_Details(t *testing.T) {
	w := httptest.NewRecorder()
	ValidationErrorResponse(w, validation.ValidationErrors{
		{Field: "stream_url", Message: "must use rtsp, rtsps, rtmp, http or https"},
		{Field: "email", Message: "is invalid"},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("Expected validation error, got %+v", resp.Error)
	}
	if len(resp.Error.Details) != 2 || resp.Error.Details[0].Field != "stream_url" {
		t.Errorf("Unexpected details %+v", resp.Error.Details)
	}
}

func TestFail(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", validation.ValidationErrors{{Field: "name", Message: "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"backend http", &backend.HTTPError{Op: "get", Status: http.StatusForbidden, Detail: "nope"}, http.StatusForbidden, "BACKEND_ERROR"},
		{"backend network", &backend.NetworkError{Op: "get", Err: errors.New("refused")}, http.StatusBadGateway, "BACKEND_UNREACHABLE"},
		{"canceled", fmt.Errorf("list configs: %w", context.Canceled), statusClientClosedRequest, "REQUEST_CANCELED"},
		{"timed out", &backend.NetworkError{Op: "get", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "BACKEND_TIMEOUT"},
		{"draft missing", fmt.Errorf("draft x: %w", store.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"camera missing", building.ErrCameraNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"no selection", editor.ErrNoFloorSelected, http.StatusConflict, "CONFLICT"},
		{"closed", editor.ErrSessionClosed, http.StatusServiceUnavailable, "SESSION_CLOSED"},
		{"no backend", editor.ErrNoBackend, http.StatusServiceUnavailable, "NO_BACKEND"},
		{"bad range", building.ErrInvalidRange, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Fail(w, tt.err)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			resp := decodeResponse(t, w)
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("Expected code %s, got %+v", tt.code, resp.Error)
			}
		})
	}
}
