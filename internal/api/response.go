package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/store"
	"github.com/Spatial-NVR/constructor/internal/validation"
)

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string                       `json:"code"`
	Message string                       `json:"message"`
	Details []validation.ValidationError `json:"details,omitempty"`
}

// Meta carries list totals and per-status counts
type Meta struct {
	Total   int         `json:"total,omitempty"`
	Matched int         `json:"matched,omitempty"`
	Counts  map[int]int `json:"counts,omitempty"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// JSONWithMeta sends a JSON response with metadata
func JSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	writeResponse(w, status, Response{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, Response{
		Error: &ErrorInfo{Code: code, Message: message},
	})
}

// ValidationErrorResponse sends a validation error response
func ValidationErrorResponse(w http.ResponseWriter, errs validation.ValidationErrors) {
	writeResponse(w, http.StatusBadRequest, Response{
		Error: &ErrorInfo{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Details: errs,
		},
	})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK sends a 200 OK response
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// statusClientClosedRequest is the nginx convention for a request the
// client abandoned before the response was ready
const statusClientClosedRequest = 499

// Fail maps an error from the editor, the store or the backend onto a
// response. Backend HTTP errors keep their status and detail text.
func Fail(w http.ResponseWriter, err error) {
	var (
		verrs   validation.ValidationErrors
		httpErr *backend.HTTPError
		netErr  *backend.NetworkError
	)
	switch {
	case errors.As(err, &verrs):
		ValidationErrorResponse(w, verrs)
	case errors.As(err, &httpErr):
		Error(w, httpErr.Status, "BACKEND_ERROR", httpErr.Error())
	case errors.Is(err, context.Canceled):
		Error(w, statusClientClosedRequest, "REQUEST_CANCELED", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusGatewayTimeout, "BACKEND_TIMEOUT", err.Error())
	case errors.As(err, &netErr):
		Error(w, http.StatusBadGateway, "BACKEND_UNREACHABLE", netErr.Error())
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, building.ErrCameraNotFound),
		errors.Is(err, building.ErrZoneNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, editor.ErrNoFloorSelected),
		errors.Is(err, editor.ErrNoCameraSelected),
		errors.Is(err, editor.ErrNoZoneSelected):
		Conflict(w, err.Error())
	case errors.Is(err, editor.ErrSessionClosed):
		Error(w, http.StatusServiceUnavailable, "SESSION_CLOSED", err.Error())
	case errors.Is(err, editor.ErrNoBackend):
		Error(w, http.StatusServiceUnavailable, "NO_BACKEND", err.Error())
	case errors.Is(err, building.ErrInvalidRange),
		errors.Is(err, building.ErrInvalidFloor),
		errors.Is(err, building.ErrPointIndex),
		errors.Is(err, building.ErrUnknownField),
		errors.Is(err, building.ErrMalformedDocument):
		BadRequest(w, err.Error())
	default:
		InternalError(w, err.Error())
	}
}
