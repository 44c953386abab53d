package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/validation"
)

// maxBodyBytes bounds JSON request bodies; documents with many floors stay
// well below it
const maxBodyBytes = 8 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// FloorRangeRequest sets the number of floors above and below ground
type FloorRangeRequest struct {
	Above int `json:"above"`
	Below int `json:"below"`
}

// Validate checks the range before it reaches the model
func (r FloorRangeRequest) Validate() validation.ValidationErrors {
	var errs validation.ValidationErrors
	if r.Above < 1 {
		errs = append(errs, validation.ValidationError{Field: "above", Message: "at least one floor above ground is required"})
	}
	if r.Below < 0 {
		errs = append(errs, validation.ValidationError{Field: "below", Message: "floors below ground cannot be negative"})
	}
	return errs
}

// CameraPropertyRequest edits one numeric camera property
type CameraPropertyRequest struct {
	Field string  `json:"field"`
	Value float64 `json:"value"`
}

// Validate resolves the field name
func (r CameraPropertyRequest) Validate() (building.CameraField, validation.ValidationErrors) {
	var errs validation.ValidationErrors
	field, err := building.ParseCameraField(r.Field)
	if err != nil {
		errs = append(errs, validation.ValidationError{Field: "field", Message: err.Error()})
	}
	if !finite(r.Value) {
		errs = append(errs, validation.ValidationError{Field: "value", Message: "value must be a finite number"})
	}
	return field, errs
}

// PointRequest is a pixel or normalized position
type PointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate rejects NaN and infinities
func (r PointRequest) Validate() validation.ValidationErrors {
	var errs validation.ValidationErrors
	if !finite(r.X) {
		errs = append(errs, validation.ValidationError{Field: "x", Message: "x must be a finite number"})
	}
	if !finite(r.Y) {
		errs = append(errs, validation.ValidationError{Field: "y", Message: "y must be a finite number"})
	}
	return errs
}

// VertexRequest moves one zone vertex to a pixel position
type VertexRequest struct {
	Index int `json:"index"`
	PointRequest
}

// SizeRequest reports the live canvas size
type SizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Validate requires a positive, finite size
func (r SizeRequest) Validate() validation.ValidationErrors {
	var errs validation.ValidationErrors
	if !finite(r.Width) || r.Width <= 0 {
		errs = append(errs, validation.ValidationError{Field: "width", Message: "width must be positive"})
	}
	if !finite(r.Height) || r.Height <= 0 {
		errs = append(errs, validation.ValidationError{Field: "height", Message: "height must be positive"})
	}
	return errs
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseFloor reads a non-zero floor number from a path segment
func parseFloor(s string) (building.Floor, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q", building.ErrInvalidFloor, s)
	}
	return building.Floor(n), nil
}

// parseID reads a camera or zone id from a path segment
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
