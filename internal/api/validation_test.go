package api

import (
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Spatial-NVR/constructor/internal/building"
)

func TestFloorRangeRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		req    FloorRangeRequest
		fields []string
	}{
		{"valid", FloorRangeRequest{Above: 3, Below: 1}, nil},
		{"no basement", FloorRangeRequest{Above: 1, Below: 0}, nil},
		{"no floors above", FloorRangeRequest{Above: 0, Below: 2}, []string{"above"}},
		{"negative below", FloorRangeRequest{Above: 2, Below: -1}, []string{"below"}},
		{"both bad", FloorRangeRequest{Above: -1, Below: -1}, []string{"above", "below"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate()
			if len(errs) != len(tt.fields) {
				t.Fatalf("Expected %d errors, got %v", len(tt.fields), errs)
			}
			for _, f := range tt.fields {
				if _, ok := errs.Field(f); !ok {
					t.Errorf("Expected error for %q", f)
				}
			}
		})
	}
}

func TestCameraPropertyRequest_Validate(t *testing.T) {
	field, errs := CameraPropertyRequest{Field: "viewAngle", Value: 90}.Validate()
	if errs.HasErrors() {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if field != building.FieldViewAngle {
		t.Errorf("Expected viewAngle, got %s", field)
	}

	_, errs = CameraPropertyRequest{Field: "zoom", Value: 1}.Validate()
	if _, ok := errs.Field("field"); !ok {
		t.Error("Expected error for unknown field")
	}

	_, errs = CameraPropertyRequest{Field: "x", Value: math.NaN()}.Validate()
	if _, ok := errs.Field("value"); !ok {
		t.Error("Expected error for NaN value")
	}
}

func TestPointRequest_Validate(t *testing.T) {
	if errs := (PointRequest{X: 10, Y: -5}).Validate(); errs.HasErrors() {
		t.Errorf("Unexpected errors: %v", errs)
	}
	errs := PointRequest{X: math.Inf(1), Y: math.NaN()}.Validate()
	if len(errs) != 2 {
		t.Errorf("Expected 2 errors, got %v", errs)
	}
}

func TestSizeRequest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   SizeRequest
		valid bool
	}{
		{"valid", SizeRequest{Width: 800, Height: 600}, true},
		{"zero width", SizeRequest{Width: 0, Height: 600}, false},
		{"negative height", SizeRequest{Width: 800, Height: -1}, false},
		{"infinite", SizeRequest{Width: math.Inf(1), Height: 600}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := !tt.req.Validate().HasErrors(); got != tt.valid {
				t.Errorf("Expected valid=%v", tt.valid)
			}
		})
	}
}

func TestParseFloor(t *testing.T) {
	tests := []struct {
		in      string
		want    building.Floor
		wantErr bool
	}{
		{"1", 1, false},
		{"-2", -2, false},
		{"0", 0, true},
		{"first", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseFloor(tt.in)
		if tt.wantErr {
			if !errors.Is(err, building.ErrInvalidFloor) {
				t.Errorf("parseFloor(%q): expected ErrInvalidFloor, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parseFloor(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("1712345678901"); err != nil || id != 1712345678901 {
		t.Errorf("Unexpected result %d, %v", id, err)
	}
	if _, err := parseID("abc"); err == nil {
		t.Error("Expected error for non-numeric id")
	}
}

func TestDecodeJSON(t *testing.T) {
	var req PointRequest

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"x": 1.5, "y": 2}`))
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.X != 1.5 || req.Y != 2 {
		t.Errorf("Unexpected point %+v", req)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(""))
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("Expected empty body error, got %v", err)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader("{"))
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err == nil {
		t.Error("Expected error for malformed body")
	}
}
