package geometry

import "math"

// Size is the live pixel size of a canvas
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Ref returns the reference dimension used for radius and icon size, so a
// circular field of view keeps its shape on non-square canvases.
func (s Size) Ref() float64 {
	return math.Max(s.Width, s.Height)
}

// IsZero reports whether either dimension is unset
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// ToNormalized converts an absolute pixel value into a fraction of dim.
// A zero dimension leaves the value unchanged.
func ToNormalized(px, dim float64) float64 {
	if dim == 0 {
		return px
	}
	return px / dim
}

// ToPixels converts a normalized value into pixels along dim
func ToPixels(norm, dim float64) float64 {
	return norm * dim
}

// Normalize converts a pixel-space point on a canvas of this size
func (s Size) Normalize(pt Point) Point {
	return Point{X: ToNormalized(pt.X, s.Width), Y: ToNormalized(pt.Y, s.Height)}
}

// Denormalize converts a normalized point to pixels on a canvas of this size
func (s Size) Denormalize(pt Point) Point {
	return Point{X: ToPixels(pt.X, s.Width), Y: ToPixels(pt.Y, s.Height)}
}

// NormalizeFlat converts a flattened pixel point list (x along width, y along height)
func (s Size) NormalizeFlat(flat []float64) []float64 {
	out := make([]float64, len(flat))
	for i, v := range flat {
		if i%2 == 0 {
			out[i] = ToNormalized(v, s.Width)
		} else {
			out[i] = ToNormalized(v, s.Height)
		}
	}
	return out
}

// DenormalizeFlat is the inverse of NormalizeFlat
func (s Size) DenormalizeFlat(flat []float64) []float64 {
	out := make([]float64, len(flat))
	for i, v := range flat {
		if i%2 == 0 {
			out[i] = ToPixels(v, s.Width)
		} else {
			out[i] = ToPixels(v, s.Height)
		}
	}
	return out
}

// Clamp limits v to [lo, hi]. When hi < lo the result is lo.
func Clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
