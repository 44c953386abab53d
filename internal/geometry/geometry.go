// Package geometry provides the 2D primitives shared by the floor-plan model and
// renderer, and the conversions between canvas pixels and normalized coordinates.
package geometry

import (
	"encoding/json"
	"math"
)

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance calculates distance between two points
func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Midpoint returns the point halfway between p and other
func (p Point) Midpoint(other Point) Point {
	return Point{X: (p.X + other.X) / 2, Y: (p.Y + other.Y) / 2}
}

// Polygon is a series of points forming a closed shape
type Polygon []Point

// MarshalJSON custom marshaler for Polygon to handle empty slices
func (p Polygon) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Point(p))
}

// PointsFromFlat converts a flattened [x0,y0,x1,y1,...] list into a polygon.
// A trailing odd value is ignored.
func PointsFromFlat(flat []float64) Polygon {
	poly := make(Polygon, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		poly = append(poly, Point{X: flat[i], Y: flat[i+1]})
	}
	return poly
}

// Flatten converts the polygon back into [x0,y0,x1,y1,...] form
func (p Polygon) Flatten() []float64 {
	flat := make([]float64, 0, len(p)*2)
	for _, pt := range p {
		flat = append(flat, pt.X, pt.Y)
	}
	return flat
}

// ContainsPoint checks if a point is inside the polygon using ray casting
func (p Polygon) ContainsPoint(pt Point) bool {
	if len(p) < 3 {
		return false
	}

	n := len(p)
	inside := false

	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := p[i].X, p[i].Y
		xj, yj := p[j].X, p[j].Y

		if ((yi > pt.Y) != (yj > pt.Y)) &&
			(pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// Bounds returns the axis-aligned bounding box of the polygon
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	minX, minY := p[0].X, p[0].Y
	maxX, maxY := minX, minY
	for _, pt := range p[1:] {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Centroid returns the vertex average of the polygon
func (p Polygon) Centroid() Point {
	if len(p) == 0 {
		return Point{}
	}
	var c Point
	for _, pt := range p {
		c.X += pt.X
		c.Y += pt.Y
	}
	n := float64(len(p))
	return Point{X: c.X / n, Y: c.Y / n}
}

// Rect is an axis-aligned rectangle
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether pt lies inside r (edges inclusive)
func (r Rect) Contains(pt Point) bool {
	return pt.X >= r.X && pt.X <= r.X+r.Width && pt.Y >= r.Y && pt.Y <= r.Y+r.Height
}

// Center returns the rectangle center
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}
