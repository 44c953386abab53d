package render

import (
	"strconv"

	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// StackLayout sizes the isometric floor stack
type StackLayout struct {
	FloorWidth     float64 `json:"floorWidth"`
	FloorHeight    float64 `json:"floorHeight"`
	TopMargin      float64 `json:"topMargin"`
	ContainerWidth float64 `json:"containerWidth"`
}

// DefaultStackLayout matches the floor picker of the editor UI
var DefaultStackLayout = StackLayout{
	FloorWidth:     120,
	FloorHeight:    40,
	TopMargin:      100,
	ContainerWidth: 600,
}

const (
	strokeSelected = "#f55"
	strokeHovered  = "#55f"
	strokeIdle     = "#555"
)

// Slab is one floor drawn as an extruded parallelogram
type Slab struct {
	Floor    building.Floor `json:"floor"`
	Left     Face           `json:"left"`
	Right    Face           `json:"right"`
	Top      Face           `json:"top"`
	Caption  Text           `json:"caption"`
	Selected bool           `json:"selected"`
	Hovered  bool           `json:"hovered"`
}

// Contains reports whether pt falls on any face of the slab
func (s Slab) Contains(pt geometry.Point) bool {
	return s.Top.Points.ContainsPoint(pt) ||
		s.Left.Points.ContainsPoint(pt) ||
		s.Right.Points.ContainsPoint(pt)
}

// Stack is the floor picker scene. Slabs are in paint order: lowest floor
// first, so upper floors overlap the top faces of the ones below.
type Stack struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Below    []Slab  `json:"below"`
	Platform [3]Face `json:"platform"`
	Marker   Circle  `json:"marker"`
	Above    []Slab  `json:"above"`
}

// Slabs returns every slab in paint order
func (s Stack) Slabs() []Slab {
	out := make([]Slab, 0, len(s.Below)+len(s.Above))
	out = append(out, s.Below...)
	return append(out, s.Above...)
}

// HitTest returns the floor painted on top at pt
func (s Stack) HitTest(pt geometry.Point) (building.Floor, bool) {
	slabs := s.Slabs()
	for i := len(slabs) - 1; i >= 0; i-- {
		if slabs[i].Contains(pt) {
			return slabs[i].Floor, true
		}
	}
	return 0, false
}

// BuildStack lays out every floor of r around a ground platform. The
// selected and hovered floors differ from the others only by stroke colour.
func BuildStack(r building.FloorRange, selected, hovered *building.Floor, layout StackLayout) Stack {
	if layout.FloorWidth <= 0 || layout.FloorHeight <= 0 {
		layout = DefaultStackLayout
	}
	w, h := layout.FloorWidth, layout.FloorHeight
	centerY := float64(r.Above)*h + layout.TopMargin
	originX := (layout.ContainerWidth - w) / 2

	st := Stack{
		Width:  layout.ContainerWidth,
		Height: float64(r.Above+r.Below)*h + h + layout.TopMargin*2,
		Marker: Circle{
			Center: geometry.Point{X: originX + w/2, Y: centerY},
			Radius: 5,
			Fill:   "#ff0",
		},
	}
	st.Platform = platform(w, originX, centerY)

	for f := -r.Below; f <= r.Above; f++ {
		if f == 0 {
			continue
		}
		floor := building.Floor(f)
		slab := buildSlab(floor, w, h, originX, centerY-float64(f)*h)
		slab.Selected = selected != nil && *selected == floor
		slab.Hovered = !slab.Selected && hovered != nil && *hovered == floor
		stroke := strokeIdle
		switch {
		case slab.Selected:
			stroke = strokeSelected
		case slab.Hovered:
			stroke = strokeHovered
		}
		for _, face := range []*Face{&slab.Left, &slab.Right, &slab.Top} {
			face.Stroke = stroke
			face.StrokeWidth = 1
		}
		if f < 0 {
			st.Below = append(st.Below, slab)
		} else {
			st.Above = append(st.Above, slab)
		}
	}
	return st
}

func buildSlab(f building.Floor, w, h, x, y float64) Slab {
	depth := w / 4
	half := w / 2
	at := func(flat ...float64) geometry.Polygon {
		poly := geometry.PointsFromFlat(flat)
		for i := range poly {
			poly[i].X += x
			poly[i].Y += y
		}
		return poly
	}
	return Slab{
		Floor: f,
		Left:  Face{Points: at(0, depth, half, depth*2, half, depth*2+h, 0, depth+h), Fill: "#bbb"},
		Right: Face{Points: at(w, depth, half, depth*2, half, depth*2+h, w, depth+h), Fill: "#777"},
		Top:   Face{Points: at(half, 0, w, depth, half, depth*2, 0, depth), Fill: "#ddd"},
		Caption: Text{
			Value:    strconv.Itoa(int(f)),
			At:       geometry.Point{X: x + w + 10, Y: y + 40},
			FontSize: 14,
			Fill:     "#002",
		},
	}
}

func platform(floorWidth, originX, centerY float64) [3]Face {
	pw := floorWidth + 80
	pd := floorWidth/4 + 20
	const ph = 5
	x := originX - (pw-floorWidth)/2
	at := func(flat ...float64) geometry.Polygon {
		poly := geometry.PointsFromFlat(flat)
		for i := range poly {
			poly[i].X += x
			poly[i].Y += centerY
		}
		return poly
	}
	return [3]Face{
		{Points: at(0, pd, pw/2, pd*2, pw/2, pd*2+ph, 0, pd+ph), Fill: "#777", Stroke: "#555", StrokeWidth: 1},
		{Points: at(pw, pd, pw/2, pd*2, pw/2, pd*2+ph, pw, pd+ph), Fill: "#555", Stroke: "#555", StrokeWidth: 1},
		{Points: at(pw/2, 0, pw, pd, pw/2, pd*2, 0, pd), Fill: "#999", Stroke: "#333", StrokeWidth: 1},
	}
}
