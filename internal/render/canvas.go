package render

import (
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/geometry"
)

const (
	handleRadius = 5
	wedgeFill    = "rgba(0,0,255,0.2)"
	canvasFill   = "#fff"
)

// Handle is a vertex grip of a zone polygon
type Handle struct {
	Index     int  `json:"index"`
	Draggable bool `json:"draggable"`
	Circle
}

// ZoneShape is a zone resolved onto the canvas
type ZoneShape struct {
	ID       int64    `json:"id"`
	Outline  Face     `json:"outline"`
	Handles  []Handle `json:"handles"`
	Selected bool     `json:"selected"`
}

// Wedge is a filled circular sector. Angles are degrees, clockwise from
// the positive x axis with y pointing down.
type Wedge struct {
	Center geometry.Point `json:"center"`
	Radius float64        `json:"radius"`
	Start  float64        `json:"start"`
	Sweep  float64        `json:"sweep"`
	Fill   string         `json:"fill"`
}

// CameraShape is a camera icon group: hit box, field of view, badge and glyph
type CameraShape struct {
	ID       int64         `json:"id"`
	Box      geometry.Rect `json:"box"`
	View     Wedge         `json:"view"`
	Badge    Circle        `json:"badge"`
	Selected bool          `json:"selected"`
}

// Canvas is the top-down scene of one floor in pixel space
type Canvas struct {
	Floor      building.Floor `json:"floor"`
	Size       geometry.Size  `json:"size"`
	Background string         `json:"background,omitempty"`
	Zones      []ZoneShape    `json:"zones"`
	Cameras    []CameraShape  `json:"cameras"`
	Label      *Label         `json:"label,omitempty"`
}

// BuildCanvas resolves a floor onto a canvas of the given size. Geometry is
// derived from the stored normalized fields on every call, so the scene
// follows the live canvas size.
func BuildCanvas(fd building.FloorData, size geometry.Size, sel editor.Selection, hover *editor.Target) Canvas {
	if size.IsZero() {
		size = building.DefaultCanvasSize
	}
	c := Canvas{
		Floor:      fd.Floor,
		Size:       size,
		Background: fd.Background,
		Zones:      make([]ZoneShape, 0, len(fd.Zones)),
		Cameras:    make([]CameraShape, 0, len(fd.Cameras)),
	}

	for _, z := range fd.Zones {
		selected := sel.Zone != nil && *sel.Zone == z.ID
		c.Zones = append(c.Zones, zoneShape(z, size, selected))
	}
	for _, cam := range fd.Cameras {
		selected := sel.Camera != nil && *sel.Camera == cam.ID
		c.Cameras = append(c.Cameras, cameraShape(cam, size, selected))
	}
	if hover != nil {
		c.Label = c.LabelFor(*hover)
	}
	return c
}

func zoneShape(z building.Zone, size geometry.Size, selected bool) ZoneShape {
	poly := geometry.PointsFromFlat(z.PixelPoints(size))
	fill := z.Fill
	if fill == "" {
		fill = building.DefaultZoneFill
	}
	stroke, handleFill := "gray", "lightgray"
	if selected {
		stroke, handleFill = "red", "white"
	}

	shape := ZoneShape{
		ID:       z.ID,
		Outline:  Face{Points: poly, Fill: fill, Stroke: stroke, StrokeWidth: 2},
		Handles:  make([]Handle, len(poly)),
		Selected: selected,
	}
	for i, pt := range poly {
		shape.Handles[i] = Handle{
			Index:     i,
			Draggable: selected,
			Circle: Circle{
				Center:      pt,
				Radius:      handleRadius,
				Fill:        handleFill,
				Stroke:      stroke,
				StrokeWidth: 1,
			},
		}
	}
	return shape
}

func cameraShape(cam building.Camera, size geometry.Size, selected bool) CameraShape {
	px := cam.Pixels(size)
	center := px.Center()
	half := px.Size / 2
	return CameraShape{
		ID:  cam.ID,
		Box: geometry.Rect{X: px.X, Y: px.Y, Width: px.Size, Height: px.Size},
		View: Wedge{
			Center: center,
			Radius: px.ViewRadius,
			Start:  cam.Rotation,
			Sweep:  cam.ViewAngle,
			Fill:   wedgeFill,
		},
		Badge:    Circle{Center: center, Radius: half + 2, Fill: "#fff"},
		Selected: selected,
	}
}

// LabelFor places the hover tooltip above the hovered object. It returns nil
// when t is not drawn on this canvas.
func (c Canvas) LabelFor(t editor.Target) *Label {
	switch t.Kind {
	case editor.TargetCamera:
		for _, cam := range c.Cameras {
			if cam.ID == t.ID {
				return &Label{Text: t.Label(), Anchor: geometry.Point{X: cam.Box.X + cam.Box.Width/2, Y: cam.Box.Y}}
			}
		}
	case editor.TargetZone:
		for _, z := range c.Zones {
			if z.ID == t.ID {
				b := z.Outline.Points.Bounds()
				return &Label{Text: t.Label(), Anchor: geometry.Point{X: b.X + b.Width/2, Y: b.Y}}
			}
		}
	}
	return nil
}

// HitTest returns the topmost object at pt. Cameras are painted above zones.
func (c Canvas) HitTest(pt geometry.Point) (editor.Target, bool) {
	for i := len(c.Cameras) - 1; i >= 0; i-- {
		if c.Cameras[i].Box.Contains(pt) {
			return editor.Target{Kind: editor.TargetCamera, ID: c.Cameras[i].ID}, true
		}
	}
	for i := len(c.Zones) - 1; i >= 0; i-- {
		if c.Zones[i].Outline.Points.ContainsPoint(pt) {
			return editor.Target{Kind: editor.TargetZone, ID: c.Zones[i].ID}, true
		}
	}
	return editor.Target{}, false
}
