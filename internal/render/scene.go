// Package render turns building state into drawable scenes: the isometric
// floor stack used to pick a floor and the top-down canvas of one floor.
// Scenes are plain data in pixel space and can be written as SVG or PNG.
package render

import (
	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// Face is a closed filled polygon
type Face struct {
	Points      geometry.Polygon `json:"points"`
	Fill        string           `json:"fill"`
	Stroke      string           `json:"stroke"`
	StrokeWidth float64          `json:"strokeWidth"`
}

// Circle is a filled circle with an optional outline
type Circle struct {
	Center      geometry.Point `json:"center"`
	Radius      float64        `json:"radius"`
	Fill        string         `json:"fill"`
	Stroke      string         `json:"stroke,omitempty"`
	StrokeWidth float64        `json:"strokeWidth,omitempty"`
}

// Text is a single line of text anchored at its top-left corner
type Text struct {
	Value    string         `json:"value"`
	At       geometry.Point `json:"at"`
	FontSize float64        `json:"fontSize"`
	Fill     string         `json:"fill"`
}

// Label is the floating tooltip drawn above a hovered object
type Label struct {
	Text   string         `json:"text"`
	Anchor geometry.Point `json:"anchor"`
}

const (
	labelOffset   = 15
	labelFontSize = 12
	labelPadding  = 4
)

// Box returns the tooltip rectangle. Its left edge sits on the anchor.
func (l Label) Box() geometry.Rect {
	w := float64(len([]rune(l.Text)))*labelFontSize*0.6 + labelPadding*2
	h := float64(labelFontSize) + labelPadding*2
	return geometry.Rect{X: l.Anchor.X, Y: l.Anchor.Y - labelOffset, Width: w, Height: h}
}
