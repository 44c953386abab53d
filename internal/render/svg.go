package render

import (
	"fmt"
	"html"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// cameraGlyph is a 24x24 camera outline
const cameraGlyph = "M20 5h-3.17L15 3H9L7.17 5H4c-1.1 0-2 .9-2 2v12h20V7c0-1.1-.9-2-2-2zM12 17" +
	"c-2.76 0-5-2.24-5-5s2.24-5 5-5 5 2.24 5 5-2.24 5-5 5z"

// StackSVG writes the floor stack as a standalone SVG document
func StackSVG(w io.Writer, s Stack) error {
	var b strings.Builder
	openSVG(&b, s.Width, s.Height)

	for _, slab := range s.Below {
		writeSlab(&b, slab)
	}
	for _, face := range s.Platform {
		b.WriteString("  " + polygonElem(face) + "\n")
	}
	b.WriteString("  " + circleElem(s.Marker) + "\n")
	for _, slab := range s.Above {
		writeSlab(&b, slab)
	}

	b.WriteString(`</svg>`)
	_, err := io.WriteString(w, b.String())
	return err
}

// CanvasSVG writes a floor canvas as a standalone SVG document
func CanvasSVG(w io.Writer, c Canvas) error {
	var b strings.Builder
	openSVG(&b, c.Size.Width, c.Size.Height)

	b.WriteString(fmt.Sprintf(`  <rect x="0" y="0" width="%s" height="%s" fill="%s"/>`+"\n",
		formatFloat(c.Size.Width), formatFloat(c.Size.Height), canvasFill))
	if c.Background != "" {
		b.WriteString(fmt.Sprintf(`  <image href="%s" x="0" y="0" width="%s" height="%s" preserveAspectRatio="none"/>`+"\n",
			html.EscapeString(c.Background), formatFloat(c.Size.Width), formatFloat(c.Size.Height)))
	}

	for _, z := range c.Zones {
		b.WriteString(fmt.Sprintf(`  <g data-zone="%d">`+"\n", z.ID))
		b.WriteString("    " + polygonElem(z.Outline) + "\n")
		for _, h := range z.Handles {
			b.WriteString("    " + circleElem(h.Circle) + "\n")
		}
		b.WriteString("  </g>\n")
	}

	for _, cam := range c.Cameras {
		b.WriteString(fmt.Sprintf(`  <g data-camera="%d">`+"\n", cam.ID))
		b.WriteString(fmt.Sprintf(`    <rect x="%s" y="%s" width="%s" height="%s" fill="transparent"/>`+"\n",
			formatFloat(cam.Box.X), formatFloat(cam.Box.Y), formatFloat(cam.Box.Width), formatFloat(cam.Box.Height)))
		if elem := wedgeElem(cam.View); elem != "" {
			b.WriteString("    " + elem + "\n")
		}
		b.WriteString("    " + circleElem(cam.Badge) + "\n")
		scale := cam.Box.Width / 24
		b.WriteString(fmt.Sprintf(`    <path d="%s" fill="#000" transform="translate(%s %s) scale(%s)"/>`+"\n",
			cameraGlyph, formatFloat(cam.Box.X), formatFloat(cam.Box.Y), formatFloat(scale)))
		b.WriteString("  </g>\n")
	}

	if c.Label != nil {
		box := c.Label.Box()
		b.WriteString(fmt.Sprintf(`  <rect x="%s" y="%s" width="%s" height="%s" rx="3" fill="black" fill-opacity="0.75"/>`+"\n",
			formatFloat(box.X), formatFloat(box.Y), formatFloat(box.Width), formatFloat(box.Height)))
		b.WriteString(fmt.Sprintf(`  <text x="%s" y="%s" font-size="%d" fill="white">%s</text>`+"\n",
			formatFloat(box.X+labelPadding), formatFloat(box.Y+labelPadding+labelFontSize),
			labelFontSize, html.EscapeString(c.Label.Text)))
	}

	b.WriteString(`</svg>`)
	_, err := io.WriteString(w, b.String())
	return err
}

func openSVG(b *strings.Builder, width, height float64) {
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatFloat(width), formatFloat(height), formatFloat(width), formatFloat(height)))
	b.WriteString("\n")
}

func writeSlab(b *strings.Builder, s Slab) {
	b.WriteString(fmt.Sprintf(`  <g data-floor="%d">`+"\n", int(s.Floor)))
	for _, face := range []Face{s.Left, s.Right, s.Top} {
		b.WriteString("    " + polygonElem(face) + "\n")
	}
	b.WriteString(fmt.Sprintf(`    <text x="%s" y="%s" font-size="%s" fill="%s">%s</text>`+"\n",
		formatFloat(s.Caption.At.X), formatFloat(s.Caption.At.Y), formatFloat(s.Caption.FontSize),
		attr(s.Caption.Fill), html.EscapeString(s.Caption.Value)))
	b.WriteString("  </g>\n")
}

// attr quotes a value for use inside a double-quoted attribute.
func attr(v string) string {
	return html.EscapeString(v)
}

func polygonElem(f Face) string {
	return fmt.Sprintf(`<polygon points="%s" fill="%s" stroke="%s" stroke-width="%s"/>`,
		pointsAttr(f.Points), attr(f.Fill), attr(f.Stroke), formatFloat(f.StrokeWidth))
}

func circleElem(c Circle) string {
	if c.Stroke == "" {
		return fmt.Sprintf(`<circle cx="%s" cy="%s" r="%s" fill="%s"/>`,
			formatFloat(c.Center.X), formatFloat(c.Center.Y), formatFloat(c.Radius), attr(c.Fill))
	}
	return fmt.Sprintf(`<circle cx="%s" cy="%s" r="%s" fill="%s" stroke="%s" stroke-width="%s"/>`,
		formatFloat(c.Center.X), formatFloat(c.Center.Y), formatFloat(c.Radius), attr(c.Fill),
		attr(c.Stroke), formatFloat(c.StrokeWidth))
}

// wedgeElem draws the sector as an SVG path. A sweep of 360 degrees or more
// is a full disc, which a single arc command cannot express.
func wedgeElem(wd Wedge) string {
	if wd.Radius <= 0 || wd.Sweep <= 0 {
		return ""
	}
	if wd.Sweep >= 360 {
		return circleElem(Circle{Center: wd.Center, Radius: wd.Radius, Fill: wd.Fill})
	}
	start := wd.ArcPoint(wd.Start)
	end := wd.ArcPoint(wd.Start + wd.Sweep)
	large := 0
	if wd.Sweep > 180 {
		large = 1
	}
	return fmt.Sprintf(`<path d="M %s %s L %s %s A %s %s 0 %d 1 %s %s Z" fill="%s"/>`,
		formatFloat(wd.Center.X), formatFloat(wd.Center.Y),
		formatFloat(start.X), formatFloat(start.Y),
		formatFloat(wd.Radius), formatFloat(wd.Radius), large,
		formatFloat(end.X), formatFloat(end.Y), attr(wd.Fill))
}

// ArcPoint returns the point on the wedge's rim at deg degrees
func (wd Wedge) ArcPoint(deg float64) geometry.Point {
	rad := deg * math.Pi / 180
	return geometry.Point{
		X: wd.Center.X + wd.Radius*math.Cos(rad),
		Y: wd.Center.Y + wd.Radius*math.Sin(rad),
	}
}

func pointsAttr(poly geometry.Polygon) string {
	parts := make([]string, 0, len(poly))
	for _, pt := range poly {
		parts = append(parts, formatFloat(pt.X)+","+formatFloat(pt.Y))
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
