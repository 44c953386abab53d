package render

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fogleman/gg"

	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// DecodeBackground reads a PNG or JPEG floor plan
func DecodeBackground(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	return img, nil
}

// StackPNG rasterizes the floor stack
func StackPNG(w io.Writer, s Stack) error {
	dc := gg.NewContext(int(math.Ceil(s.Width)), int(math.Ceil(s.Height)))
	fillBackground(dc, "#fff")

	for _, slab := range s.Below {
		drawSlab(dc, slab)
	}
	for _, face := range s.Platform {
		drawFace(dc, face)
	}
	drawCircle(dc, s.Marker)
	for _, slab := range s.Above {
		drawSlab(dc, slab)
	}
	return dc.EncodePNG(w)
}

// CanvasPNG rasterizes a floor canvas. bg, when not nil, is stretched over
// the whole canvas.
func CanvasPNG(w io.Writer, c Canvas, bg image.Image) error {
	dc := gg.NewContext(int(math.Ceil(c.Size.Width)), int(math.Ceil(c.Size.Height)))
	fillBackground(dc, canvasFill)

	if bg != nil {
		b := bg.Bounds()
		if b.Dx() > 0 && b.Dy() > 0 {
			dc.Push()
			dc.Scale(c.Size.Width/float64(b.Dx()), c.Size.Height/float64(b.Dy()))
			dc.DrawImage(bg, -b.Min.X, -b.Min.Y)
			dc.Pop()
		}
	}

	for _, z := range c.Zones {
		drawFace(dc, z.Outline)
		for _, h := range z.Handles {
			drawCircle(dc, h.Circle)
		}
	}

	for _, cam := range c.Cameras {
		drawWedge(dc, cam.View)
		drawCircle(dc, cam.Badge)
		drawGlyph(dc, cam.Box)
	}

	if c.Label != nil {
		box := c.Label.Box()
		dc.SetColor(color.NRGBA{A: 191})
		dc.DrawRoundedRectangle(box.X, box.Y, box.Width, box.Height, 3)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawStringAnchored(c.Label.Text, box.X+labelPadding, box.Y+box.Height/2, 0, 0.35)
	}
	return dc.EncodePNG(w)
}

func fillBackground(dc *gg.Context, fill string) {
	dc.SetColor(parseColor(fill))
	dc.Clear()
}

func drawSlab(dc *gg.Context, s Slab) {
	drawFace(dc, s.Left)
	drawFace(dc, s.Right)
	drawFace(dc, s.Top)
	dc.SetColor(parseColor(s.Caption.Fill))
	dc.DrawString(s.Caption.Value, s.Caption.At.X, s.Caption.At.Y+s.Caption.FontSize)
}

func drawFace(dc *gg.Context, f Face) {
	if len(f.Points) == 0 {
		return
	}
	dc.NewSubPath()
	dc.MoveTo(f.Points[0].X, f.Points[0].Y)
	for _, pt := range f.Points[1:] {
		dc.LineTo(pt.X, pt.Y)
	}
	dc.ClosePath()
	dc.SetColor(parseColor(f.Fill))
	if f.Stroke == "" || f.StrokeWidth <= 0 {
		dc.Fill()
		return
	}
	dc.FillPreserve()
	dc.SetColor(parseColor(f.Stroke))
	dc.SetLineWidth(f.StrokeWidth)
	dc.Stroke()
}

func drawCircle(dc *gg.Context, c Circle) {
	dc.DrawCircle(c.Center.X, c.Center.Y, c.Radius)
	dc.SetColor(parseColor(c.Fill))
	if c.Stroke == "" || c.StrokeWidth <= 0 {
		dc.Fill()
		return
	}
	dc.FillPreserve()
	dc.SetColor(parseColor(c.Stroke))
	dc.SetLineWidth(c.StrokeWidth)
	dc.Stroke()
}

func drawWedge(dc *gg.Context, wd Wedge) {
	if wd.Radius <= 0 || wd.Sweep <= 0 {
		return
	}
	dc.SetColor(parseColor(wd.Fill))
	if wd.Sweep >= 360 {
		dc.DrawCircle(wd.Center.X, wd.Center.Y, wd.Radius)
		dc.Fill()
		return
	}
	start := wd.ArcPoint(wd.Start)
	dc.NewSubPath()
	dc.MoveTo(wd.Center.X, wd.Center.Y)
	dc.LineTo(start.X, start.Y)
	dc.DrawArc(wd.Center.X, wd.Center.Y, wd.Radius, gg.Radians(wd.Start), gg.Radians(wd.Start+wd.Sweep))
	dc.ClosePath()
	dc.Fill()
}

// drawGlyph approximates the camera icon with a body and a lens
func drawGlyph(dc *gg.Context, box geometry.Rect) {
	u := box.Width / 24
	dc.SetColor(color.Black)
	dc.DrawRoundedRectangle(box.X+2*u, box.Y+5*u, 20*u, 14*u, 2*u)
	dc.Fill()
	dc.DrawRectangle(box.X+9*u, box.Y+3*u, 6*u, 2*u)
	dc.Fill()
	dc.SetColor(color.White)
	dc.DrawCircle(box.X+12*u, box.Y+12*u, 3.2*u)
	dc.Fill()
}

var namedColors = map[string]color.NRGBA{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"gray":        {128, 128, 128, 255},
	"lightgray":   {211, 211, 211, 255},
	"transparent": {},
}

// parseColor understands the colour forms used by scenes: names, #rgb,
// #rrggbb, rgb() and rgba(). Anything else is drawn black.
func parseColor(s string) color.Color {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	if open := strings.IndexByte(s, '('); open > 0 && strings.HasSuffix(s, ")") {
		parts := strings.Split(s[open+1:len(s)-1], ",")
		if len(parts) < 3 {
			return color.Black
		}
		c := color.NRGBA{A: 255}
		ch := []*uint8{&c.R, &c.G, &c.B}
		for i, p := range parts[:3] {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return color.Black
			}
			*ch[i] = uint8(max(0, min(255, v)))
		}
		if len(parts) == 4 {
			a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err != nil {
				return color.Black
			}
			c.A = uint8(math.Round(math.Max(0, math.Min(1, a)) * 255))
		}
		return c
	}
	return color.Black
}

func parseHex(h string) color.Color {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.Black
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.Black
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}
