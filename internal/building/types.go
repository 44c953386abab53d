// Package building holds the spatial model of one building: its floor range,
// per-floor plan backgrounds, placed cameras and zone polygons.
package building

import (
	"encoding/json"
	"fmt"

	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// Floor is a vertical level. Positive floors are above ground, negative below.
// Zero is never a valid floor.
type Floor int

// String renders the floor the way the floor tree labels it
func (f Floor) String() string {
	if f > 0 {
		return fmt.Sprintf("+%d", int(f))
	}
	return fmt.Sprintf("%d", int(f))
}

// FloorRange is the number of floors above and below ground
type FloorRange struct {
	Above int `json:"aboveCount"`
	Below int `json:"belowCount"`
}

// DefaultFloorRange is a single ground-level floor
var DefaultFloorRange = FloorRange{Above: 1, Below: 0}

// Validate checks floor +1 exists and the basement count is not negative
func (r FloorRange) Validate() error {
	if r.Above < 1 {
		return fmt.Errorf("%w: above-ground count must be at least 1, got %d", ErrInvalidRange, r.Above)
	}
	if r.Below < 0 {
		return fmt.Errorf("%w: below-ground count must not be negative, got %d", ErrInvalidRange, r.Below)
	}
	return nil
}

// Floors lists the reachable floors from the top down, skipping zero
func (r FloorRange) Floors() []Floor {
	floors := make([]Floor, 0, r.Above+r.Below)
	for f := r.Above; f >= 1; f-- {
		floors = append(floors, Floor(f))
	}
	for f := -1; f >= -r.Below; f-- {
		floors = append(floors, Floor(f))
	}
	return floors
}

// Contains reports whether f is reachable in this range
func (r FloorRange) Contains(f Floor) bool {
	if f > 0 {
		return int(f) <= r.Above
	}
	if f < 0 {
		return int(-f) <= r.Below
	}
	return false
}

// CoordSpace tags which representation an object's geometry uses
type CoordSpace int

const (
	// SpaceNormalized stores fractions of the canvas size
	SpaceNormalized CoordSpace = iota
	// SpaceAbsolute stores pixels from documents exported before normalization
	SpaceAbsolute
)

func (s CoordSpace) String() string {
	if s == SpaceAbsolute {
		return "absolute"
	}
	return "normalized"
}

// Camera defaults for newly placed cameras, in normalized units
const (
	DefaultCameraX          = 0.5
	DefaultCameraY          = 0.5
	DefaultCameraRotation   = 0.0
	DefaultCameraViewRadius = 0.2
	DefaultCameraViewAngle  = 60.0
	DefaultCameraSize       = 0.03
)

// Legacy pixel defaults applied when an absolute document omits a field
const (
	legacyViewRadius = 100.0
	legacyIconSize   = 24.0
)

// DefaultZoneFill is the translucent red used for new zones
const DefaultZoneFill = "rgba(255,0,0,0.2)"

// Camera is a logical camera icon placed on a floor plan
type Camera struct {
	ID            int64      `json:"id"`
	Space         CoordSpace `json:"-"`
	X             float64    `json:"-"`
	Y             float64    `json:"-"`
	ViewRadius    float64    `json:"-"`
	Size          float64    `json:"-"`
	Rotation      float64    `json:"rotation"`
	ViewAngle     float64    `json:"viewAngle"`
	AssignedZones []int64    `json:"assignedZones"`
	HardwareID    string     `json:"hardwareId,omitempty"`
}

// cameraJSON is the wire form; exactly one of the two field groups is emitted
type cameraJSON struct {
	ID             int64    `json:"id"`
	XNorm          *float64 `json:"xNorm,omitempty"`
	YNorm          *float64 `json:"yNorm,omitempty"`
	ViewRadiusNorm *float64 `json:"viewRadiusNorm,omitempty"`
	SizeNorm       *float64 `json:"sizeNorm,omitempty"`
	X              *float64 `json:"x,omitempty"`
	Y              *float64 `json:"y,omitempty"`
	ViewRadius     *float64 `json:"viewRadius,omitempty"`
	Size           *float64 `json:"size,omitempty"`
	Rotation       float64  `json:"rotation"`
	ViewAngle      float64  `json:"viewAngle"`
	AssignedZones  []int64  `json:"assignedZones"`
	HardwareID     string   `json:"hardwareId,omitempty"`
}

// MarshalJSON writes normalized or legacy fields depending on Space
func (c Camera) MarshalJSON() ([]byte, error) {
	out := cameraJSON{
		ID:            c.ID,
		Rotation:      c.Rotation,
		ViewAngle:     c.ViewAngle,
		AssignedZones: c.AssignedZones,
		HardwareID:    c.HardwareID,
	}
	if out.AssignedZones == nil {
		out.AssignedZones = []int64{}
	}
	x, y, r, s := c.X, c.Y, c.ViewRadius, c.Size
	if c.Space == SpaceAbsolute {
		out.X, out.Y, out.ViewRadius, out.Size = &x, &y, &r, &s
	} else {
		out.XNorm, out.YNorm, out.ViewRadiusNorm, out.SizeNorm = &x, &y, &r, &s
	}
	return json.Marshal(out)
}

// UnmarshalJSON prefers normalized fields when a position is present in both forms
func (c *Camera) UnmarshalJSON(data []byte) error {
	var in cameraJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*c = Camera{
		ID:            in.ID,
		Rotation:      in.Rotation,
		ViewAngle:     in.ViewAngle,
		AssignedZones: in.AssignedZones,
		HardwareID:    in.HardwareID,
	}

	if in.XNorm != nil && in.YNorm != nil {
		c.Space = SpaceNormalized
		c.X, c.Y = *in.XNorm, *in.YNorm
		c.ViewRadius = valueOr(in.ViewRadiusNorm, DefaultCameraViewRadius)
		c.Size = valueOr(in.SizeNorm, DefaultCameraSize)
		return nil
	}

	c.Space = SpaceAbsolute
	c.X = valueOr(in.X, 0)
	c.Y = valueOr(in.Y, 0)
	c.ViewRadius = valueOr(in.ViewRadius, legacyViewRadius)
	c.Size = valueOr(in.Size, legacyIconSize)
	return nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// CameraPixels is a camera's geometry resolved onto a concrete canvas
type CameraPixels struct {
	X, Y       float64 // top-left of the icon
	ViewRadius float64
	Size       float64
}

// Center returns the icon center, which is also the wedge origin
func (p CameraPixels) Center() geometry.Point {
	return geometry.Point{X: p.X + p.Size/2, Y: p.Y + p.Size/2}
}

// Pixels resolves the camera onto a canvas. Positions scale by width and
// height, radius and icon size by the larger dimension.
func (c Camera) Pixels(canvas geometry.Size) CameraPixels {
	if c.Space == SpaceAbsolute {
		return CameraPixels{X: c.X, Y: c.Y, ViewRadius: c.ViewRadius, Size: c.Size}
	}
	ref := canvas.Ref()
	return CameraPixels{
		X:          geometry.ToPixels(c.X, canvas.Width),
		Y:          geometry.ToPixels(c.Y, canvas.Height),
		ViewRadius: geometry.ToPixels(c.ViewRadius, ref),
		Size:       geometry.ToPixels(c.Size, ref),
	}
}

// Normalized returns the camera migrated to normalized fields
func (c Camera) Normalized(canvas geometry.Size) Camera {
	if c.Space == SpaceNormalized {
		return c
	}
	ref := canvas.Ref()
	c.Space = SpaceNormalized
	c.X = geometry.ToNormalized(c.X, canvas.Width)
	c.Y = geometry.ToNormalized(c.Y, canvas.Height)
	c.ViewRadius = geometry.ToNormalized(c.ViewRadius, ref)
	c.Size = geometry.ToNormalized(c.Size, ref)
	return c
}

func (c Camera) clone() Camera {
	if c.AssignedZones != nil {
		c.AssignedZones = append([]int64(nil), c.AssignedZones...)
	}
	return c
}

// MinZoneVertices is the smallest polygon a zone may shrink to
const MinZoneVertices = 3

// Zone is a polygon region on a floor plan, assignable to cameras
type Zone struct {
	ID     int64      `json:"id"`
	Space  CoordSpace `json:"-"`
	Points []float64  `json:"-"` // flattened [x0,y0,x1,y1,...]
	Fill   string     `json:"fill,omitempty"`
}

type zoneJSON struct {
	ID         int64     `json:"id"`
	PointsNorm []float64 `json:"pointsNorm,omitempty"`
	Points     []float64 `json:"points,omitempty"`
	Fill       string    `json:"fill,omitempty"`
}

// MarshalJSON writes pointsNorm or legacy points depending on Space
func (z Zone) MarshalJSON() ([]byte, error) {
	out := zoneJSON{ID: z.ID, Fill: z.Fill}
	pts := z.Points
	if pts == nil {
		pts = []float64{}
	}
	if z.Space == SpaceAbsolute {
		out.Points = pts
	} else {
		out.PointsNorm = pts
	}
	return json.Marshal(out)
}

// UnmarshalJSON prefers pointsNorm when both lists are present
func (z *Zone) UnmarshalJSON(data []byte) error {
	var in zoneJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*z = Zone{ID: in.ID, Fill: in.Fill}
	if in.PointsNorm != nil {
		z.Space = SpaceNormalized
		z.Points = in.PointsNorm
	} else {
		z.Space = SpaceAbsolute
		z.Points = in.Points
	}
	if len(z.Points)%2 != 0 {
		return fmt.Errorf("zone %d: odd number of coordinates (%d)", z.ID, len(z.Points))
	}
	if z.Vertices() < MinZoneVertices {
		return fmt.Errorf("zone %d: %d vertices, need at least %d", z.ID, z.Vertices(), MinZoneVertices)
	}
	return nil
}

// Vertices returns the number of (x,y) pairs
func (z Zone) Vertices() int {
	return len(z.Points) / 2
}

// PixelPoints resolves the polygon onto a canvas
func (z Zone) PixelPoints(canvas geometry.Size) []float64 {
	if z.Space == SpaceAbsolute {
		return append([]float64(nil), z.Points...)
	}
	return canvas.DenormalizeFlat(z.Points)
}

// Normalized returns the zone migrated to normalized points
func (z Zone) Normalized(canvas geometry.Size) Zone {
	if z.Space == SpaceNormalized {
		return z
	}
	z.Space = SpaceNormalized
	z.Points = canvas.NormalizeFlat(z.Points)
	return z
}

func (z Zone) clone() Zone {
	z.Points = append([]float64(nil), z.Points...)
	return z
}

// Config is the full layout of one building
type Config struct {
	Name        string
	Range       FloorRange
	Backgrounds map[Floor]string
	Cameras     map[Floor][]Camera
	Zones       map[Floor][]Zone
}

// Clone returns a deep copy
func (c Config) Clone() Config {
	out := Config{
		Name:        c.Name,
		Range:       c.Range,
		Backgrounds: make(map[Floor]string, len(c.Backgrounds)),
		Cameras:     make(map[Floor][]Camera, len(c.Cameras)),
		Zones:       make(map[Floor][]Zone, len(c.Zones)),
	}
	for f, bg := range c.Backgrounds {
		out.Backgrounds[f] = bg
	}
	for f, cams := range c.Cameras {
		cp := make([]Camera, len(cams))
		for i, cam := range cams {
			cp[i] = cam.clone()
		}
		out.Cameras[f] = cp
	}
	for f, zones := range c.Zones {
		cp := make([]Zone, len(zones))
		for i, z := range zones {
			cp[i] = z.clone()
		}
		out.Zones[f] = cp
	}
	return out
}

// FloorData is everything drawn on one floor's canvas
type FloorData struct {
	Floor      Floor
	Background string
	Cameras    []Camera
	Zones      []Zone
}

// Floor extracts one floor's data
func (c Config) Floor(f Floor) FloorData {
	return FloorData{
		Floor:      f,
		Background: c.Backgrounds[f],
		Cameras:    c.Cameras[f],
		Zones:      c.Zones[f],
	}
}
