package building

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// DefaultCanvasSize is the reference canvas used to migrate legacy pixel
// geometry when no live canvas size has been reported.
var DefaultCanvasSize = geometry.Size{Width: 800, Height: 800}

// defaultZoneTriangle is the starter polygon for new zones, normalized
var defaultZoneTriangle = []float64{0.0625, 0.0625, 0.1875, 0.0625, 0.125, 0.1875}

// CameraField names a scalar camera property that can be edited directly
type CameraField string

const (
	FieldX          CameraField = "x"
	FieldY          CameraField = "y"
	FieldRotation   CameraField = "rotation"
	FieldViewRadius CameraField = "viewRadius"
	FieldViewAngle  CameraField = "viewAngle"
	FieldSize       CameraField = "size"
)

// ParseCameraField validates a field name received from a form or request
func ParseCameraField(s string) (CameraField, error) {
	switch f := CameraField(s); f {
	case FieldX, FieldY, FieldRotation, FieldViewRadius, FieldViewAngle, FieldSize:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Model is the in-memory layout of one building.
//
// Every mutation installs freshly copied floor maps and slices instead of
// writing into existing ones, so a Config returned by Snapshot is never
// affected by later edits. Model is not safe for concurrent use; callers
// serialize access (see editor.Session).
type Model struct {
	name        string
	rng         FloorRange
	backgrounds map[Floor]string
	cameras     map[Floor][]Camera
	zones       map[Floor][]Zone
	canvas      geometry.Size

	now    func() time.Time
	lastID int64
}

// NewModel creates an empty single-floor building
func NewModel() *Model {
	return &Model{
		rng:         DefaultFloorRange,
		backgrounds: map[Floor]string{},
		cameras:     map[Floor][]Camera{},
		zones:       map[Floor][]Zone{},
		canvas:      DefaultCanvasSize,
		now:         time.Now,
	}
}

// SetClock replaces the time source used for id generation
func (m *Model) SetClock(now func() time.Time) {
	m.now = now
}

// nextID returns a time-based id, bumped when the clock has not advanced
func (m *Model) nextID() int64 {
	id := m.now().UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	return id
}

// observeID keeps generated ids ahead of ids loaded from documents
func (m *Model) observeID(id int64) {
	if id > m.lastID {
		m.lastID = id
	}
}

func withFloor[V any](src map[Floor]V, f Floor, v V) map[Floor]V {
	dst := maps.Clone(src)
	if dst == nil {
		dst = make(map[Floor]V)
	}
	dst[f] = v
	return dst
}

func checkFloor(f Floor) error {
	if f == 0 {
		return fmt.Errorf("%w: floor 0 does not exist", ErrInvalidFloor)
	}
	return nil
}

// Name returns the building display name
func (m *Model) Name() string { return m.name }

// SetName sets the building display name
func (m *Model) SetName(name string) { m.name = name }

// Range returns the current floor range
func (m *Model) Range() FloorRange { return m.rng }

// CanvasSize returns the reference canvas used for legacy migration
func (m *Model) CanvasSize() geometry.Size { return m.canvas }

// SetCanvasSize records the live canvas size. Zero sizes are ignored.
func (m *Model) SetCanvasSize(s geometry.Size) {
	if s.IsZero() {
		return
	}
	m.canvas = s
}

// SetFloorRange changes how many floors are reachable. Data on floors that
// fall outside the new range is kept and reappears when the range grows back.
func (m *Model) SetFloorRange(above, below int) error {
	r := FloorRange{Above: above, Below: below}
	if err := r.Validate(); err != nil {
		return err
	}
	m.rng = r
	return nil
}

// SetBackground replaces a floor's plan image reference
func (m *Model) SetBackground(f Floor, ref string) error {
	if err := checkFloor(f); err != nil {
		return err
	}
	m.backgrounds = withFloor(m.backgrounds, f, ref)
	return nil
}

// Background returns a floor's plan image reference
func (m *Model) Background(f Floor) string {
	return m.backgrounds[f]
}

// AddCamera appends a default camera to a floor
func (m *Model) AddCamera(f Floor) (Camera, error) {
	if err := checkFloor(f); err != nil {
		return Camera{}, err
	}
	cam := Camera{
		ID:            m.nextID(),
		Space:         SpaceNormalized,
		X:             DefaultCameraX,
		Y:             DefaultCameraY,
		Rotation:      DefaultCameraRotation,
		ViewRadius:    DefaultCameraViewRadius,
		ViewAngle:     DefaultCameraViewAngle,
		Size:          DefaultCameraSize,
		AssignedZones: []int64{},
	}
	cams := append(append([]Camera(nil), m.cameras[f]...), cam)
	m.cameras = withFloor(m.cameras, f, cams)
	return cam.clone(), nil
}

// Cameras returns a copy of a floor's camera list
func (m *Model) Cameras(f Floor) []Camera {
	src := m.cameras[f]
	out := make([]Camera, len(src))
	for i, c := range src {
		out[i] = c.clone()
	}
	return out
}

// Camera looks up a camera on a floor
func (m *Model) Camera(f Floor, id int64) (Camera, bool) {
	for _, c := range m.cameras[f] {
		if c.ID == id {
			return c.clone(), true
		}
	}
	return Camera{}, false
}

// FloorOfCamera finds which floor a camera lives on
func (m *Model) FloorOfCamera(id int64) (Floor, bool) {
	for f, cams := range m.cameras {
		for _, c := range cams {
			if c.ID == id {
				return f, true
			}
		}
	}
	return 0, false
}

// updateCamera copies the floor's camera slice, applies fn to the matching
// camera and installs the result
func (m *Model) updateCamera(f Floor, id int64, fn func(*Camera) error) (Camera, error) {
	cams := m.cameras[f]
	idx := -1
	for i, c := range cams {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Camera{}, fmt.Errorf("%w: %d on floor %s", ErrCameraNotFound, id, f)
	}

	cam := cams[idx].clone()
	if err := fn(&cam); err != nil {
		return Camera{}, err
	}

	next := append([]Camera(nil), cams...)
	next[idx] = cam
	m.cameras = withFloor(m.cameras, f, next)
	return cam.clone(), nil
}

// UpdateCameraProperty sets one scalar field. Geometric fields take
// normalized values; a legacy camera is migrated to normalized first.
func (m *Model) UpdateCameraProperty(f Floor, id int64, field CameraField, value float64) (Camera, error) {
	if _, err := ParseCameraField(string(field)); err != nil {
		return Camera{}, err
	}
	return m.updateCamera(f, id, func(c *Camera) error {
		*c = c.Normalized(m.canvas)
		switch field {
		case FieldX:
			c.X = value
		case FieldY:
			c.Y = value
		case FieldRotation:
			c.Rotation = value
		case FieldViewRadius:
			c.ViewRadius = value
		case FieldViewAngle:
			c.ViewAngle = value
		case FieldSize:
			c.Size = value
		}
		return nil
	})
}

// MoveCamera sets a camera's normalized top-left position
func (m *Model) MoveCamera(f Floor, id int64, x, y float64) (Camera, error) {
	return m.updateCamera(f, id, func(c *Camera) error {
		*c = c.Normalized(m.canvas)
		c.X, c.Y = x, y
		return nil
	})
}

// AssignZonesToCamera replaces the camera's zone list wholesale
func (m *Model) AssignZonesToCamera(f Floor, id int64, zoneIDs []int64) (Camera, error) {
	return m.updateCamera(f, id, func(c *Camera) error {
		c.AssignedZones = append([]int64{}, zoneIDs...)
		return nil
	})
}

// AssignHardware links a camera to a hardware camera id. Empty clears the link.
func (m *Model) AssignHardware(f Floor, id int64, hardwareID string) (Camera, error) {
	return m.updateCamera(f, id, func(c *Camera) error {
		c.HardwareID = hardwareID
		return nil
	})
}

// AddZone appends the default triangle to a floor
func (m *Model) AddZone(f Floor) (Zone, error) {
	if err := checkFloor(f); err != nil {
		return Zone{}, err
	}
	z := Zone{
		ID:     m.nextID(),
		Space:  SpaceNormalized,
		Points: append([]float64(nil), defaultZoneTriangle...),
		Fill:   DefaultZoneFill,
	}
	zones := append(append([]Zone(nil), m.zones[f]...), z)
	m.zones = withFloor(m.zones, f, zones)
	return z.clone(), nil
}

// Zones returns a copy of a floor's zone list
func (m *Model) Zones(f Floor) []Zone {
	src := m.zones[f]
	out := make([]Zone, len(src))
	for i, z := range src {
		out[i] = z.clone()
	}
	return out
}

// Zone looks up a zone on a floor
func (m *Model) Zone(f Floor, id int64) (Zone, bool) {
	for _, z := range m.zones[f] {
		if z.ID == id {
			return z.clone(), true
		}
	}
	return Zone{}, false
}

func (m *Model) updateZone(f Floor, id int64, fn func(*Zone) error) (Zone, error) {
	zones := m.zones[f]
	idx := -1
	for i, z := range zones {
		if z.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Zone{}, fmt.Errorf("%w: %d on floor %s", ErrZoneNotFound, id, f)
	}

	z := zones[idx].clone()
	if err := fn(&z); err != nil {
		return Zone{}, err
	}

	next := append([]Zone(nil), zones...)
	next[idx] = z
	m.zones = withFloor(m.zones, f, next)
	return z.clone(), nil
}

// UpdateZonePoint replaces vertex idx with a normalized (x,y)
func (m *Model) UpdateZonePoint(f Floor, id int64, idx int, x, y float64) (Zone, error) {
	return m.updateZone(f, id, func(z *Zone) error {
		if idx < 0 || idx >= z.Vertices() {
			return fmt.Errorf("%w: %d of %d", ErrPointIndex, idx, z.Vertices())
		}
		*z = z.Normalized(m.canvas)
		z.Points[2*idx] = x
		z.Points[2*idx+1] = y
		return nil
	})
}

// AddZonePoint inserts the midpoint of the first edge as the second vertex
func (m *Model) AddZonePoint(f Floor, id int64) (Zone, error) {
	return m.updateZone(f, id, func(z *Zone) error {
		if z.Vertices() < 2 {
			return fmt.Errorf("%w: zone %d has %d vertices", ErrPointIndex, id, z.Vertices())
		}
		*z = z.Normalized(m.canvas)
		p := z.Points
		mid := geometry.Point{X: p[0], Y: p[1]}.Midpoint(geometry.Point{X: p[2], Y: p[3]})

		pts := make([]float64, 0, len(p)+2)
		pts = append(pts, p[0], p[1], mid.X, mid.Y)
		pts = append(pts, p[2:]...)
		z.Points = pts
		return nil
	})
}

// CanRemoveZonePoint reports whether the zone has more than a triangle
func (m *Model) CanRemoveZonePoint(f Floor, id int64) bool {
	z, ok := m.Zone(f, id)
	return ok && z.Vertices() > MinZoneVertices
}

// RemoveZonePoint drops the last vertex. At three vertices it does nothing
// and returns false.
func (m *Model) RemoveZonePoint(f Floor, id int64) (bool, error) {
	z, ok := m.Zone(f, id)
	if !ok {
		return false, fmt.Errorf("%w: %d on floor %s", ErrZoneNotFound, id, f)
	}
	if z.Vertices() <= MinZoneVertices {
		return false, nil
	}
	_, err := m.updateZone(f, id, func(z *Zone) error {
		*z = z.Normalized(m.canvas)
		z.Points = z.Points[:len(z.Points)-2]
		return nil
	})
	return err == nil, err
}

// FloorEntry is one row of the floor tree
type FloorEntry struct {
	Floor   Floor   `json:"floor"`
	Cameras []int64 `json:"cameras"`
}

// FloorTree lists reachable floors from the top down with their camera ids
func (m *Model) FloorTree() []FloorEntry {
	floors := m.rng.Floors()
	out := make([]FloorEntry, 0, len(floors))
	for _, f := range floors {
		ids := make([]int64, 0, len(m.cameras[f]))
		for _, c := range m.cameras[f] {
			ids = append(ids, c.ID)
		}
		out = append(out, FloorEntry{Floor: f, Cameras: ids})
	}
	return out
}

// StoredFloors returns every floor holding any data, reachable or not,
// in descending order
func (m *Model) StoredFloors() []Floor {
	seen := map[Floor]bool{}
	for f := range m.backgrounds {
		seen[f] = true
	}
	for f := range m.cameras {
		seen[f] = true
	}
	for f := range m.zones {
		seen[f] = true
	}
	out := make([]Floor, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// Snapshot returns a deep copy of the whole layout
func (m *Model) Snapshot() Config {
	return Config{
		Name:        m.name,
		Range:       m.rng,
		Backgrounds: m.backgrounds,
		Cameras:     m.cameras,
		Zones:       m.zones,
	}.Clone()
}

// Restore replaces the whole layout
func (m *Model) Restore(cfg Config) error {
	return m.Apply(cfg, AllFields)
}

// Fields marks which parts of a Config carry data
type Fields struct {
	Name        bool
	Above       bool
	Below       bool
	Backgrounds bool
	Cameras     bool
	Zones       bool
}

// AllFields selects every part of a Config
var AllFields = Fields{Name: true, Above: true, Below: true, Backgrounds: true, Cameras: true, Zones: true}

// Apply assigns the selected parts of cfg wholesale. The model is left
// unchanged if the resulting floor range would be invalid.
func (m *Model) Apply(cfg Config, fields Fields) error {
	rng := m.rng
	if fields.Above {
		rng.Above = cfg.Range.Above
	}
	if fields.Below {
		rng.Below = cfg.Range.Below
	}
	if err := rng.Validate(); err != nil {
		return err
	}

	cfg = cfg.Clone()
	m.rng = rng
	if fields.Name {
		m.name = cfg.Name
	}
	if fields.Backgrounds {
		m.backgrounds = cfg.Backgrounds
	}
	if fields.Cameras {
		m.cameras = cfg.Cameras
		for _, cams := range cfg.Cameras {
			for _, c := range cams {
				m.observeID(c.ID)
			}
		}
	}
	if fields.Zones {
		m.zones = cfg.Zones
		for _, zones := range cfg.Zones {
			for _, z := range zones {
				m.observeID(z.ID)
			}
		}
	}
	return nil
}
