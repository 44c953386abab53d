package editor

import (
	"fmt"

	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// SelectFloor makes f the working floor and clears the camera selection
func (s *Session) SelectFloor(f building.Floor) error {
	return s.mutate(func() ([]Change, error) {
		if !s.model.Range().Contains(f) {
			return nil, fmt.Errorf("%w: %s is not in range", building.ErrInvalidFloor, f)
		}
		prev := s.sel.Floor
		s.sel.Floor = &f
		s.sel.Camera = nil
		if prev == nil || *prev != f {
			s.sel.Zone = nil
		}
		return []Change{{Kind: ChangeSelection, Floor: f}}, nil
	})
}

// SelectCamera selects a camera and the floor that owns it
func (s *Session) SelectCamera(id int64) error {
	return s.mutate(func() ([]Change, error) {
		f, ok := s.model.FloorOfCamera(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", building.ErrCameraNotFound, id)
		}
		if s.sel.Floor == nil || *s.sel.Floor != f {
			s.sel.Zone = nil
		}
		s.sel.Floor = &f
		s.sel.Camera = &id
		return []Change{{Kind: ChangeSelection, Floor: f, ID: id}}, nil
	})
}

// SelectZone selects a zone on the working floor
func (s *Session) SelectZone(id int64) error {
	return s.mutate(func() ([]Change, error) {
		f, err := s.selectedFloor()
		if err != nil {
			return nil, err
		}
		if _, ok := s.model.Zone(f, id); !ok {
			return nil, fmt.Errorf("%w: %d on floor %s", building.ErrZoneNotFound, id, f)
		}
		s.sel.Zone = &id
		return []Change{{Kind: ChangeSelection, Floor: f, ID: id}}, nil
	})
}

// ClearSelection deselects everything
func (s *Session) ClearSelection() {
	_ = s.mutate(func() ([]Change, error) {
		s.sel = Selection{}
		return []Change{{Kind: ChangeSelection}}, nil
	})
}

// Selection returns the current selection
func (s *Session) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sel.clone()
}

// Hover marks an object as being under the pointer
func (s *Session) Hover(t Target) {
	_ = s.mutate(func() ([]Change, error) {
		s.hover = &t
		return []Change{{Kind: ChangeHover, ID: t.ID}}, nil
	})
}

// ClearHover removes the hover label
func (s *Session) ClearHover() {
	_ = s.mutate(func() ([]Change, error) {
		if s.hover == nil {
			return nil, nil
		}
		s.hover = nil
		return []Change{{Kind: ChangeHover}}, nil
	})
}

// Hovered returns the hovered object, if any
func (s *Session) Hovered() (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hover == nil {
		return Target{}, false
	}
	return *s.hover, true
}

// AddCamera places a default camera on the working floor and selects it
func (s *Session) AddCamera() (building.Camera, error) {
	var cam building.Camera
	err := s.mutate(func() ([]Change, error) {
		f, err := s.selectedFloor()
		if err != nil {
			return nil, err
		}
		if cam, err = s.model.AddCamera(f); err != nil {
			return nil, err
		}
		id := cam.ID
		s.sel.Camera = &id
		return []Change{
			{Kind: ChangeCamera, Floor: f, ID: id},
			{Kind: ChangeSelection, Floor: f, ID: id},
		}, nil
	})
	return cam, err
}

// AddZone places the default triangle on the working floor and selects it
func (s *Session) AddZone() (building.Zone, error) {
	var z building.Zone
	err := s.mutate(func() ([]Change, error) {
		f, err := s.selectedFloor()
		if err != nil {
			return nil, err
		}
		if z, err = s.model.AddZone(f); err != nil {
			return nil, err
		}
		id := z.ID
		s.sel.Zone = &id
		return []Change{
			{Kind: ChangeZone, Floor: f, ID: id},
			{Kind: ChangeSelection, Floor: f, ID: id},
		}, nil
	})
	return z, err
}

// DragCamera moves a camera on the working floor to a pixel position. The
// position is clamped so the whole icon stays on the canvas. Dragging
// clears any hover label.
func (s *Session) DragCamera(id int64, px, py float64) (building.Camera, error) {
	var cam building.Camera
	err := s.mutate(func() ([]Change, error) {
		f, err := s.selectedFloor()
		if err != nil {
			return nil, err
		}
		cur, ok := s.model.Camera(f, id)
		if !ok {
			return nil, fmt.Errorf("%w: %d on floor %s", building.ErrCameraNotFound, id, f)
		}

		size := cur.Pixels(s.canvas).Size
		px = geometry.Clamp(px, 0, s.canvas.Width-size)
		py = geometry.Clamp(py, 0, s.canvas.Height-size)

		nx := geometry.ToNormalized(px, s.canvas.Width)
		ny := geometry.ToNormalized(py, s.canvas.Height)
		if cam, err = s.model.MoveCamera(f, id, nx, ny); err != nil {
			return nil, err
		}

		changes := []Change{{Kind: ChangeCamera, Floor: f, ID: id}}
		if s.hover != nil {
			s.hover = nil
			changes = append(changes, Change{Kind: ChangeHover})
		}
		return changes, nil
	})
	return cam, err
}

// DragZoneVertex moves a vertex of the selected zone to a pixel position,
// clamped to the canvas. Only the selected zone's vertices can be dragged.
func (s *Session) DragZoneVertex(idx int, px, py float64) (building.Zone, error) {
	var z building.Zone
	err := s.mutate(func() ([]Change, error) {
		f, id, err := s.selectedZone()
		if err != nil {
			return nil, err
		}
		px = geometry.Clamp(px, 0, s.canvas.Width)
		py = geometry.Clamp(py, 0, s.canvas.Height)

		nx := geometry.ToNormalized(px, s.canvas.Width)
		ny := geometry.ToNormalized(py, s.canvas.Height)
		if z, err = s.model.UpdateZonePoint(f, id, idx, nx, ny); err != nil {
			return nil, err
		}

		changes := []Change{{Kind: ChangeZone, Floor: f, ID: id}}
		if s.hover != nil {
			s.hover = nil
			changes = append(changes, Change{Kind: ChangeHover})
		}
		return changes, nil
	})
	return z, err
}

// SetCameraProperty edits a scalar field of the selected camera
func (s *Session) SetCameraProperty(field building.CameraField, value float64) (building.Camera, error) {
	return s.editCamera(func(f building.Floor, id int64) (building.Camera, error) {
		return s.model.UpdateCameraProperty(f, id, field, value)
	})
}

// AssignZones replaces the selected camera's zone list
func (s *Session) AssignZones(zoneIDs []int64) (building.Camera, error) {
	return s.editCamera(func(f building.Floor, id int64) (building.Camera, error) {
		return s.model.AssignZonesToCamera(f, id, zoneIDs)
	})
}

// AssignHardware links the selected camera to a hardware camera
func (s *Session) AssignHardware(hardwareID string) (building.Camera, error) {
	return s.editCamera(func(f building.Floor, id int64) (building.Camera, error) {
		return s.model.AssignHardware(f, id, hardwareID)
	})
}

func (s *Session) editCamera(fn func(building.Floor, int64) (building.Camera, error)) (building.Camera, error) {
	var cam building.Camera
	err := s.mutate(func() ([]Change, error) {
		f, id, err := s.selectedCamera()
		if err != nil {
			return nil, err
		}
		if cam, err = fn(f, id); err != nil {
			return nil, err
		}
		return []Change{{Kind: ChangeCamera, Floor: f, ID: id}}, nil
	})
	return cam, err
}

// UpdateZonePoint sets a vertex of the selected zone in normalized units
func (s *Session) UpdateZonePoint(idx int, x, y float64) (building.Zone, error) {
	return s.editZone(func(f building.Floor, id int64) (building.Zone, error) {
		return s.model.UpdateZonePoint(f, id, idx, x, y)
	})
}

// AddZonePoint grows the selected zone by one vertex
func (s *Session) AddZonePoint() (building.Zone, error) {
	return s.editZone(func(f building.Floor, id int64) (building.Zone, error) {
		return s.model.AddZonePoint(f, id)
	})
}

// RemoveZonePoint shrinks the selected zone by one vertex. It reports false
// without changing anything when the zone is a triangle.
func (s *Session) RemoveZonePoint() (bool, error) {
	var removed bool
	err := s.mutate(func() ([]Change, error) {
		f, id, err := s.selectedZone()
		if err != nil {
			return nil, err
		}
		if removed, err = s.model.RemoveZonePoint(f, id); err != nil || !removed {
			return nil, err
		}
		return []Change{{Kind: ChangeZone, Floor: f, ID: id}}, nil
	})
	return removed, err
}

// CanRemoveZonePoint reports whether the selected zone has more than three vertices
func (s *Session) CanRemoveZonePoint() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, id, err := s.selectedZone()
	if err != nil {
		return false
	}
	return s.model.CanRemoveZonePoint(f, id)
}

func (s *Session) editZone(fn func(building.Floor, int64) (building.Zone, error)) (building.Zone, error) {
	var z building.Zone
	err := s.mutate(func() ([]Change, error) {
		f, id, err := s.selectedZone()
		if err != nil {
			return nil, err
		}
		if z, err = fn(f, id); err != nil {
			return nil, err
		}
		return []Change{{Kind: ChangeZone, Floor: f, ID: id}}, nil
	})
	return z, err
}
