package building

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/Spatial-NVR/constructor/internal/geometry"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestFloorRangeFloors(t *testing.T) {
	tests := []struct {
		name     string
		rng      FloorRange
		expected []Floor
	}{
		{"single floor", FloorRange{1, 0}, []Floor{1}},
		{"three up one down", FloorRange{3, 1}, []Floor{3, 2, 1, -1}},
		{"two basements", FloorRange{2, 2}, []Floor{2, 1, -1, -2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rng.Floors(); !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Floors() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestFloorRangeValidate(t *testing.T) {
	tests := []struct {
		rng     FloorRange
		wantErr bool
	}{
		{FloorRange{1, 0}, false},
		{FloorRange{5, 3}, false},
		{FloorRange{0, 0}, true},
		{FloorRange{1, -1}, true},
	}
	for _, tc := range tests {
		err := tc.rng.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tc.rng, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidRange) {
			t.Errorf("expected ErrInvalidRange, got %v", err)
		}
	}
}

func TestFloorTreeOrder(t *testing.T) {
	m := NewModel()
	if err := m.SetFloorRange(3, 1); err != nil {
		t.Fatalf("SetFloorRange failed: %v", err)
	}

	var got []Floor
	for _, e := range m.FloorTree() {
		got = append(got, e.Floor)
	}
	if !reflect.DeepEqual(got, []Floor{3, 2, 1, -1}) {
		t.Errorf("floor tree = %v, want [3 2 1 -1]", got)
	}
}

func TestAddCameraDefaults(t *testing.T) {
	m := NewModel()
	m.SetClock(fixedClock(1000))

	cam, err := m.AddCamera(1)
	if err != nil {
		t.Fatalf("AddCamera failed: %v", err)
	}
	if cam.Space != SpaceNormalized {
		t.Errorf("new camera space = %v, want normalized", cam.Space)
	}
	if cam.X != 0.5 || cam.Y != 0.5 || cam.Rotation != 0 || cam.ViewRadius != 0.2 || cam.ViewAngle != 60 || cam.Size != 0.03 {
		t.Errorf("unexpected defaults: %+v", cam)
	}

	second, _ := m.AddCamera(1)
	if second.ID == cam.ID {
		t.Errorf("ids must be unique even when the clock does not advance")
	}
	if len(m.Cameras(1)) != 2 {
		t.Errorf("expected 2 cameras on floor 1, got %d", len(m.Cameras(1)))
	}

	if _, err := m.AddCamera(0); !errors.Is(err, ErrInvalidFloor) {
		t.Errorf("AddCamera(0) error = %v, want ErrInvalidFloor", err)
	}
}

func TestUpdateCameraProperty(t *testing.T) {
	m := NewModel()
	cam, _ := m.AddCamera(2)

	updated, err := m.UpdateCameraProperty(2, cam.ID, FieldRotation, 135)
	if err != nil {
		t.Fatalf("UpdateCameraProperty failed: %v", err)
	}
	if updated.Rotation != 135 {
		t.Errorf("rotation = %v, want 135", updated.Rotation)
	}

	if _, err := m.UpdateCameraProperty(2, cam.ID, "zoom", 1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field error = %v", err)
	}
	if _, err := m.UpdateCameraProperty(3, cam.ID, FieldX, 0.1); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("wrong floor error = %v", err)
	}
}

func TestLegacyCameraMigratesOnEdit(t *testing.T) {
	m := NewModel()
	m.SetCanvasSize(geometry.Size{Width: 1000, Height: 500})
	legacy := Camera{ID: 7, Space: SpaceAbsolute, X: 250, Y: 100, ViewRadius: 100, Size: 24, ViewAngle: 90}
	if err := m.Restore(Config{Range: DefaultFloorRange, Cameras: map[Floor][]Camera{1: {legacy}}}); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	cam, err := m.UpdateCameraProperty(1, 7, FieldViewAngle, 45)
	if err != nil {
		t.Fatalf("UpdateCameraProperty failed: %v", err)
	}
	if cam.Space != SpaceNormalized {
		t.Fatalf("camera should migrate to normalized on edit")
	}
	if cam.X != 0.25 || cam.Y != 0.2 || cam.ViewRadius != 0.1 {
		t.Errorf("migrated geometry = %+v", cam)
	}
	if math.Abs(cam.Size-0.024) > 1e-12 {
		t.Errorf("migrated size = %v, want 0.024", cam.Size)
	}
}

func TestZonePointAddRemove(t *testing.T) {
	m := NewModel()
	z, err := m.AddZone(1)
	if err != nil {
		t.Fatalf("AddZone failed: %v", err)
	}
	if z.Vertices() != 3 || z.Fill != DefaultZoneFill {
		t.Fatalf("unexpected default zone: %+v", z)
	}

	if m.CanRemoveZonePoint(1, z.ID) {
		t.Error("triangle should not allow point removal")
	}
	removed, err := m.RemoveZonePoint(1, z.ID)
	if err != nil || removed {
		t.Errorf("RemoveZonePoint on triangle = %v, %v; want false, nil", removed, err)
	}
	if got, _ := m.Zone(1, z.ID); got.Vertices() != 3 {
		t.Errorf("triangle changed after refused removal: %v", got.Points)
	}

	grown, err := m.AddZonePoint(1, z.ID)
	if err != nil {
		t.Fatalf("AddZonePoint failed: %v", err)
	}
	if grown.Vertices() != 4 {
		t.Fatalf("vertices = %d, want 4", grown.Vertices())
	}
	want := []float64{0.0625, 0.0625, 0.125, 0.0625, 0.1875, 0.0625, 0.125, 0.1875}
	if !reflect.DeepEqual(grown.Points, want) {
		t.Errorf("points = %v, want %v", grown.Points, want)
	}

	removed, err = m.RemoveZonePoint(1, z.ID)
	if err != nil || !removed {
		t.Fatalf("RemoveZonePoint = %v, %v", removed, err)
	}
	if got, _ := m.Zone(1, z.ID); got.Vertices() != 3 {
		t.Errorf("vertices after removal = %d, want 3", got.Vertices())
	}
}

func TestZonePointCountProperty(t *testing.T) {
	m := NewModel()
	z, _ := m.AddZone(1)
	for i := 0; i < 5; i++ {
		before, _ := m.Zone(1, z.ID)
		after, err := m.AddZonePoint(1, z.ID)
		if err != nil {
			t.Fatalf("AddZonePoint failed: %v", err)
		}
		if after.Vertices() != before.Vertices()+1 {
			t.Fatalf("add %d: %d -> %d vertices", i, before.Vertices(), after.Vertices())
		}
	}
}

func TestUpdateZonePoint(t *testing.T) {
	m := NewModel()
	z, _ := m.AddZone(1)

	got, err := m.UpdateZonePoint(1, z.ID, 2, 0.9, 0.8)
	if err != nil {
		t.Fatalf("UpdateZonePoint failed: %v", err)
	}
	if got.Points[4] != 0.9 || got.Points[5] != 0.8 {
		t.Errorf("points = %v", got.Points)
	}
	if _, err := m.UpdateZonePoint(1, z.ID, 3, 0, 0); !errors.Is(err, ErrPointIndex) {
		t.Errorf("out-of-range index error = %v", err)
	}
	if _, err := m.UpdateZonePoint(1, 999, 0, 0, 0); !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("missing zone error = %v", err)
	}
}

func TestFloorRangeRetainsData(t *testing.T) {
	m := NewModel()
	if err := m.SetFloorRange(3, 2); err != nil {
		t.Fatal(err)
	}
	cam, _ := m.AddCamera(3)
	zone, _ := m.AddZone(-2)

	if err := m.SetFloorRange(1, 0); err != nil {
		t.Fatal(err)
	}
	if len(m.FloorTree()) != 1 {
		t.Errorf("floor tree should only list floor 1")
	}

	if err := m.SetFloorRange(3, 2); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Camera(3, cam.ID); !ok {
		t.Error("camera on floor 3 lost after shrinking range")
	}
	if _, ok := m.Zone(-2, zone.ID); !ok {
		t.Error("zone on floor -2 lost after shrinking range")
	}
}

func TestSetFloorRangeRejectsInvalid(t *testing.T) {
	m := NewModel()
	if err := m.SetFloorRange(0, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("SetFloorRange(0,0) error = %v", err)
	}
	if m.Range() != DefaultFloorRange {
		t.Errorf("range changed after rejected update: %+v", m.Range())
	}
}

func TestSnapshotIsolation(t *testing.T) {
	m := NewModel()
	cam, _ := m.AddCamera(1)
	snap := m.Snapshot()

	if _, err := m.UpdateCameraProperty(1, cam.ID, FieldRotation, 90); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AssignZonesToCamera(1, cam.ID, []int64{1, 2}); err != nil {
		t.Fatal(err)
	}
	if snap.Cameras[1][0].Rotation != 0 || len(snap.Cameras[1][0].AssignedZones) != 0 {
		t.Errorf("snapshot changed after edits: %+v", snap.Cameras[1][0])
	}

	snap.Cameras[1][0].X = 0.9
	if got, _ := m.Camera(1, cam.ID); got.X != 0.5 {
		t.Errorf("mutating a snapshot leaked into the model")
	}
}

func TestAssignHardwareAndZones(t *testing.T) {
	m := NewModel()
	cam, _ := m.AddCamera(1)

	got, err := m.AssignHardware(1, cam.ID, "b1946ac9-2a0f-4f24-9d6c-77a1c3d0f001")
	if err != nil || got.HardwareID == "" {
		t.Fatalf("AssignHardware = %+v, %v", got, err)
	}
	got, _ = m.AssignHardware(1, cam.ID, "")
	if got.HardwareID != "" {
		t.Errorf("empty hardware id should clear the link")
	}

	if _, err := m.AssignZonesToCamera(1, cam.ID, []int64{5, 6}); err != nil {
		t.Fatal(err)
	}
	got, _ = m.AssignZonesToCamera(1, cam.ID, []int64{7})
	if !reflect.DeepEqual(got.AssignedZones, []int64{7}) {
		t.Errorf("assigned zones = %v, want [7]", got.AssignedZones)
	}
}

func TestFloorOfCamera(t *testing.T) {
	m := NewModel()
	_ = m.SetFloorRange(2, 1)
	cam, _ := m.AddCamera(-1)

	f, ok := m.FloorOfCamera(cam.ID)
	if !ok || f != -1 {
		t.Errorf("FloorOfCamera = %v, %v; want -1, true", f, ok)
	}
	if _, ok := m.FloorOfCamera(42); ok {
		t.Error("unknown camera should not be found")
	}
}

func TestRestoreKeepsIDsAhead(t *testing.T) {
	m := NewModel()
	m.SetClock(fixedClock(10))
	cfg := Config{
		Range:   DefaultFloorRange,
		Cameras: map[Floor][]Camera{1: {{ID: 5000, Space: SpaceNormalized}}},
	}
	if err := m.Restore(cfg); err != nil {
		t.Fatal(err)
	}
	cam, _ := m.AddCamera(1)
	if cam.ID <= 5000 {
		t.Errorf("new id %d collides with loaded ids", cam.ID)
	}
}
