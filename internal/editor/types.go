package editor

import (
	"fmt"
	"time"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/geometry"
)

// Selection is what the operator is working on. Nil means nothing selected.
type Selection struct {
	Floor  *building.Floor `json:"floor"`
	Camera *int64          `json:"camera"`
	Zone   *int64          `json:"zone"`
}

func (s Selection) clone() Selection {
	var out Selection
	if s.Floor != nil {
		f := *s.Floor
		out.Floor = &f
	}
	if s.Camera != nil {
		c := *s.Camera
		out.Camera = &c
	}
	if s.Zone != nil {
		z := *s.Zone
		out.Zone = &z
	}
	return out
}

// TargetKind is the kind of object under the pointer
type TargetKind string

const (
	TargetCamera TargetKind = "camera"
	TargetZone   TargetKind = "zone"
	TargetFloor  TargetKind = "floor"
)

// Target identifies a hoverable object
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   int64      `json:"id"`
}

// Label is the floating text shown while hovering
func (t Target) Label() string {
	switch t.Kind {
	case TargetCamera:
		return fmt.Sprintf("Camera #%d", t.ID)
	case TargetZone:
		return fmt.Sprintf("Zone #%d", t.ID)
	default:
		return fmt.Sprintf("Floor %s", building.Floor(t.ID))
	}
}

// ChangeKind classifies a session change
type ChangeKind string

const (
	ChangeName       ChangeKind = "name"
	ChangeFloorRange ChangeKind = "floor_range"
	ChangeBackground ChangeKind = "background"
	ChangeCanvas     ChangeKind = "canvas"
	ChangeSelection  ChangeKind = "selection"
	ChangeHover      ChangeKind = "hover"
	ChangeCamera     ChangeKind = "camera"
	ChangeZone       ChangeKind = "zone"
	ChangeDocument   ChangeKind = "document"
	ChangeHardware   ChangeKind = "hardware"
	ChangeTask       ChangeKind = "task"
)

// Change is delivered to OnChange listeners
type Change struct {
	Session string         `json:"session"`
	Kind    ChangeKind     `json:"kind"`
	Floor   building.Floor `json:"floor,omitempty"`
	ID      int64          `json:"id,omitempty"`
	Task    Task           `json:"task,omitempty"`
	At      time.Time      `json:"at"`
}

// Task names a background operation with its own status
type Task string

const (
	TaskLoad     Task = "load"
	TaskPublish  Task = "publish"
	TaskUpload   Task = "upload"
	TaskHardware Task = "hardware"
	TaskImport   Task = "import"
)

// TaskStatus is the loading/error flag pair of one task
type TaskStatus struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View is a read-only copy of the session state
type View struct {
	SessionID  string
	BuildingID backend.ID
	Config     building.Config
	Selection  Selection
	Hover      *Target
	Canvas     geometry.Size
	Tasks      map[Task]TaskStatus
}

// FloorData returns what is drawn on the selected floor's canvas
func (v View) FloorData() (building.FloorData, bool) {
	if v.Selection.Floor == nil {
		return building.FloorData{}, false
	}
	return v.Config.Floor(*v.Selection.Floor), true
}
