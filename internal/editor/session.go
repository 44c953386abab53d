// Package editor owns one editing session over a building layout: the model,
// what is selected, hover state, and the background tasks that talk to the
// backend.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/geometry"
)

var (
	ErrNoFloorSelected  = errors.New("no floor selected")
	ErrNoCameraSelected = errors.New("no camera selected")
	ErrNoZoneSelected   = errors.New("no zone selected")
	ErrSessionClosed    = errors.New("editor session closed")
	ErrNoBackend        = errors.New("no backend configured")
)

// DefaultBuildingName is used for buildings that have not been named yet
const DefaultBuildingName = "New building"

// Backend is the part of the backend client a session needs
type Backend interface {
	GetConfig(ctx context.Context, id backend.ID) (*backend.BuildingConfig, error)
	CreateConfig(ctx context.Context, cfg backend.BuildingConfig) (*backend.BuildingConfig, error)
	UpdateConfig(ctx context.Context, id backend.ID, cfg backend.BuildingConfig) (*backend.BuildingConfig, error)
	UploadImage(ctx context.Context, name string, r io.Reader) (string, error)
	UploadsURL(filename string) string
	ListHardware(ctx context.Context, skip, limit int) ([]backend.HardwareCamera, error)
}

// Options configures a Session
type Options struct {
	Backend      Backend
	UploadsBase  string
	Canvas       geometry.Size
	HardwarePage int
	Logger       *slog.Logger
}

// Session is the shared editing context. All methods are safe for
// concurrent use; model mutations are serialized by the session lock.
type Session struct {
	mu sync.RWMutex

	id          string
	model       *building.Model
	sel         Selection
	hover       *Target
	canvas      geometry.Size
	buildingID  backend.ID
	tasks       map[Task]TaskStatus
	hardware    []backend.HardwareCamera
	backend     Backend
	uploadsBase string
	hwPage      int

	listenerMu sync.RWMutex
	listeners  []func(Change)

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewSession creates a session over an empty building
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	canvas := opts.Canvas
	if canvas.IsZero() {
		canvas = building.DefaultCanvasSize
	}
	if opts.HardwarePage <= 0 {
		opts.HardwarePage = 100
	}

	model := building.NewModel()
	model.SetName(DefaultBuildingName)
	model.SetCanvasSize(canvas)

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:          id,
		model:       model,
		canvas:      canvas,
		tasks:       make(map[Task]TaskStatus),
		backend:     opts.Backend,
		uploadsBase: opts.UploadsBase,
		hwPage:      opts.HardwarePage,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "editor", "session", id),
	}
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Context is cancelled when the session closes
func (s *Session) Context() context.Context { return s.ctx }

// Close cancels every in-flight task. Results arriving afterwards are dropped.
func (s *Session) Close() {
	s.cancel()
}

// OnChange registers a listener called after every state change
func (s *Session) OnChange(fn func(Change)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// notify must be called without s.mu held
func (s *Session) notify(changes ...Change) {
	s.listenerMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenerMu.RUnlock()

	for _, c := range changes {
		c.Session = s.id
		c.At = time.Now()
		for _, fn := range listeners {
			fn(c)
		}
	}
}

// mutate runs fn under the write lock and notifies on success
func (s *Session) mutate(fn func() ([]Change, error)) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	changes, err := fn()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(changes...)
	return nil
}

func (s *Session) selectedFloor() (building.Floor, error) {
	if s.sel.Floor == nil {
		return 0, ErrNoFloorSelected
	}
	return *s.sel.Floor, nil
}

func (s *Session) selectedCamera() (building.Floor, int64, error) {
	f, err := s.selectedFloor()
	if err != nil {
		return 0, 0, err
	}
	if s.sel.Camera == nil {
		return 0, 0, ErrNoCameraSelected
	}
	return f, *s.sel.Camera, nil
}

func (s *Session) selectedZone() (building.Floor, int64, error) {
	f, err := s.selectedFloor()
	if err != nil {
		return 0, 0, err
	}
	if s.sel.Zone == nil {
		return 0, 0, ErrNoZoneSelected
	}
	return f, *s.sel.Zone, nil
}

// SetName sets the building display name
func (s *Session) SetName(name string) {
	_ = s.mutate(func() ([]Change, error) {
		s.model.SetName(name)
		return []Change{{Kind: ChangeName}}, nil
	})
}

// SetFloorRange changes the reachable floors. A selected floor that becomes
// unreachable is deselected; its data is kept.
func (s *Session) SetFloorRange(above, below int) error {
	return s.mutate(func() ([]Change, error) {
		if err := s.model.SetFloorRange(above, below); err != nil {
			return nil, err
		}
		changes := []Change{{Kind: ChangeFloorRange}}
		if s.sel.Floor != nil && !s.model.Range().Contains(*s.sel.Floor) {
			s.sel = Selection{}
			changes = append(changes, Change{Kind: ChangeSelection})
		}
		return changes, nil
	})
}

// SetBackground sets a floor's plan image
func (s *Session) SetBackground(f building.Floor, ref string) error {
	return s.mutate(func() ([]Change, error) {
		if err := s.model.SetBackground(f, ref); err != nil {
			return nil, err
		}
		return []Change{{Kind: ChangeBackground, Floor: f}}, nil
	})
}

// Resize records the live canvas size used for pixel conversions
func (s *Session) Resize(width, height float64) error {
	size := geometry.Size{Width: width, Height: height}
	if size.IsZero() {
		return fmt.Errorf("invalid canvas size %vx%v", width, height)
	}
	return s.mutate(func() ([]Change, error) {
		s.canvas = size
		s.model.SetCanvasSize(size)
		return []Change{{Kind: ChangeCanvas}}, nil
	})
}

// Canvas returns the live canvas size
func (s *Session) Canvas() geometry.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canvas
}

// BuildingID returns the backend id, empty for unpublished buildings
func (s *Session) BuildingID() backend.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildingID
}

// FloorTree lists reachable floors with their cameras, top floor first
func (s *Session) FloorTree() []building.FloorEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.FloorTree()
}

// Hardware returns the last fetched hardware camera list
func (s *Session) Hardware() []backend.HardwareCamera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]backend.HardwareCamera(nil), s.hardware...)
}

// Snapshot returns a read-only copy of the whole session state
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make(map[Task]TaskStatus, len(s.tasks))
	for k, v := range s.tasks {
		tasks[k] = v
	}
	v := View{
		SessionID:  s.id,
		BuildingID: s.buildingID,
		Config:     s.model.Snapshot(),
		Selection:  s.sel.clone(),
		Canvas:     s.canvas,
		Tasks:      tasks,
	}
	if s.hover != nil {
		h := *s.hover
		v.Hover = &h
	}
	return v
}

// ExportDocument serializes the layout as a portable document
func (s *Session) ExportDocument() ([]byte, error) {
	s.mu.RLock()
	cfg := s.model.Snapshot()
	s.mu.RUnlock()
	return building.Export(cfg)
}

// ImportDocument applies an exported document. On any error the session is
// unchanged and the failure is recorded on the import task.
func (s *Session) ImportDocument(data []byte) error {
	cfg, fields, err := building.Import(data, s.uploadsBase)
	if err == nil {
		err = s.mutate(func() ([]Change, error) {
			if err := s.model.Apply(cfg, fields); err != nil {
				return nil, err
			}
			s.dropStaleSelection()
			return []Change{{Kind: ChangeDocument}}, nil
		})
	}
	s.finishTask(TaskImport, err)
	if err != nil {
		s.logger.Warn("Import failed", "error", err)
	}
	return err
}

// dropStaleSelection clears selections that no longer resolve. Caller holds s.mu.
func (s *Session) dropStaleSelection() {
	if s.sel.Floor == nil {
		return
	}
	f := *s.sel.Floor
	if !s.model.Range().Contains(f) {
		s.sel = Selection{}
		return
	}
	if s.sel.Camera != nil {
		if _, ok := s.model.Camera(f, *s.sel.Camera); !ok {
			s.sel.Camera = nil
		}
	}
	if s.sel.Zone != nil {
		if _, ok := s.model.Zone(f, *s.sel.Zone); !ok {
			s.sel.Zone = nil
		}
	}
}
