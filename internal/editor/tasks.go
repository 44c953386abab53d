package editor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
)

// taskContext derives a context that ends when either the caller's context
// or the session ends
func (s *Session) taskContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) startTask(t Task) {
	s.mu.Lock()
	s.tasks[t] = TaskStatus{Loading: true, UpdatedAt: time.Now()}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeTask, Task: t})
}

func (s *Session) finishTask(t Task, err error) {
	st := TaskStatus{UpdatedAt: time.Now()}
	if err != nil {
		st.Error = err.Error()
	}
	s.mu.Lock()
	s.tasks[t] = st
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeTask, Task: t})
}

// Task returns the status of one background task
func (s *Session) Task(t Task) TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[t]
}

// runTask wraps a backend call with status tracking and session
// cancellation. Results of a call that outlives the session are dropped.
func (s *Session) runTask(ctx context.Context, t Task, call func(context.Context) error) error {
	if s.backend == nil {
		return ErrNoBackend
	}
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	ctx, cancel := s.taskContext(ctx)
	defer cancel()

	s.startTask(t)
	err := call(ctx)
	if s.ctx.Err() != nil {
		s.logger.Debug("Dropping task result after close", "task", t)
		return ErrSessionClosed
	}
	s.finishTask(t, err)
	if err != nil {
		s.logger.Warn("Task failed", "task", t, "error", err)
	}
	return err
}

// Load fetches a building config from the backend and replaces the layout
func (s *Session) Load(ctx context.Context, id backend.ID) error {
	return s.runTask(ctx, TaskLoad, func(ctx context.Context) error {
		remote, err := s.backend.GetConfig(ctx, id)
		if err != nil {
			return err
		}
		cfg, err := building.ConfigFromBody(remote.Config, s.uploadsBase)
		if err != nil {
			return fmt.Errorf("building config %s: %w", id, err)
		}
		cfg.Name = remote.Name

		return s.mutate(func() ([]Change, error) {
			if err := s.model.Restore(cfg); err != nil {
				return nil, err
			}
			s.buildingID = remote.ID
			if s.buildingID == "" {
				s.buildingID = id
			}
			s.sel = Selection{}
			s.hover = nil
			s.logger.Info("Loaded building", "building_id", s.buildingID, "name", cfg.Name)
			return []Change{{Kind: ChangeDocument}, {Kind: ChangeSelection}}, nil
		})
	})
}

// Publish stores the layout on the backend. A building without an id is
// created and the session adopts the assigned id; otherwise it is updated.
func (s *Session) Publish(ctx context.Context) (backend.ID, error) {
	var published backend.ID
	err := s.runTask(ctx, TaskPublish, func(ctx context.Context) error {
		s.mu.RLock()
		id := s.buildingID
		cfg := s.model.Snapshot()
		s.mu.RUnlock()

		payload := backend.BuildingConfig{
			ID:     id,
			Name:   cfg.Name,
			Config: building.BodyFromConfig(cfg),
		}

		var (
			saved *backend.BuildingConfig
			err   error
		)
		if id == "" {
			saved, err = s.backend.CreateConfig(ctx, payload)
		} else {
			saved, err = s.backend.UpdateConfig(ctx, id, payload)
		}
		if err != nil {
			return err
		}

		if id != "" {
			published = id
			s.logger.Info("Updated building", "building_id", id)
			return nil
		}
		if saved == nil || saved.ID == "" {
			return fmt.Errorf("create building config: backend returned no id")
		}
		published = saved.ID
		return s.mutate(func() ([]Change, error) {
			s.buildingID = published
			s.logger.Info("Created building", "building_id", published)
			return []Change{{Kind: ChangeDocument}}, nil
		})
	})
	return published, err
}

// UploadBackground uploads a floor plan and makes it the floor's background
func (s *Session) UploadBackground(ctx context.Context, f building.Floor, name string, r io.Reader) (string, error) {
	var ref string
	err := s.runTask(ctx, TaskUpload, func(ctx context.Context) error {
		filename, err := s.backend.UploadImage(ctx, name, r)
		if err != nil {
			return err
		}
		ref = s.backend.UploadsURL(filename)
		return s.SetBackground(f, ref)
	})
	return ref, err
}

// RefreshHardware fetches the hardware camera list used for linking
func (s *Session) RefreshHardware(ctx context.Context) ([]backend.HardwareCamera, error) {
	var list []backend.HardwareCamera
	err := s.runTask(ctx, TaskHardware, func(ctx context.Context) error {
		var err error
		if list, err = s.backend.ListHardware(ctx, 0, s.hwPage); err != nil {
			return err
		}
		return s.mutate(func() ([]Change, error) {
			s.hardware = list
			return []Change{{Kind: ChangeHardware}}, nil
		})
	})
	return list, err
}
