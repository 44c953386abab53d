// Package store keeps editor drafts, backend credentials and the publish
// history in the local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/database"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Draft is a locally saved layout in export document form
type Draft struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	BuildingID backend.ID `json:"building_id,omitempty"`
	Document   []byte     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewDraft exports cfg into a draft ready to save
func NewDraft(cfg building.Config, buildingID backend.ID) (*Draft, error) {
	doc, err := building.Export(cfg)
	if err != nil {
		return nil, err
	}
	return &Draft{Name: cfg.Name, BuildingID: buildingID, Document: doc}, nil
}

// Config parses the stored document
func (d *Draft) Config(uploadsBase string) (building.Config, building.Fields, error) {
	return building.Import(d.Document, uploadsBase)
}

// DraftStore persists drafts
type DraftStore struct {
	db *database.DB
}

// NewDraftStore creates a draft store
func NewDraftStore(db *database.DB) *DraftStore {
	return &DraftStore{db: db}
}

// Save inserts a new draft or overwrites an existing one. A draft without
// an id gets a fresh one.
func (s *DraftStore) Save(ctx context.Context, d *Draft) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, name, building_id, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			building_id = excluded.building_id,
			document = excluded.document,
			updated_at = excluded.updated_at
	`,
		d.ID,
		d.Name,
		string(d.BuildingID),
		string(d.Document),
		d.CreatedAt.Unix(),
		d.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Get loads one draft including its document
func (s *DraftStore) Get(ctx context.Context, id string) (*Draft, error) {
	var (
		d                    Draft
		buildingID, document string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, building_id, document, created_at, updated_at
		FROM drafts WHERE id = ?
	`, id).Scan(&d.ID, &d.Name, &buildingID, &document, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	d.BuildingID = backend.ID(buildingID)
	d.Document = []byte(document)
	d.CreatedAt = time.Unix(createdAt, 0)
	d.UpdatedAt = time.Unix(updatedAt, 0)
	return &d, nil
}

// List returns drafts most recently updated first, without documents
func (s *DraftStore) List(ctx context.Context) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, building_id, created_at, updated_at
		FROM drafts ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var (
			d                    Draft
			buildingID           string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&d.ID, &d.Name, &buildingID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		d.BuildingID = backend.ID(buildingID)
		d.CreatedAt = time.Unix(createdAt, 0)
		d.UpdatedAt = time.Unix(updatedAt, 0)
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// Delete removes a draft
func (s *DraftStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return nil
}
