package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/database"
)

// PublishEntry records one publish attempt
type PublishEntry struct {
	ID          int64      `json:"id"`
	DraftID     string     `json:"draft_id,omitempty"`
	BuildingID  backend.ID `json:"building_id,omitempty"`
	Name        string     `json:"name"`
	Created     bool       `json:"created"`
	Error       string     `json:"error,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
}

// PublishLog is the append-only publish history
type PublishLog struct {
	db *database.DB
}

// NewPublishLog creates a publish log
func NewPublishLog(db *database.DB) *PublishLog {
	return &PublishLog{db: db}
}

// Record appends an entry and fills in its id and time
func (l *PublishLog) Record(ctx context.Context, e *PublishEntry) error {
	if e.PublishedAt.IsZero() {
		e.PublishedAt = time.Now()
	}
	created := 0
	if e.Created {
		created = 1
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO publish_log (draft_id, building_id, name, created, error, published_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.DraftID, string(e.BuildingID), e.Name, created, e.Error, e.PublishedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record publish: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// Recent returns up to limit entries, newest first. A non-empty buildingID
// restricts the history to that building.
func (l *PublishLog) Recent(ctx context.Context, buildingID backend.ID, limit int) ([]PublishEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, draft_id, building_id, name, created, error, published_at FROM publish_log`
	args := []any{}
	if buildingID != "" {
		query += ` WHERE building_id = ?`
		args = append(args, string(buildingID))
	}
	query += ` ORDER BY published_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PublishEntry
	for rows.Next() {
		var (
			e           PublishEntry
			building    string
			created     int
			publishedAt int64
		)
		if err := rows.Scan(&e.ID, &e.DraftID, &building, &e.Name, &created, &e.Error, &publishedAt); err != nil {
			return nil, err
		}
		e.BuildingID = backend.ID(building)
		e.Created = created != 0
		e.PublishedAt = time.Unix(publishedAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
