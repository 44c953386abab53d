package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/config"
	"github.com/Spatial-NVR/constructor/internal/database"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(&database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.NewMigrator(db).Run(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func testConfig() building.Config {
	return building.Config{
		Name:  "HQ",
		Range: building.FloorRange{Above: 2, Below: 1},
		Backgrounds: map[building.Floor]string{
			1: "http://backend/uploads/plan-1.png",
		},
		Cameras: map[building.Floor][]building.Camera{
			1: {{ID: 7, X: 0.5, Y: 0.5, ViewRadius: 0.2, Size: 0.03, ViewAngle: 60, AssignedZones: []int64{}}},
		},
		Zones: map[building.Floor][]building.Zone{
			-1: {{ID: 9, Points: []float64{0.1, 0.1, 0.2, 0.1, 0.15, 0.2}, Fill: building.DefaultZoneFill}},
		},
	}
}

func TestDraftStore_SaveAndGet(t *testing.T) {
	store := NewDraftStore(setupTestDB(t))
	ctx := context.Background()

	d, err := NewDraft(testConfig(), "")
	if err != nil {
		t.Fatalf("NewDraft failed: %v", err)
	}
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if d.ID == "" {
		t.Fatal("Save should assign an id")
	}

	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "HQ" {
		t.Errorf("Expected name 'HQ', got '%s'", got.Name)
	}

	cfg, fields, err := got.Config("http://backend")
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	if !fields.Cameras || !fields.Zones {
		t.Errorf("Expected cameras and zones in document, got %+v", fields)
	}
	if cfg.Range != (building.FloorRange{Above: 2, Below: 1}) {
		t.Errorf("Unexpected range %+v", cfg.Range)
	}
	if bg := cfg.Backgrounds[1]; bg != "http://backend/uploads/plan-1.png" {
		t.Errorf("Expected expanded background, got '%s'", bg)
	}
	if len(cfg.Cameras[1]) != 1 || cfg.Cameras[1][0].ID != 7 {
		t.Errorf("Unexpected cameras %+v", cfg.Cameras)
	}
}

func TestDraftStore_Overwrite(t *testing.T) {
	store := NewDraftStore(setupTestDB(t))
	ctx := context.Background()

	d, _ := NewDraft(testConfig(), "")
	if err := store.Save(ctx, d); err != nil {
		t.Fatal(err)
	}
	created := d.CreatedAt

	d.Name = "HQ renamed"
	d.BuildingID = "42"
	if err := store.Save(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "HQ renamed" || got.BuildingID != "42" {
		t.Errorf("Expected overwritten draft, got %+v", got)
	}
	if got.CreatedAt.Unix() != created.Unix() {
		t.Errorf("CreatedAt changed from %v to %v", created, got.CreatedAt)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 draft, got %d", len(list))
	}
}

func TestDraftStore_ListOrder(t *testing.T) {
	store := NewDraftStore(setupTestDB(t))
	ctx := context.Background()

	old := &Draft{ID: "old", Name: "Old", Document: []byte(`{}`)}
	if err := store.Save(ctx, old); err != nil {
		t.Fatal(err)
	}
	// updated_at has second resolution
	if _, err := store.db.ExecContext(ctx, "UPDATE drafts SET updated_at = ? WHERE id = 'old'", time.Now().Add(-time.Hour).Unix()); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, &Draft{ID: "new", Name: "New", Document: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("Unexpected order %+v", list)
	}
	if list[0].Document != nil {
		t.Error("List should not load documents")
	}
}

func TestDraftStore_NotFound(t *testing.T) {
	store := NewDraftStore(setupTestDB(t))
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on delete, got %v", err)
	}

	d := &Draft{Name: "x", Document: []byte(`{}`)}
	if err := store.Save(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deleted draft to be gone, got %v", err)
	}
}

func TestTokenStore(t *testing.T) {
	db := setupTestDB(t)
	sealer := config.NewSealer([]byte("12345678901234567890123456789012"))
	tokens := NewTokenStore(db, sealer)
	ctx := context.Background()

	if tokens.Token() != "" {
		t.Error("Expected no active token")
	}
	if _, err := tokens.Load(ctx, "http://backend"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := tokens.Save(ctx, "http://backend/", "operator", "tok-1"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if tokens.Token() != "tok-1" {
		t.Errorf("Expected active token 'tok-1', got '%s'", tokens.Token())
	}

	var raw []byte
	if err := db.QueryRow("SELECT token FROM credentials").Scan(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw) == "tok-1" {
		t.Error("Token should be sealed at rest")
	}

	// a fresh store sees the same credential
	other := NewTokenStore(db, sealer)
	cred, err := other.Load(ctx, "http://backend")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cred.Token != "tok-1" || cred.Username != "operator" || cred.BackendURL != "http://backend" {
		t.Errorf("Unexpected credential %+v", cred)
	}
	if other.Token() != "tok-1" {
		t.Error("Load should activate the token")
	}

	if err := tokens.Save(ctx, "http://backend", "operator", "tok-2"); err != nil {
		t.Fatal(err)
	}
	cred, _ = other.Load(ctx, "http://backend")
	if cred.Token != "tok-2" {
		t.Errorf("Expected replaced token, got '%s'", cred.Token)
	}

	if err := tokens.Clear(ctx, "http://backend"); err != nil {
		t.Fatal(err)
	}
	if tokens.Token() != "" {
		t.Error("Clear should log out")
	}
	if _, err := tokens.Load(ctx, "http://backend"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after clear, got %v", err)
	}
}

func TestTokenStore_WrongKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := NewTokenStore(db, config.NewSealer([]byte("12345678901234567890123456789012")))
	if err := a.Save(ctx, "http://backend", "", "tok"); err != nil {
		t.Fatal(err)
	}
	b := NewTokenStore(db, config.NewSealer([]byte("abcdefghijklmnopqrstuvwxyz012345")))
	if _, err := b.Load(ctx, "http://backend"); err == nil {
		t.Error("Expected error opening token with a different key")
	}
	if b.Token() != "" {
		t.Error("Failed load should not activate a token")
	}
}

func TestPublishLog(t *testing.T) {
	log := NewPublishLog(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	entries := []*PublishEntry{
		{BuildingID: "1", Name: "HQ", Created: true, PublishedAt: base},
		{BuildingID: "2", Name: "Depot", Created: true, PublishedAt: base.Add(time.Minute)},
		{BuildingID: "1", Name: "HQ", Error: "backend returned 500", PublishedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := log.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if e.ID == 0 {
			t.Error("Record should assign an id")
		}
	}

	all, err := log.Recent(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Error == "" || all[2].Name != "HQ" || !all[2].Created {
		t.Errorf("Unexpected history %+v", all)
	}

	hq, err := log.Recent(ctx, "1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hq) != 2 {
		t.Fatalf("Expected 2 entries for building 1, got %d", len(hq))
	}
	if hq[0].Created || !hq[1].Created {
		t.Errorf("Expected newest first, got %+v", hq)
	}

	one, _ := log.Recent(ctx, "", 1)
	if len(one) != 1 {
		t.Errorf("Expected limit 1, got %d", len(one))
	}
}
