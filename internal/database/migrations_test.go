package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func openMigrated(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := NewMigrator(db).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return db
}

func TestMigrator_Run(t *testing.T) {
	db := openMigrated(t)

	for _, table := range []string{"drafts", "credentials", "publish_log"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	// Running again should be idempotent
	if err := NewMigrator(db).Run(context.Background()); err != nil {
		t.Fatalf("Second Run failed: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Expected 3 applied migrations, got %d", count)
	}
}

func TestMigrator_Status(t *testing.T) {
	db, err := Open(&Config{Path: MemoryPath})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	m := NewMigrator(db)
	status, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	for _, mig := range status {
		if !mig.AppliedAt.IsZero() {
			t.Errorf("Migration %d applied before Run", mig.Version)
		}
	}

	if err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	status, err = m.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(status) != 3 {
		t.Fatalf("Expected 3 migrations, got %d", len(status))
	}
	for i, mig := range status {
		if mig.Version != i+1 {
			t.Errorf("Migration %d out of order: %d", i, mig.Version)
		}
		if mig.AppliedAt.IsZero() || mig.Name == "" {
			t.Errorf("Migration %d incomplete: %+v", mig.Version, mig)
		}
	}
}

func TestMigrator_OrderAndNaming(t *testing.T) {
	db, err := Open(&Config{Path: MemoryPath})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	m := NewMigrator(db)
	m.source = fstest.MapFS{
		"migrations/010_second.sql": {Data: []byte(`INSERT INTO log VALUES ('second');`)},
		"migrations/002_first.sql":  {Data: []byte(`CREATE TABLE log (v TEXT); INSERT INTO log VALUES ('first');`)},
		"migrations/notes.txt":      {Data: []byte(`ignored`)},
		"migrations/abc_bad.sql":    {Data: []byte(`not sql`)},
	}
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rows, err := db.Query(`SELECT v FROM log ORDER BY rowid`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var got []string
	for rows.Next() {
		var v string
		_ = rows.Scan(&v)
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("applied order = %v", got)
	}
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	db, err := Open(&Config{Path: MemoryPath})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	m := NewMigrator(db)
	m.source = fstest.MapFS{
		"migrations/001_broken.sql": {Data: []byte(`CREATE TABLE x (v TEXT); SELEC nonsense;`)},
	}
	if err := m.Run(context.Background()); err == nil {
		t.Fatal("Expected migration error")
	}
	var count int
	_ = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != 0 {
		t.Errorf("Failed migration was recorded")
	}
}

func TestMigrator_ContextCancellation(t *testing.T) {
	db, err := Open(&Config{Path: MemoryPath})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMigrator(db).Run(ctx); err == nil {
		t.Error("Expected error with cancelled context")
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		ok      bool
	}{
		{"003_publish_log.sql", 3, "publish_log", true},
		{"10_x.sql", 10, "x", true},
		{"000_zero.sql", 0, "", false},
		{"abc_bad.sql", 0, "", false},
		{"004.sql", 0, "", false},
		{"005_notes.txt", 0, "", false},
	}
	for _, tt := range tests {
		version, name, ok := parseMigrationName(tt.file)
		if version != tt.version || name != tt.name || ok != tt.ok {
			t.Errorf("parseMigrationName(%q) = %d, %q, %v", tt.file, version, name, ok)
		}
	}
}
