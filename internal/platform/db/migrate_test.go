package db

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"001_identity.sql":   "CREATE TABLE profile (id UUID PRIMARY KEY);",
		"002_scheduling.sql": "CREATE TABLE schedule_block (id UUID PRIMARY KEY);",
		"003_assignment.sql": "CREATE TABLE assignment (id UUID PRIMARY KEY);",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test file %s: %v", name, err)
		}
	}

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_identity.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != files["001_identity.sql"] {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if len(migrations[0].Checksum) != 64 {
		t.Errorf("expected sha256 hex checksum, got %q", migrations[0].Checksum)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortAndSkip(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tables.sql":    {Data: []byte("SELECT 10;")},
		"002_second.sql":    {Data: []byte("SELECT 2;")},
		"001_first.sql":     {Data: []byte("SELECT 1;")},
		"readme.sql":        {Data: []byte("-- no prefix")},
		"notes.txt":         {Data: []byte("not sql")},
		"abc_invalid.sql":   {Data: []byte("-- non-numeric")},
		"archive/003_x.sql": {Data: []byte("SELECT 3;")},
	}

	migrations, err := NewMigratorFS(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	want := []int{1, 2, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql":  {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigratorFS(nil, fsys).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate versions")
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	_, err := NewMigrator(nil, "/nonexistent/path/that/does/not/exist").LoadMigrations()
	if err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestBuildStatus(t *testing.T) {
	fsys := fstest.MapFS{
		"001_identity.sql":   {Data: []byte("CREATE TABLE profile (id UUID);")},
		"002_scheduling.sql": {Data: []byte("CREATE TABLE schedule_block (id UUID);")},
		"003_assignment.sql": {Data: []byte("CREATE TABLE assignment (id UUID);")},
	}
	migrations, err := NewMigratorFS(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	applied := map[int]appliedMigration{
		1: {checksum: migrations[0].Checksum, appliedAt: at},
		2: {checksum: "edited-since", appliedAt: at},
	}

	statuses := buildStatus(migrations, applied)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].Drifted {
		t.Errorf("expected 001 applied without drift, got %+v", statuses[0])
	}
	if statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected AppliedAt %v, got %v", at, statuses[0].AppliedAt)
	}
	if !statuses[1].Drifted {
		t.Error("expected 002 to be reported as drifted")
	}
	if statuses[2].Applied || statuses[2].AppliedAt != nil {
		t.Errorf("expected 003 pending, got %+v", statuses[2])
	}
}
