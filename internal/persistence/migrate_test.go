package persistence

import (
	"strings"
	"testing"
	"testing/fstest"

	"safesight/internal/logger"
)

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		name        string
		version     int
		description string
		ok          bool
	}{
		{"001_takeaway_tables.sql", 1, "takeaway tables", true},
		{"012_add_index.sql", 12, "add index", true},
		{"initial.sql", 0, "", false},
		{"abc_schema.sql", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, description, ok := parseMigrationName(tt.name)
			if ok != tt.ok || version != tt.version || description != tt.description {
				t.Errorf("parseMigrationName(%q) = %d, %q, %v", tt.name, version, description, ok)
			}
		})
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := loadMigrations(migrationFiles, logger.Get())
	if err != nil {
		t.Fatalf("loadMigrations failed: %v", err)
	}
	if len(migrations) < 1 {
		t.Fatal("Expected embedded migrations")
	}
	if migrations[0].Version != 1 {
		t.Errorf("Expected first migration version 1, got %d", migrations[0].Version)
	}
	for _, table := range takeawayTables {
		if !strings.Contains(migrations[0].SQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("Expected initial migration to create %s", table)
		}
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Error("Expected migrations sorted by version")
		}
	}
}

func TestLoadMigrations_SkipsInvalid(t *testing.T) {
	source := fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("SELECT 2;")},
		"migrations/001_first.sql":  {Data: []byte("SELECT 1;")},
		"migrations/notes.txt":      {Data: []byte("ignored")},
		"migrations/bad.sql":        {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(source, logger.Get())
	if err != nil {
		t.Fatalf("loadMigrations failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Description != "first" || migrations[1].Description != "second" {
		t.Errorf("Unexpected order: %+v", migrations)
	}
}

func TestFindPendingMigrations(t *testing.T) {
	available := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}

	pending := findPendingMigrations(available, []int{1, 3})
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Errorf("Expected only version 2 pending, got %+v", pending)
	}

	if got := findPendingMigrations(available, nil); len(got) != 3 {
		t.Errorf("Expected all pending, got %d", len(got))
	}
}
