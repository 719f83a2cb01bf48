package db

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateCreatesSchema(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", "file:migtest1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqlDB.Close()

	if err := Migrate(sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"missions", "jobs", "tasks", "global_config", "mission_context", "users", "job_orphan_candidates", "app_settings", "secrets"} {
		var name string
		if err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", "file:migtest2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqlDB.Close()

	if err := Migrate(sqlDB); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(sqlDB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
