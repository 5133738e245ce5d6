// Package dbtest opens throwaway sqlite databases for repository and service
// tests. The schema is written by hand in sqlite dialect because the gorm
// models carry Postgres column defaults that sqlite cannot parse; production
// schema lives in the goose migrations.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS leads (
  id TEXT PRIMARY KEY,
  customer_name TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  customer_email TEXT,
  requested_service TEXT NOT NULL,
  city TEXT NOT NULL,
  event_date DATETIME,
  status TEXT NOT NULL DEFAULT 'new',
  assigned_group_id TEXT,
  assigned_vendor_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS lead_events (
  id TEXT PRIMARY KEY,
  lead_id TEXT NOT NULL,
  from_status TEXT NOT NULL,
  to_status TEXT NOT NULL,
  group_id TEXT,
  vendor_id TEXT,
  reason TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS vendor_groups (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  city TEXT NOT NULL,
  specialty_service TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  rotation_cursor INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS group_members (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_group_vendor ON group_members (group_id, vendor_id);`,
	`CREATE TABLE IF NOT EXISTS vendor_packages (
  vendor_id TEXT PRIMARY KEY,
  total INTEGER NOT NULL DEFAULT 0,
  remaining INTEGER NOT NULL DEFAULT 0,
  returned INTEGER NOT NULL DEFAULT 0,
  paused INTEGER NOT NULL DEFAULT 0,
  retired INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS distribution_policies (
  id TEXT PRIMARY KEY,
  service TEXT NOT NULL,
  city TEXT NOT NULL,
  name TEXT NOT NULL,
  seed INTEGER NOT NULL DEFAULT 0,
  allow_cross_city INTEGER NOT NULL DEFAULT 0,
  rotation_cursor INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_policy_scope ON distribution_policies (service, city);`,
	`CREATE TABLE IF NOT EXISTS assignment_records (
  id TEXT PRIMARY KEY,
  lead_id TEXT NOT NULL,
  group_id TEXT,
  vendor_id TEXT,
  method TEXT NOT NULL,
  outcome TEXT NOT NULL,
  created_at DATETIME
);`,
}

// Open returns an in-memory sqlite database with the full schema created.
// Each call gets its own database; the prefix keeps DSNs readable in errors.
func Open(t *testing.T, prefix string) *gorm.DB {
	t.Helper()
	dsn := "file:" + prefix + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	return open(t, dsn)
}

// OpenFile returns a file-backed sqlite database with a busy timeout, so
// concurrent write transactions queue instead of failing. Shared-cache
// in-memory databases cannot take parallel writers.
func OpenFile(t *testing.T, prefix string) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), prefix+".db")
	return open(t, "file:"+path+"?_busy_timeout=5000")
}

func open(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
