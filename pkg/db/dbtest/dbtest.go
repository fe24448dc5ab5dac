// Package dbtest opens isolated in-memory SQLite stores carrying the production
// schema constraints (uniqueness, foreign keys, checks) for tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/crsmanager/crs-backend/pkg/db"
)

const schema = `
CREATE TABLE buyers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  address TEXT NOT NULL,
  state TEXT NOT NULL,
  gst TEXT,
  alias TEXT,
  CONSTRAINT buyers_name_key UNIQUE (name),
  CONSTRAINT buyers_alias_key UNIQUE (alias)
);
CREATE TABLE challans (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  number INTEGER NOT NULL CHECK (number > 0),
  session TEXT NOT NULL,
  buyer_id INTEGER NOT NULL REFERENCES buyers(id) ON DELETE RESTRICT,
  delivered_by TEXT NOT NULL,
  vehicle_number TEXT NOT NULL,
  value NUMERIC NOT NULL DEFAULT 0,
  notes TEXT,
  received BOOLEAN NOT NULL DEFAULT 0,
  cancelled BOOLEAN NOT NULL DEFAULT 0,
  digitally_signed BOOLEAN NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  CONSTRAINT challans_number_session_key UNIQUE (number, session)
);
CREATE TABLE challan_products (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  challan_id INTEGER NOT NULL REFERENCES challans(id) ON DELETE CASCADE,
  description TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  comment TEXT,
  serial_number TEXT
);
`

// Open returns a fresh database shared by every connection of its pool and
// invisible to other tests.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:crs_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := db.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// One connection keeps writers from tripping over SQLite table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.Exec(schema).Error; err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// Client wraps Open in a db.Client.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromConn(Open(t))
}
