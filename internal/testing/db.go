// Package testing provides testing utilities and helpers for the allocator.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/allocator/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a test temp directory
// and applies the named schema. The database is closed on test cleanup.
//
// Supported schema names:
//   - "history" - applies history_schema.sql
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db
}
