package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/storage/database"
)

// PrepareDB opens a migrated sqlite database in a temp dir, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := core.DatabaseConfig{Engine: database.EngineSQLite, Name: filepath.Join(t.TempDir(), "test.db")}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, conf.Engine, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}
