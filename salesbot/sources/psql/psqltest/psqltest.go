// Package psqltest opens a migrated in-memory SQLite database for tests.
package psqltest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"salesbot/salesbot/sources/psql"

	"gorm.io/driver/sqlite"
)

func NewDatabase(t *testing.T) *psql.Database {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	// one connection keeps every query on the same in-memory database
	db, err := psql.Open(context.Background(), sqlite.Open(dsn), 1)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}
