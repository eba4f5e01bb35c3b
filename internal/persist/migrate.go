package persist

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/hyperengineering/nestegg/migrations"
	"github.com/pressly/goose/v3"
)

// goose keeps its dialect and base FS in package state.
var gooseMu sync.Mutex

// RunMigrations applies all pending migrations for dialect from the embedded
// directory of the same name.
func RunMigrations(db *sql.DB, dialect string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	// Disable goose's default logging to avoid stdout noise
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, dialect); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
