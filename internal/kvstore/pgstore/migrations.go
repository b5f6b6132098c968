package pgstore

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrate brings the host-simulation schema up to date using goose.
// goose drives plain database/sql, so it runs against the lib/pq
// connection rather than the pgx pool used for steady-state queries.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
