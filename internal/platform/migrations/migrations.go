// Package migrations applies the embedded schema migrations.
package migrations

import (
	"database/sql"
	"embed"
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/nilelink/trustcore/internal/errors"
)

//go:embed sql/*.sql
var files embed.FS

// Apply runs all pending migrations against db. Already-applied migrations
// are skipped.
func Apply(db *sql.DB) error {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return errors.Internal("loading embedded migrations", err)
	}
	driver, err := mpostgres.WithInstance(db, &mpostgres.Config{})
	if err != nil {
		return errors.Internal("preparing migration driver", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Internal("initializing migrations", err)
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Internal("applying migrations", err)
	}
	return nil
}
