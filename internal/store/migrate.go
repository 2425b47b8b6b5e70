package store

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/squeaknode/node/internal/apperrors"
)

// RunMigrations applies every pending migration under migrationsPath
// (a "file://" source directory) to dsn. A no-op if the schema is
// already current.
func RunMigrations(migrationsPath, dsn string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return apperrors.Wrap(apperrors.StoreIntegrity, "create migrate instance", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperrors.Wrap(apperrors.StoreIntegrity, "run migrations", err)
	}
	return nil
}
