package postgres

import (
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/pkg/errors"
)

// RunMigrations applies all pending schema migrations from migrationsPath
// (a file:// URL) against the database identified by dbURL.
func RunMigrations(migrationsPath, dbURL string, logger logging.Logger) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to initialize migrator")
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			logger.Info("database schema up to date")
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read migration version")
	}
	logger.Info("migrations applied",
		logging.Int("version", int(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// RollbackMigrations rolls back the most recent `steps` migrations.
func RollbackMigrations(migrationsPath, dbURL string, steps int, logger logging.Logger) error {
	if steps <= 0 {
		return errors.New(errors.ErrCodeBadRequest, "rollback steps must be positive")
	}

	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to initialize migrator")
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		return errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to roll back %d migrations", steps)
	}
	logger.Info("migrations rolled back", logging.Int("steps", steps))
	return nil
}
