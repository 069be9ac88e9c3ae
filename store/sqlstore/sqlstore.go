// Package sqlstore is a record store on SQLite or PostgreSQL.
//
// credentials.id is both the primary key of a credential and a foreign key
// to customers.id, so the database itself enforces the shared-key pairing.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/store"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	currentSchemaVersion = 1
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQL store.RecordStore.
type Store struct {
	db  *sqlx.DB
	dsn string
}

var _ store.RecordStore = (*Store)(nil)

// Open connects to the database. For sqlite3 the dsn is a file path and
// foreign key enforcement is switched on.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer; one connection avoids "database is locked"
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Store{db: db, dsn: dsn}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_foreign_keys") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations. It runs on a dedicated
// connection because closing the migrator closes its database handle.
func (s *Store) Migrate() error {
	driver := s.db.DriverName()

	conn, err := sql.Open(driver, s.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	var dbDriver database.Driver
	switch driver {
	case DriverSQLite:
		dbDriver, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	case DriverPostgres:
		dbDriver, err = migratepg.WithInstance(conn, &migratepg.Config{})
	default:
		err = fmt.Errorf("unsupported sql driver %q", driver)
	}
	if err != nil {
		_ = conn.Close()
		return err
	}

	sourceDriver, err := iofs.New(migrations, "migrations")
	if err != nil {
		_ = conn.Close()
		return err
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer migrator.Close()

	err = migrator.Migrate(currentSchemaVersion)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Atomic runs fn inside one database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sqlx.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err := fn(&Tx{repo: repo{db: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) view() repo {
	return repo{db: s.db}
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	return s.view().GetCustomer(ctx, id)
}

func (s *Store) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	return s.view().ListCustomers(ctx)
}

func (s *Store) GetCredential(ctx context.Context, id string) (*model.Credential, error) {
	return s.view().GetCredential(ctx, id)
}

func (s *Store) GetCredentialWithCustomer(ctx context.Context, id string) (*model.Credential, error) {
	return s.view().GetCredentialWithCustomer(ctx, id)
}

func (s *Store) ListCredentials(ctx context.Context) ([]*model.Credential, error) {
	return s.view().ListCredentials(ctx)
}

func (s *Store) ListCredentialsWithCustomer(ctx context.Context) ([]*model.Credential, error) {
	return s.view().ListCredentialsWithCustomer(ctx)
}
