package source

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database drivers, as named in configuration.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

func driverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	case "mysql":
		return DriverMySQL, nil
	}
	return "", fmt.Errorf("unsupported db driver %q (want sqlite, pgx or mysql)", driver)
}

// OpenDB connects to the database named by driver and dsn.
func OpenDB(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	name, err := driverName(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("open %s database: empty dsn", name)
	}
	db, err := sqlx.ConnectContext(ctx, name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", name, err)
	}
	if name == DriverSQLite {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// SupportsProcedures reports whether combination stored procedures can be
// called through driver.
func SupportsProcedures(driver string) bool {
	name, err := driverName(driver)
	return err == nil && name == DriverMySQL
}

func placeholders(driver string) sq.PlaceholderFormat {
	if driver == DriverPostgres {
		return sq.Dollar
	}
	return sq.Question
}
