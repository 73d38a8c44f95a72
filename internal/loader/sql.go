package loader

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/rewired-gh/crashmap/internal/models"

	// Register the "pgx" and "sqlite" drivers with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported driver names for SQLLoader.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLLoader reads collision rows from a table in SQLite or PostgreSQL.
// The table's column names go through the same alias table as CSV headers.
type SQLLoader struct {
	Driver  string // DriverSQLite or DriverPostgres
	DSN     string
	Table   string
	MaxRows int

	// DB, when set, is used instead of opening Driver/DSN and is not closed by Load.
	DB *sql.DB
}

// Source describes the table being read without leaking credentials.
func (l *SQLLoader) Source() string {
	return fmt.Sprintf("%s table %s", l.Driver, l.Table)
}

// NormalizeDriver maps config spellings to a registered driver name.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", name)
	}
}

// Open opens the configured database, using a single connection for SQLite
// so in-memory databases stay visible across queries.
func (l *SQLLoader) Open() (*sql.DB, error) {
	driver, err := NormalizeDriver(l.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, l.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}
	return db, nil
}

// Load selects every row of the table (up to MaxRows) and parses it.
func (l *SQLLoader) Load(ctx context.Context) ([]models.CollisionRecord, Stats, error) {
	if !tableName.MatchString(l.Table) {
		return nil, Stats{}, fmt.Errorf("invalid table name %q", l.Table)
	}

	db := l.DB
	if db == nil {
		var err error
		if db, err = l.Open(); err != nil {
			return nil, Stats{}, err
		}
		defer db.Close()
	}

	query := "SELECT * FROM " + l.Table
	if l.MaxRows > 0 {
		query += fmt.Sprintf(" LIMIT %d", l.MaxRows)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to query %s: %w", l.Table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to read columns: %w", err)
	}

	c, err := newCollector(columns)
	if err != nil {
		return nil, Stats{}, err
	}

	cells := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	values := make([]string, len(columns))

	line := 0
	for rows.Next() {
		line++
		if err := rows.Scan(dest...); err != nil {
			c.stats.Rows++
			c.stats.Malformed++
			continue
		}
		for i, cell := range cells {
			values[i] = ""
			if cell.Valid {
				values[i] = cell.String
			}
		}
		c.add(line, values)
	}
	if err := rows.Err(); err != nil {
		return nil, c.stats, fmt.Errorf("failed to iterate %s: %w", l.Table, err)
	}

	return c.records, c.stats, nil
}
