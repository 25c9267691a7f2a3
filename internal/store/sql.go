package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLiteTimeLayout is how soft delete timestamps are stored in SQLite
// tables: UTC, second precision, lexically ordered.
const SQLiteTimeLayout = "2006-01-02 15:04:05"

type dialect struct {
	name   string
	driver string
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite"}
	postgresDialect = dialect{name: "postgres", driver: "pgx"}
)

func (d dialect) placeholder(n int) string {
	if d.name == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d dialect) timeArg(t time.Time) any {
	if d.name == "sqlite" {
		return t.UTC().Format(SQLiteTimeLayout)
	}
	return t.UTC()
}

func (d dialect) columnsQuery(schema string) (string, []any) {
	if d.name == "postgres" {
		return `SELECT column_name FROM information_schema.columns
WHERE table_name = $1
  AND table_schema = CASE WHEN $2 = '' THEN current_schema() ELSE $2 END
ORDER BY ordinal_position`, []any{schema}
	}
	if schema != "" {
		return `SELECT name FROM pragma_table_info(?, ?)`, []any{schema}
	}
	return `SELECT name FROM pragma_table_info(?)`, nil
}

// DB is the SQL connection shared by every model handle.
type DB struct {
	db      *sql.DB
	dialect dialect
	logger  *log.Logger
}

// Open connects to driver ("sqlite" or "postgres") at dsn.
func Open(ctx context.Context, driver, dsn string, logger *log.Logger) (*DB, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var d dialect
	switch driver {
	case "sqlite":
		d = sqliteDialect
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	case "postgres":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DB{db: db, dialect: d, logger: logger}, nil
}

// Exec runs a statement directly. It is used for schema setup.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Columns lists the columns of table; an unknown table has none.
func (d *DB) Columns(ctx context.Context, table string) ([]string, error) {
	schema, name := splitTable(table)
	q, extra := d.dialect.columnsQuery(schema)
	args := append([]any{name}, extra...)

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}

func splitTable(table string) (schema, name string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

func quoteIdent(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

type scanner interface {
	Columns() ([]string, error)
	Scan(dest ...any) error
}

func scanFields(sc scanner) (map[string]any, error) {
	cols, err := sc.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := sc.Scan(ptrs...); err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			fields[c] = string(b)
			continue
		}
		fields[c] = vals[i]
	}
	return fields, nil
}
