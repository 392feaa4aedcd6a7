package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBPair holds separate read and write connections for optimal SQLite concurrency.
// With WAL mode, readers don't block writers and vice versa.
// Using separate pools allows concurrent reads while serializing writes.
type DBPair struct {
	reader *sql.DB // Multiple connections for concurrent reads
	writer *sql.DB // Single connection for serialized writes
}

// Reader returns the read-only database connection pool.
func (p *DBPair) Reader() *sql.DB { return p.reader }

// Writer returns the read-write database connection pool.
func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both database connections.
func (p *DBPair) Close() error {
	var errs []error
	if err := p.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close reader: %w", err))
	}
	if err := p.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Init opens the SQLite database at dbPath, applies the schema and runs
// migrations. Writes go through a single connection; reads use a small pool
// that WAL lets proceed alongside the writer.
func Init(dbPath string) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	writer, err := open(dbPath, "rwc", 1, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA foreign_keys = ON;"} {
		if _, err := writer.Exec(pragma); err != nil {
			writer.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := runMigrations(writer); err != nil {
		writer.Close()
		return nil, err
	}

	// The reader is opened after the schema exists; mode=ro cannot create it.
	reader, err := open(dbPath, "ro", 4, 2)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DBPair{reader: reader, writer: writer}, nil
}

func open(dbPath, mode string, maxOpen, maxIdle int) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=%s", dbPath, mode)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(time.Hour)
	return conn, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// runMigrations brings databases created by earlier releases up to the
// current schema.
func runMigrations(db *sql.DB) error {
	scheduleColumns, err := tableColumns(db, "cast_schedules")
	if err != nil {
		return err
	}

	if !scheduleColumns["last_run_at"] {
		if _, err := db.Exec("ALTER TABLE cast_schedules ADD COLUMN last_run_at TEXT"); err != nil {
			return fmt.Errorf("add cast_schedules.last_run_at: %w", err)
		}
	}

	if !scheduleColumns["last_status"] {
		if _, err := db.Exec("ALTER TABLE cast_schedules ADD COLUMN last_status TEXT"); err != nil {
			return fmt.Errorf("add cast_schedules.last_status: %w", err)
		}
	}

	auditColumns, err := tableColumns(db, "audit_events")
	if err != nil {
		return err
	}

	if !auditColumns["receiver"] {
		if _, err := db.Exec("ALTER TABLE audit_events ADD COLUMN receiver TEXT"); err != nil {
			return fmt.Errorf("add audit_events.receiver: %w", err)
		}
	}

	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return columns, nil
}
