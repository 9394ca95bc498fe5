package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the daily mood entries.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "moodtrack.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Entries ---

const entryColumns = `id, date, mood, sleep_hours, steps, workouts, caffeine, meals, work_hours, screen_time, journal, tags`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc rowScanner) (Entry, error) {
	var e Entry
	var date, tags string
	if err := sc.Scan(&e.ID, &date, &e.Mood, &e.SleepHours, &e.Steps, &e.Workouts,
		&e.Caffeine, &e.Meals, &e.WorkHours, &e.ScreenTime, &e.Journal, &tags); err != nil {
		return Entry{}, err
	}
	d, err := ParseDate(date)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing date %q: %w", date, err)
	}
	e.Date = d
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return Entry{}, fmt.Errorf("parsing tags for %s: %w", date, err)
		}
	}
	return e, nil
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshalling tags: %w", err)
	}
	return string(b), nil
}

// dateTaken reports whether a row other than excludeID already holds date.
func dateTaken(ctx context.Context, tx *sql.Tx, date string, excludeID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE date = ? AND id != ?`, date, excludeID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateEntry inserts e and returns it with its assigned ID.
// Returns ErrDuplicateDate if an entry already exists for e.Date.
func (s *Store) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	tags, err := marshalTags(e.Tags)
	if err != nil {
		return Entry{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	taken, err := dateTaken(ctx, tx, e.DateString(), 0)
	if err != nil {
		return Entry{}, fmt.Errorf("checking date: %w", err)
	}
	if taken {
		return Entry{}, ErrDuplicateDate
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (date, mood, sleep_hours, steps, workouts, caffeine, meals, work_hours, screen_time, journal, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DateString(), e.Mood, e.SleepHours, e.Steps, e.Workouts, e.Caffeine,
		e.Meals, e.WorkHours, e.ScreenTime, e.Journal, tags,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing entry: %w", err)
	}
	e.ID = id
	return e, nil
}

// GetEntry returns the entry with the given ID.
func (s *Store) GetEntry(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// ListEntries returns entries ascending by date, restricted to f's window.
func (s *Store) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries`
	var where []string
	var args []any
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, f.From.Format(DateLayout))
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, f.To.Format(DateLayout))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// UpdateEntry replaces every field of the entry with the given ID.
func (s *Store) UpdateEntry(ctx context.Context, id int64, e Entry) (Entry, error) {
	tags, err := marshalTags(e.Tags)
	if err != nil {
		return Entry{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	taken, err := dateTaken(ctx, tx, e.DateString(), id)
	if err != nil {
		return Entry{}, fmt.Errorf("checking date: %w", err)
	}
	if taken {
		return Entry{}, ErrDuplicateDate
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE entries SET date = ?, mood = ?, sleep_hours = ?, steps = ?, workouts = ?, caffeine = ?,
			meals = ?, work_hours = ?, screen_time = ?, journal = ?, tags = ?
		WHERE id = ?`,
		e.DateString(), e.Mood, e.SleepHours, e.Steps, e.Workouts, e.Caffeine,
		e.Meals, e.WorkHours, e.ScreenTime, e.Journal, tags, id,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("updating entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, err
	}
	if n == 0 {
		return Entry{}, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing update: %w", err)
	}
	e.ID = id
	return e, nil
}

// DeleteEntry removes the entry with the given ID.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountEntries returns the number of stored entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
