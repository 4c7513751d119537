package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"planner/internal/model"
)

// ErrLoad is returned when the bulk task fetch fails.
var ErrLoad = errors.New("load tasks")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// pageSize bounds one FetchAll round trip.
const pageSize = 1000

// Repository is the remote row store holding tasks, weight logs and user
// settings. It speaks to SQLite (modernc) or Postgres (pgx) through database/sql.
type Repository struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to the store and runs migrations. For SQLite, dsn is a file
// path (parent directories are created) or ":memory:".
func Open(driver, dsn string, logger *slog.Logger) (*Repository, error) {
	switch driver {
	case DriverSQLite:
		return openSQLite(dsn, logger)
	case DriverPostgres:
		db, err := sql.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return newRepository(db, driver, logger, "postgres")
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func openSQLite(dbPath string, logger *slog.Logger) (*Repository, error) {
	source := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		source = "file:" + dbPath + "?cache=shared&mode=rwc&_journal_mode=WAL"
	}

	db, err := sql.Open(DriverSQLite, source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writers

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	return newRepository(db, DriverSQLite, logger, dbPath)
}

func newRepository(db *sql.DB, driver string, logger *slog.Logger, where string) (*Repository, error) {
	repo := &Repository{db: db, driver: driver, logger: logger}

	if err := repo.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("remote store initialized", slog.String("driver", driver), slog.String("path", where))
	return repo, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Migrate creates the tables if they don't exist.
func (r *Repository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT    PRIMARY KEY,
			user_id    TEXT    NOT NULL,
			date       TEXT    NOT NULL,
			text       TEXT    NOT NULL,
			time       TEXT,
			reminder   INTEGER NOT NULL DEFAULT 0,
			done       BOOLEAN NOT NULL DEFAULT FALSE,
			position   INTEGER NOT NULL DEFAULT 0,
			category   TEXT,
			recurrence TEXT,
			priority   TEXT,
			notes      TEXT,
			subtasks   TEXT    NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_date ON tasks(user_id, date)`,
		`CREATE TABLE IF NOT EXISTS weight_logs (
			user_id   TEXT NOT NULL,
			date      TEXT NOT NULL,
			weight_kg DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (user_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id        TEXT PRIMARY KEY,
			weight_goal_kg DOUBLE PRECISION
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}

	r.logger.Debug("database migration complete")
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertTaskSQL = `INSERT INTO tasks
	(id, user_id, date, text, time, reminder, done, position, category, recurrence, priority, notes, subtasks)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		user_id = excluded.user_id,
		date = excluded.date,
		text = excluded.text,
		time = excluded.time,
		reminder = excluded.reminder,
		done = excluded.done,
		position = excluded.position,
		category = excluded.category,
		recurrence = excluded.recurrence,
		priority = excluded.priority,
		notes = excluded.notes,
		subtasks = excluded.subtasks`

func (r *Repository) upsert(ctx context.Context, ex execer, userID, dateKey string, t model.Task) error {
	subtasks := t.Subtasks
	if subtasks == nil {
		subtasks = []model.Subtask{}
	}
	raw, err := json.Marshal(subtasks)
	if err != nil {
		return fmt.Errorf("encode subtasks: %w", err)
	}

	_, err = ex.ExecContext(ctx, r.rebind(upsertTaskSQL),
		t.ID, userID, dateKey, t.Text,
		nullString(t.Time), t.Reminder, t.Done, t.Position,
		nullString(string(t.Category)), nullString(string(t.Recurrence)),
		nullString(string(t.Priority)), nullString(t.Notes), string(raw),
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

// Upsert inserts or replaces a task by id.
func (r *Repository) Upsert(ctx context.Context, userID, dateKey string, task model.Task) error {
	return r.upsert(ctx, r.db, userID, dateKey, task)
}

// Delete removes a task by id. A missing id is not an error, so replays are safe.
func (r *Repository) Delete(ctx context.Context, taskID string) error {
	if _, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM tasks WHERE id = ?`), taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

// BatchUpsertPositions writes a whole bucket in one transaction.
func (r *Repository) BatchUpsertPositions(ctx context.Context, userID, dateKey string, tasks []model.Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tasks {
		if err := r.upsert(ctx, tx, userID, dateKey, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

// FetchAll loads every task of the user grouped by date, page by page.
func (r *Repository) FetchAll(ctx context.Context, userID string) (map[string][]model.Task, error) {
	out := make(map[string][]model.Task)
	query := r.rebind(`SELECT id, date, text, time, reminder, done, position, category, recurrence, priority, notes, subtasks
		FROM tasks WHERE user_id = ? ORDER BY date, position, id LIMIT ? OFFSET ?`)

	for offset := 0; ; offset += pageSize {
		n, err := r.fetchPage(ctx, query, userID, offset, out)
		if err != nil {
			r.logger.Error("failed to fetch tasks", slog.String("error", err.Error()), slog.Int("offset", offset))
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		if n < pageSize {
			break
		}
	}
	return out, nil
}

func (r *Repository) fetchPage(ctx context.Context, query, userID string, offset int, out map[string][]model.Task) (int, error) {
	rows, err := r.db.QueryContext(ctx, query, userID, pageSize, offset)
	if err != nil {
		return 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return n, err
		}
		out[t.Date] = append(out[t.Date], t)
		n++
	}
	return n, rows.Err()
}

// scanTask scans a single row into a Task.
func scanTask(rows *sql.Rows) (model.Task, error) {
	var t model.Task
	var timeStr, category, recurrence, priority, notes sql.NullString
	var subtasks string

	err := rows.Scan(&t.ID, &t.Date, &t.Text, &timeStr, &t.Reminder, &t.Done, &t.Position,
		&category, &recurrence, &priority, &notes, &subtasks)
	if err != nil {
		return model.Task{}, fmt.Errorf("scan task: %w", err)
	}

	t.Time = timeStr.String
	t.Category = model.Category(category.String)
	t.Recurrence = model.Recurrence(recurrence.String)
	t.Priority = model.Priority(priority.String)
	t.Notes = notes.String
	if subtasks != "" {
		if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
			return model.Task{}, fmt.Errorf("decode subtasks of %s: %w", t.ID, err)
		}
	}
	if len(t.Subtasks) == 0 {
		t.Subtasks = nil
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
