// Package local implements the backend contract against an embedded
// SQLite database.
//
// This is the desktop-mode store: process-local, low-latency, assumed
// available whenever a database path is configured. It uses
// ncruces/go-sqlite3 in embedded mode with WAL so a concurrently
// running watcher process can read while the CLI writes.
//
// Schema and query semantics mirror the memo/daily_plan tables of the
// original desktop application so existing database files keep working.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/model"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is the embedded SQLite implementation of backend.Client.
type Store struct {
	conn *sql.DB
	path string
}

var _ backend.Client = (*Store)(nil)

// Open creates a connection to the database at path, creating the file
// and parent directory if needed.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := local.Open("~/.local/share/memod/memod.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, backend.WrapUnavailable(fmt.Errorf("failed to ping database: %w", err))
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return s, nil
}

// Path returns the database file path. The poll notifier watches it for
// writes from other processes.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the memo and daily_plan tables and their indexes.
// Idempotent - safe to call on every startup.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS memo (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		category TEXT NOT NULL DEFAULT 'daily',
		target_date TEXT,
		completion_status TEXT NOT NULL DEFAULT 'pending',
		content TEXT NOT NULL DEFAULT '',
		pinned INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS daily_plan (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plan_date TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		category TEXT DEFAULT 'daily',
		completed INTEGER NOT NULL DEFAULT 0,
		priority INTEGER DEFAULT 0,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		completed_ts BIGINT
	);

	CREATE INDEX IF NOT EXISTS idx_memo_category ON memo (category);
	CREATE INDEX IF NOT EXISTS idx_memo_target_date ON memo (target_date);
	CREATE INDEX IF NOT EXISTS idx_memo_created_ts ON memo (created_ts);
	CREATE INDEX IF NOT EXISTS idx_daily_plan_date ON daily_plan (plan_date);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

const memoColumns = `id, uid, created_ts, updated_ts, category, target_date,
	completion_status, content, pinned, archived`

// ListMemos implements backend.Client.
func (s *Store) ListMemos(ctx context.Context, opts backend.ListMemosOptions) ([]model.Memo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = backend.DefaultListLimit
	}

	query := `SELECT ` + memoColumns + ` FROM memo WHERE archived = 0`
	args := []interface{}{}

	if opts.Category != "" {
		query += ` AND category = ?`
		args = append(args, opts.Category)
	}

	query += ` ORDER BY pinned DESC, created_ts DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memos: %w", err)
	}
	defer rows.Close()

	return scanMemos(rows)
}

// CreateMemo implements backend.Client. The store assigns a fresh uid
// and uses the current time for both timestamps.
func (s *Store) CreateMemo(ctx context.Context, params backend.CreateMemoParams) (*model.Memo, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	category := params.Category
	if category == "" {
		category = model.DefaultCategory
	}
	now := time.Now().Unix()
	uid := uuid.NewString()

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO memo (uid, created_ts, updated_ts, category, target_date, content)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uid, now, now, category, params.TargetDate, params.Content,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert memo: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	return s.getMemoContext(ctx, s.conn, id)
}

// UpdateMemo implements backend.Client. The read and write run inside
// one transaction so the partial merge is atomic.
func (s *Store) UpdateMemo(ctx context.Context, id int64, params backend.UpdateMemoParams) (*model.Memo, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getMemoContext(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	merged := applyUpdate(*current, params)
	merged.UpdatedTS = time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		UPDATE memo SET content = ?, category = ?, target_date = ?,
			completion_status = ?, pinned = ?, archived = ?, updated_ts = ?
		WHERE id = ?`,
		merged.Content, merged.Category, merged.TargetDate,
		string(merged.CompletionStatus), boolToInt(merged.Pinned), boolToInt(merged.Archived),
		merged.UpdatedTS, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update memo %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	return &merged, nil
}

// DeleteMemo implements backend.Client. Deleting a missing id is a
// no-op (idempotent).
func (s *Store) DeleteMemo(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM memo WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete memo %d: %w", id, err)
	}
	return nil
}

// ToggleMemoStatus implements backend.Client. The read-modify-write
// runs inside one transaction.
func (s *Store) ToggleMemoStatus(ctx context.Context, id int64) (*model.Memo, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getMemoContext(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	next := current.CompletionStatus.Next()
	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx,
		`UPDATE memo SET completion_status = ?, updated_ts = ? WHERE id = ?`,
		string(next), now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle memo %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit toggle: %w", err)
	}

	toggled := *current
	toggled.CompletionStatus = next
	toggled.UpdatedTS = now
	return &toggled, nil
}

// ListPlansByDate implements backend.Client.
func (s *Store) ListPlansByDate(ctx context.Context, date string) ([]model.DailyPlan, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, plan_date, title, description, category, completed, priority,
			created_ts, updated_ts, completed_ts
		FROM daily_plan
		WHERE plan_date = ?
		ORDER BY priority DESC, created_ts ASC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans for %s: %w", date, err)
	}
	defer rows.Close()

	return scanPlans(rows)
}

// SearchMemos returns non-archived memos whose content matches query,
// newest first, capped at 50 rows.
func (s *Store) SearchMemos(ctx context.Context, query string) ([]model.Memo, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+memoColumns+` FROM memo
		WHERE content LIKE ? AND archived = 0
		ORDER BY created_ts DESC
		LIMIT 50`,
		"%"+query+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search memos: %w", err)
	}
	defer rows.Close()

	return scanMemos(rows)
}

// ListMemosByDate returns non-archived memos targeted at, or created
// on, the given calendar date.
func (s *Store) ListMemosByDate(ctx context.Context, date string) ([]model.Memo, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+memoColumns+` FROM memo
		WHERE (target_date = ? OR DATE(created_ts, 'unixepoch', 'localtime') = ?)
		AND archived = 0
		ORDER BY pinned DESC, created_ts DESC`,
		date, date,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memos for %s: %w", date, err)
	}
	defer rows.Close()

	return scanMemos(rows)
}

// querier lets getMemoContext run against either the pool or a tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) getMemoContext(ctx context.Context, q querier, id int64) (*model.Memo, error) {
	row := q.QueryRowContext(ctx, `SELECT `+memoColumns+` FROM memo WHERE id = ?`, id)

	m, err := scanMemo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load memo %d: %w", id, err)
	}
	return m, nil
}

// applyUpdate merges non-nil params onto a copy of the current row.
func applyUpdate(current model.Memo, params backend.UpdateMemoParams) model.Memo {
	if params.Content != nil {
		current.Content = *params.Content
	}
	if params.Category != nil {
		current.Category = *params.Category
	}
	if params.TargetDate != nil {
		current.TargetDate = params.TargetDate
	}
	if params.CompletionStatus != nil {
		current.CompletionStatus = *params.CompletionStatus
	}
	if params.Pinned != nil {
		current.Pinned = *params.Pinned
	}
	if params.Archived != nil {
		current.Archived = *params.Archived
	}
	return current
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemo(row scanner) (*model.Memo, error) {
	var m model.Memo
	var targetDate sql.NullString
	var status string
	var pinned, archived int64

	err := row.Scan(
		&m.ID,
		&m.UID,
		&m.CreatedTS,
		&m.UpdatedTS,
		&m.Category,
		&targetDate,
		&status,
		&m.Content,
		&pinned,
		&archived,
	)
	if err != nil {
		return nil, err
	}

	if targetDate.Valid {
		m.TargetDate = &targetDate.String
	}
	m.CompletionStatus = model.CompletionStatus(status)
	m.Pinned = pinned != 0
	m.Archived = archived != 0

	return &m, nil
}

func scanMemos(rows *sql.Rows) ([]model.Memo, error) {
	var memos []model.Memo

	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memo: %w", err)
		}
		memos = append(memos, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memos: %w", err)
	}

	return memos, nil
}

func scanPlans(rows *sql.Rows) ([]model.DailyPlan, error) {
	var plans []model.DailyPlan

	for rows.Next() {
		var p model.DailyPlan
		var description sql.NullString
		var completed int64
		var completedTS sql.NullInt64

		err := rows.Scan(
			&p.ID,
			&p.PlanDate,
			&p.Title,
			&description,
			&p.Category,
			&completed,
			&p.Priority,
			&p.CreatedTS,
			&p.UpdatedTS,
			&completedTS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}

		p.Description = description.String
		p.Completed = completed != 0
		if completedTS.Valid {
			v := completedTS.Int64
			p.CompletedTS = &v
		}

		plans = append(plans, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
