package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"github.com/nixxel-company-limited/todo-receipts/receipt"
	"go.uber.org/zap"
)

// DefaultCategory is assigned to items created without one.
const DefaultCategory = "General"

// ErrNotFound is returned when no item has the requested id.
var ErrNotFound = errors.New("todo not found")

const schema = `CREATE TABLE IF NOT EXISTS todos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	completed INTEGER DEFAULT 0,
	category TEXT DEFAULT 'General',
	priority TEXT DEFAULT 'medium',
	time_estimate TEXT DEFAULT '',
	order_position INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	scheduled_date TEXT DEFAULT NULL,
	user_id TEXT NOT NULL DEFAULT 'ashni'
)`

// migrations add columns missing from databases created by older versions.
var migrations = []struct {
	column string
	stmts  []string
}{
	{"order_position", []string{
		"ALTER TABLE todos ADD COLUMN order_position INTEGER DEFAULT 0",
		`UPDATE todos SET order_position = (
			SELECT COUNT(*) FROM todos t2 WHERE t2.created_at <= todos.created_at
		)`,
	}},
	{"category", []string{"ALTER TABLE todos ADD COLUMN category TEXT DEFAULT 'General'"}},
	{"priority", []string{"ALTER TABLE todos ADD COLUMN priority TEXT DEFAULT 'medium'"}},
	{"time_estimate", []string{"ALTER TABLE todos ADD COLUMN time_estimate TEXT DEFAULT ''"}},
	{"scheduled_date", []string{"ALTER TABLE todos ADD COLUMN scheduled_date TEXT DEFAULT NULL"}},
}

const selectColumns = `SELECT id, title, completed, category, priority, time_estimate,
	order_position, created_at, updated_at, scheduled_date FROM todos`

// Store is the SQLite backed to-do list.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	s := &Store{db: db, now: time.Now, logger: logger.Named("store")}
	s.logger.Debug("Database opened", zap.String("path", path))
	return s, nil
}

func migrate(db *sql.DB) error {
	rows, err := db.Query("PRAGMA table_info(todos)")
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if existing[m.column] {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("add column %s: %w", m.column, err)
			}
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Category string
	// Date matches scheduled_date exactly, YYYY-MM-DD
	Date string
}

// List returns the matching items ordered by position, newest first within
// a position.
func (s *Store) List(ctx context.Context, f Filter) ([]receipt.TodoItem, error) {
	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Date != "" {
		conds = append(conds, "scheduled_date = ?")
		args = append(args, f.Date)
	}

	query := selectColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY order_position ASC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	var todos []receipt.TodoItem
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// Get returns the item with id.
func (s *Store) Get(ctx context.Context, id int64) (receipt.TodoItem, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return receipt.TodoItem{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return t, err
}

// NewTodo holds the fields of an item to create.
type NewTodo struct {
	Title         string
	Category      string
	Priority      receipt.Priority
	TimeEstimate  string
	ScheduledDate string
}

// Add appends an item at the end of the list.
func (s *Store) Add(ctx context.Context, n NewTodo) (receipt.TodoItem, error) {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		return receipt.TodoItem{}, errors.New("title is required")
	}
	category := n.Category
	if category == "" {
		category = DefaultCategory
	}
	priority := n.Priority
	if priority == "" {
		priority = receipt.PriorityMedium
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return receipt.TodoItem{}, err
	}
	defer tx.Rollback()

	var maxOrder sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(order_position) FROM todos").Scan(&maxOrder); err != nil {
		return receipt.TodoItem{}, fmt.Errorf("failed to read list order: %w", err)
	}
	order := 0
	if maxOrder.Valid {
		order = int(maxOrder.Int64) + 1
	}

	now := s.now().UnixMilli()
	var scheduled any
	if n.ScheduledDate != "" {
		scheduled = n.ScheduledDate
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO todos
		(title, completed, category, priority, time_estimate, order_position, created_at, updated_at, scheduled_date)
		VALUES (?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		title, category, string(priority), n.TimeEstimate, order, now, now, scheduled)
	if err != nil {
		return receipt.TodoItem{}, fmt.Errorf("failed to insert todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return receipt.TodoItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return receipt.TodoItem{}, err
	}

	return receipt.TodoItem{
		ID:            id,
		Title:         title,
		Category:      category,
		Priority:      priority,
		TimeEstimate:  n.TimeEstimate,
		Order:         order,
		CreatedAt:     now,
		UpdatedAt:     now,
		ScheduledDate: n.ScheduledDate,
	}, nil
}

// SetCompleted marks an item done or not done.
func (s *Store) SetCompleted(ctx context.Context, id int64, completed bool) error {
	done := 0
	if completed {
		done = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE todos SET completed = ?, updated_at = ? WHERE id = ?",
		done, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	return expectOne(res, id)
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(row scanner) (receipt.TodoItem, error) {
	var (
		t         receipt.TodoItem
		completed int
		category  sql.NullString
		priority  sql.NullString
		estimate  sql.NullString
		scheduled sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &completed, &category, &priority, &estimate,
		&t.Order, &t.CreatedAt, &t.UpdatedAt, &scheduled); err != nil {
		return receipt.TodoItem{}, err
	}

	t.Completed = completed == 1
	t.Category = category.String
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	t.Priority = receipt.ParsePriority(priority.String)
	t.TimeEstimate = estimate.String
	t.ScheduledDate = scheduled.String
	return t, nil
}
