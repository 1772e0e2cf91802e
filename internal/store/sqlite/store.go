package sqlite

import (
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Compile-time check to ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore handles SQLite database operations. Timestamps are stored as
// unix nanoseconds so ordering survives sub-second appends.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// If dbPath is empty, defaults to "./data/buildtrack.db"
func NewSQLiteStore(ctx context.Context, dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/buildtrack.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: SQLite has a single writer and this keeps
	// transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "SQLiteStore").Logger(),
	}, nil
}

// DB exposes the handle for adapters sharing the same file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates tables if they don't exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("database error applying schema: %w", err)
	}
	return nil
}

// SeedObject inserts a tracked object row. The object table belongs to the
// project subsystem; this exists for development databases and tests.
func (s *SQLiteStore) SeedObject(ctx context.Context, objectID uuid.UUID, assigneeID *uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (id, assignee_id) VALUES (?, ?)`,
		objectID.String(), nullableUUID(assigneeID))
	if err != nil {
		return fmt.Errorf("failed to seed object %s: %w", objectID, err)
	}
	return nil
}

// SeedTask inserts an open checklist item.
func (s *SQLiteStore) SeedTask(ctx context.Context, taskID uuid.UUID, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checklist_items (id, text, completed) VALUES (?, ?, 0)`,
		taskID.String(), text)
	if err != nil {
		return fmt.Errorf("failed to seed task %s: %w", taskID, err)
	}
	return nil
}

// DeleteObject removes an object row, cascading to its chat and messages.
func (s *SQLiteStore) DeleteObject(ctx context.Context, objectID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, objectID.String())
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectID, err)
	}
	return nil
}

// --- Chat Methods ---

const chatColumns = `id, object_id, created_at, updated_at`

const insertChatIfAbsent = `
INSERT INTO chats (id, object_id, created_at, updated_at)
SELECT ?1, ?2, ?3, ?3
WHERE EXISTS (SELECT 1 FROM objects WHERE id = ?2)
ON CONFLICT (object_id) DO NOTHING
`

// GetOrCreateChat returns the chat of an object, creating it on first access.
func (s *SQLiteStore) GetOrCreateChat(ctx context.Context, objectID uuid.UUID) (*models.Chat, error) {
	res, err := s.db.ExecContext(ctx, insertChatIfAbsent,
		uuid.New().String(), objectID.String(), time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("database error creating chat for object %s: %w", objectID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info().Str("object_id", objectID.String()).Msg("chat created")
	}

	chat, err := scanChat(s.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE object_id = ?`, objectID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching chat for object %s: %w", objectID, err)
	}
	return chat, nil
}

func (s *SQLiteStore) GetChatByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := scanChat(s.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = ?`, chatID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning chat: %w", err)
	}
	return chat, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context) ([]models.Chat, error) {
	return s.queryChats(ctx, `SELECT `+chatColumns+` FROM chats ORDER BY updated_at DESC, id`)
}

func (s *SQLiteStore) ListChatsByAssignee(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	return s.queryChats(ctx, `
		SELECT c.id, c.object_id, c.created_at, c.updated_at
		FROM chats c
		JOIN objects o ON o.id = c.object_id
		WHERE o.assignee_id = ?
		ORDER BY c.updated_at DESC, c.id`, userID.String())
}

func (s *SQLiteStore) queryChats(ctx context.Context, query string, args ...interface{}) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying chats: %w", err)
	}
	defer rows.Close()

	items := []models.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning chat row: %w", err)
		}
		items = append(items, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return items, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var (
		chat                 models.Chat
		createdAt, updatedAt int64
	)
	if err := row.Scan(&chat.ID, &chat.ObjectID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	chat.CreatedAt = fromNanos(createdAt)
	chat.UpdatedAt = fromNanos(updatedAt)
	return &chat, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}
