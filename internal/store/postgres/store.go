package postgres

import (
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.With().Str("component", "PostgresStore").Logger(),
	}
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the chat tables if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			s.logger.Error().Str("code", pgErr.Code).Str("detail", pgErr.Detail).Msg(pgErr.Message)
		}
		return fmt.Errorf("database error applying schema: %w", err)
	}
	return nil
}

// --- Chat Methods ---

const chatColumns = `id, object_id, created_at, updated_at`

const insertChatIfAbsent = `-- name: InsertChatIfAbsent :one
INSERT INTO chats (id, object_id)
SELECT $1::uuid, $2::uuid
WHERE EXISTS (SELECT 1 FROM objects WHERE id = $2::uuid)
ON CONFLICT (object_id) DO NOTHING
RETURNING ` + chatColumns + `;
`

const getChatByObjectID = `-- name: GetChatByObjectID :one
SELECT ` + chatColumns + `
FROM chats
WHERE object_id = $1;
`

// GetOrCreateChat returns the chat of an object, creating it on first access.
// The unique object_id constraint decides concurrent first accesses: the
// loser of the insert falls back to reading the winner's row. The fallback
// is a separate statement so it sees rows committed after the insert began.
func (s *PostgresStore) GetOrCreateChat(ctx context.Context, objectID uuid.UUID) (*models.Chat, error) {
	chat, err := scanChat(s.db.QueryRow(ctx, insertChatIfAbsent, uuid.New(), objectID))
	if err == nil {
		s.logger.Info().Str("chat_id", chat.ID.String()).Str("object_id", objectID.String()).Msg("chat created")
		return chat, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("database error creating chat for object %s: %w", objectID, err)
	}

	chat, err = scanChat(s.db.QueryRow(ctx, getChatByObjectID, objectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Nothing inserted and nothing to read: the object does not exist.
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching chat for object %s: %w", objectID, err)
	}
	return chat, nil
}

const getChatByID = `-- name: GetChatByID :one
SELECT ` + chatColumns + `
FROM chats
WHERE id = $1;
`

func (s *PostgresStore) GetChatByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := scanChat(s.db.QueryRow(ctx, getChatByID, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning chat: %w", err)
	}
	return chat, nil
}

const listChats = `-- name: ListChats :many
SELECT ` + chatColumns + `
FROM chats
ORDER BY updated_at DESC, id;
`

func (s *PostgresStore) ListChats(ctx context.Context) ([]models.Chat, error) {
	return s.queryChats(ctx, listChats)
}

const listChatsByAssignee = `-- name: ListChatsByAssignee :many
SELECT c.id, c.object_id, c.created_at, c.updated_at
FROM chats c
JOIN objects o ON o.id = c.object_id
WHERE o.assignee_id = $1
ORDER BY c.updated_at DESC, c.id;
`

func (s *PostgresStore) ListChatsByAssignee(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	return s.queryChats(ctx, listChatsByAssignee, userID)
}

func (s *PostgresStore) queryChats(ctx context.Context, query string, args ...interface{}) ([]models.Chat, error) {
	rows, err := s.db.Query(ctx, query, args...)
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

func scanChat(row pgx.Row) (*models.Chat, error) {
	var chat models.Chat
	if err := row.Scan(
		&chat.ID,
		&chat.ObjectID,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &chat, nil
}
