package postgres

import (
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, chat_id, content, type, author, author_id, task_id,
    is_edit_suggestion, is_completion_confirmation, file_url, file_name, file_size,
    status, created_at, updated_at`

// touchChat bumps the chat activity time and locks the row, which serializes
// appends within one chat. The returned time never goes backwards.
const touchChat = `-- name: TouchChat :one
UPDATE chats
SET updated_at = GREATEST(clock_timestamp(), updated_at)
WHERE id = $1
RETURNING updated_at;
`

const insertMessage = `-- name: InsertMessage :one
INSERT INTO messages (
    id, chat_id, content, type, author, author_id, task_id,
    is_edit_suggestion, is_completion_confirmation, file_url, file_name, file_size,
    status, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14
)
RETURNING ` + messageColumns + `;
`

// AppendMessage stores a message and bumps the owning chat's updated_at in
// one transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, arg store.AppendMessageParams) (*models.Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	var createdAt time.Time
	if err := tx.QueryRow(ctx, touchChat, arg.ChatID).Scan(&createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to touch chat %s: %w", arg.ChatID, err)
	}

	msgType := arg.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	msg, err := scanMessage(tx.QueryRow(ctx, insertMessage,
		uuid.New(),
		arg.ChatID,
		arg.Content,
		string(msgType),
		arg.Author,
		arg.AuthorID,
		arg.TaskID, // pgx handles *uuid.UUID to NULL
		arg.IsEditSuggestion,
		arg.IsCompletionConfirmation,
		arg.FileURL,
		arg.FileName,
		arg.FileSize,
		string(models.MessageStatusSent),
		createdAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	s.logger.Debug().Str("message_id", msg.ID.String()).Str("chat_id", msg.ChatID.String()).Msg("message appended")
	return msg, nil
}

const listMessagesByChat = `-- name: ListMessagesByChat :many
SELECT ` + messageColumns + `
FROM messages
WHERE chat_id = $1
ORDER BY created_at ASC, seq ASC;
`

func (s *PostgresStore) ListMessagesByChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.Query(ctx, listMessagesByChat, chatID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	items := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		items = append(items, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return items, nil
}

const getMessageByID = `-- name: GetMessageByID :one
SELECT ` + messageColumns + `
FROM messages
WHERE id = $1;
`

func (s *PostgresStore) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRow(ctx, getMessageByID, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning message: %w", err)
	}
	return msg, nil
}

// UpdateMessage builds the query dynamically based on which fields are provided.
func (s *PostgresStore) UpdateMessage(ctx context.Context, messageID uuid.UUID, arg store.UpdateMessageParams) (*models.Message, error) {
	setClauses := []string{}
	args := []interface{}{}
	argID := 1

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argID))
		args = append(args, value)
		argID++
	}

	if arg.Content != nil {
		add("content", *arg.Content)
	}
	if arg.Type != nil {
		add("type", string(*arg.Type))
	}
	if arg.FileURL != nil {
		add("file_url", *arg.FileURL)
	}
	if arg.FileName != nil {
		add("file_name", *arg.FileName)
	}
	if arg.FileSize != nil {
		add("file_size", *arg.FileSize)
	}
	if arg.Status != nil {
		add("status", string(*arg.Status))
	}
	setClauses = append(setClauses, "updated_at = clock_timestamp()")

	query := fmt.Sprintf(`UPDATE messages SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argID, messageColumns)
	args = append(args, messageID)

	msg, err := scanMessage(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error updating message: %w", err)
	}
	return msg, nil
}

const setMessageConfirmation = `-- name: SetMessageConfirmation :one
UPDATE messages
SET is_completion_confirmation = $2,
    updated_at = clock_timestamp()
WHERE id = $1
RETURNING ` + messageColumns + `;
`

func (s *PostgresStore) SetMessageConfirmation(ctx context.Context, messageID uuid.UUID, confirmed bool) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRow(ctx, setMessageConfirmation, messageID, confirmed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error updating message confirmation: %w", err)
	}
	return msg, nil
}

const deleteMessage = `-- name: DeleteMessage :exec
DELETE FROM messages
WHERE id = $1;
`

func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, deleteMessage, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg     models.Message
		msgType string
		status  string
		taskID  uuid.NullUUID
	)
	if err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Content,
		&msgType,
		&msg.Author,
		&msg.AuthorID,
		&taskID,
		&msg.IsEditSuggestion,
		&msg.IsCompletionConfirmation,
		&msg.FileURL,
		&msg.FileName,
		&msg.FileSize,
		&status,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	msg.Status = models.MessageStatus(status)
	if taskID.Valid {
		id := taskID.UUID
		msg.TaskID = &id
	}
	return &msg, nil
}
