package sqlite

import (
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `id, chat_id, content, type, author, author_id, task_id,
    is_edit_suggestion, is_completion_confirmation, file_url, file_name, file_size,
    status, created_at, updated_at`

// AppendMessage stores a message and bumps the owning chat's updated_at in
// one transaction. created_at is never earlier than the chat's last activity,
// so a clock step backwards cannot reorder the thread.
func (s *SQLiteStore) AppendMessage(ctx context.Context, arg store.AppendMessageParams) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	var last int64
	err = tx.QueryRowContext(ctx, `SELECT updated_at FROM chats WHERE id = ?`, arg.ChatID.String()).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read chat %s: %w", arg.ChatID, err)
	}
	createdAt := time.Now().UnixNano()
	if createdAt < last {
		createdAt = last
	}

	if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`,
		createdAt, arg.ChatID.String()); err != nil {
		return nil, fmt.Errorf("failed to touch chat %s: %w", arg.ChatID, err)
	}

	msgType := arg.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	msgID := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msgID.String(),
		arg.ChatID.String(),
		arg.Content,
		string(msgType),
		arg.Author,
		arg.AuthorID.String(),
		nullableUUID(arg.TaskID),
		arg.IsEditSuggestion,
		arg.IsCompletionConfirmation,
		arg.FileURL,
		arg.FileName,
		arg.FileSize,
		string(models.MessageStatusSent),
		createdAt,
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	msg, err := scanMessage(tx.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, msgID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	s.logger.Debug().Str("message_id", msg.ID.String()).Str("chat_id", msg.ChatID.String()).Msg("message appended")
	return msg, nil
}

func (s *SQLiteStore) ListMessagesByChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, rowid ASC`, chatID.String())
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

func (s *SQLiteStore) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, messageID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning message: %w", err)
	}
	return msg, nil
}

// UpdateMessage builds the query dynamically based on which fields are provided.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, messageID uuid.UUID, arg store.UpdateMessageParams) (*models.Message, error) {
	setClauses := []string{}
	args := []interface{}{}

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, column+" = ?")
		args = append(args, value)
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
	add("updated_at", time.Now().UnixNano())
	args = append(args, messageID.String())

	query := fmt.Sprintf(`UPDATE messages SET %s WHERE id = ?`, strings.Join(setClauses, ", "))
	return s.updateAndRead(ctx, messageID, query, args...)
}

func (s *SQLiteStore) SetMessageConfirmation(ctx context.Context, messageID uuid.UUID, confirmed bool) (*models.Message, error) {
	return s.updateAndRead(ctx, messageID,
		`UPDATE messages SET is_completion_confirmation = ?, updated_at = ? WHERE id = ?`,
		confirmed, time.Now().UnixNano(), messageID.String())
}

func (s *SQLiteStore) updateAndRead(ctx context.Context, messageID uuid.UUID, query string, args ...interface{}) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error updating message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error reading update result: %w", err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetMessageByID(ctx, messageID)
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, messageID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading delete result: %w", err)
	}
	return n > 0, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg                  models.Message
		msgType, status      string
		taskID               uuid.NullUUID
		fileURL, fileName    sql.NullString
		fileSize             sql.NullInt64
		createdAt, updatedAt int64
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
		&fileURL,
		&fileName,
		&fileSize,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	msg.Status = models.MessageStatus(status)
	if taskID.Valid {
		id := taskID.UUID
		msg.TaskID = &id
	}
	if fileURL.Valid {
		msg.FileURL = &fileURL.String
	}
	if fileName.Valid {
		msg.FileName = &fileName.String
	}
	if fileSize.Valid {
		msg.FileSize = &fileSize.Int64
	}
	msg.CreatedAt = fromNanos(createdAt)
	msg.UpdatedAt = fromNanos(updatedAt)
	return &msg, nil
}
