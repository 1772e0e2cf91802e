package checklist

import (
	"buildtrack-backend/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ TaskLink = (*SQLiteTaskLink)(nil)

// SQLiteTaskLink works on the checklist_items table created by the SQLite
// chat store's schema. completed_at is unix nanoseconds.
type SQLiteTaskLink struct {
	db *sql.DB
}

func NewSQLiteTaskLink(db *sql.DB) *SQLiteTaskLink {
	return &SQLiteTaskLink{db: db}
}

func (l *SQLiteTaskLink) GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := l.scanTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("error scanning task: %w", err)
	}
	return task, nil
}

func (l *SQLiteTaskLink) SetCompleted(ctx context.Context, taskID uuid.UUID, completed bool) (*models.Task, error) {
	var completedAt interface{}
	if completed {
		completedAt = time.Now().UnixNano()
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE checklist_items SET completed = ?, completed_at = ? WHERE id = ?`,
		completed, completedAt, taskID.String())
	if err != nil {
		return nil, fmt.Errorf("error updating task %s: %w", taskID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("error reading update result: %w", err)
	} else if n == 0 {
		return nil, ErrTaskNotFound
	}
	return l.GetTask(ctx, taskID)
}

func (l *SQLiteTaskLink) scanTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	var (
		task        models.Task
		completedAt sql.NullInt64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, text, completed, completed_at FROM checklist_items WHERE id = ?`,
		taskID.String()).Scan(&task.ID, &task.Text, &task.Completed, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ts := time.Unix(0, completedAt.Int64).UTC()
		task.CompletedAt = &ts
	}
	return &task, nil
}
