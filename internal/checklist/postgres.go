package checklist

import (
	"buildtrack-backend/internal/models"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ TaskLink = (*PostgresTaskLink)(nil)

// PostgresTaskLink works on the checklist_items table of the shared database.
type PostgresTaskLink struct {
	db *pgxpool.Pool
}

func NewPostgresTaskLink(db *pgxpool.Pool) *PostgresTaskLink {
	return &PostgresTaskLink{db: db}
}

const getTask = `-- name: GetTask :one
SELECT id, text, completed, completed_at
FROM checklist_items
WHERE id = $1;
`

func (l *PostgresTaskLink) GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := scanTask(l.db.QueryRow(ctx, getTask, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("error scanning task: %w", err)
	}
	return task, nil
}

const setTaskCompleted = `-- name: SetTaskCompleted :one
UPDATE checklist_items
SET completed = $2::boolean,
    completed_at = CASE WHEN $2::boolean THEN now() ELSE NULL END
WHERE id = $1
RETURNING id, text, completed, completed_at;
`

func (l *PostgresTaskLink) SetCompleted(ctx context.Context, taskID uuid.UUID, completed bool) (*models.Task, error) {
	task, err := scanTask(l.db.QueryRow(ctx, setTaskCompleted, taskID, completed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("error updating task %s: %w", taskID, err)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	if err := row.Scan(&task.ID, &task.Text, &task.Completed, &task.CompletedAt); err != nil {
		return nil, err
	}
	return &task, nil
}
