// Package checklist adapts the checklist subsystem's task rows for the chat
// workflow. Only completed and completed_at are ever written.
package checklist

import (
	"buildtrack-backend/internal/models"
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned when no checklist item has the given id.
var ErrTaskNotFound = errors.New("task not found")

// TaskLink reads and flips checklist tasks. Writes are single statements
// with no version check: concurrent flips resolve last writer wins.
type TaskLink interface {
	GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	// SetCompleted sets completed and stamps completedAt with the current
	// time, or clears it when completed is false.
	SetCompleted(ctx context.Context, taskID uuid.UUID, completed bool) (*models.Task, error)
}
