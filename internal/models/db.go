package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is the single message thread bound to one tracked object.
type Chat struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ObjectID  uuid.UUID `json:"objectId" db:"object_id"` // Unique: one chat per object
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"` // Bumped on every appended message
}

// Message is one entry in a chat.
// IsEditSuggestion and IsCompletionConfirmation are mutually exclusive and
// require TaskID when set.
type Message struct {
	ID                       uuid.UUID     `json:"id" db:"id"`
	ChatID                   uuid.UUID     `json:"chatId" db:"chat_id"`
	Content                  string        `json:"content" db:"content"`
	Type                     MessageType   `json:"type" db:"type"`
	Author                   string        `json:"author" db:"author"`
	AuthorID                 uuid.UUID     `json:"authorId" db:"author_id"`
	TaskID                   *uuid.UUID    `json:"taskId,omitempty" db:"task_id"`
	IsEditSuggestion         bool          `json:"isEditSuggestion" db:"is_edit_suggestion"`
	IsCompletionConfirmation bool          `json:"isCompletionConfirmation" db:"is_completion_confirmation"`
	FileURL                  *string       `json:"fileUrl,omitempty" db:"file_url"`
	FileName                 *string       `json:"fileName,omitempty" db:"file_name"`
	FileSize                 *int64        `json:"fileSize,omitempty" db:"file_size"`
	Status                   MessageStatus `json:"status" db:"status"`
	CreatedAt                time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt                time.Time     `json:"updatedAt" db:"updated_at"`
}

// Task is a checklist item owned by the checklist subsystem.
// Only Completed and CompletedAt are ever written from here.
type Task struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Text        string     `json:"text" db:"text"`
	Completed   bool       `json:"completed" db:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}
