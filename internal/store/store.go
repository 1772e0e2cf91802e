package store

import (
	"buildtrack-backend/internal/models"
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// AppendMessageParams contains parameters for appending a message to a chat.
// ID and CreatedAt are assigned by the store.
type AppendMessageParams struct {
	ChatID                   uuid.UUID
	Content                  string
	Type                     models.MessageType
	Author                   string
	AuthorID                 uuid.UUID
	TaskID                   *uuid.UUID
	IsEditSuggestion         bool
	IsCompletionConfirmation bool
	FileURL                  *string
	FileName                 *string
	FileSize                 *int64
}

// UpdateMessageParams contains parameters for a partial message update.
type UpdateMessageParams struct {
	Content  *string // Pointers allow partial updates
	Type     *models.MessageType
	FileURL  *string
	FileName *string
	FileSize *int64
	Status   *models.MessageStatus
}

// Store defines the interface for chat and message persistence.
// Both PostgresStore and SQLiteStore implement it.
type Store interface {
	// Connection management
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	// Chat operations
	GetOrCreateChat(ctx context.Context, objectID uuid.UUID) (*models.Chat, error)
	GetChatByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
	ListChats(ctx context.Context) ([]models.Chat, error)
	ListChatsByAssignee(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)

	// Message operations
	AppendMessage(ctx context.Context, arg AppendMessageParams) (*models.Message, error)
	ListMessagesByChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error)
	GetMessageByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
	UpdateMessage(ctx context.Context, messageID uuid.UUID, arg UpdateMessageParams) (*models.Message, error)
	SetMessageConfirmation(ctx context.Context, messageID uuid.UUID, confirmed bool) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID uuid.UUID) (bool, error)
}
