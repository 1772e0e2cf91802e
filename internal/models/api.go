package models

import (
	"github.com/google/uuid"
)

// --- Request Structs ---

// SendMessageRequest is the body of POST /chats/{chatId}/messages and the
// shared shape of the suggest-edit and confirm-completion bodies.
type SendMessageRequest struct {
	Content                  string      `json:"content"`
	Author                   string      `json:"author"`
	Type                     MessageType `json:"type,omitempty"` // Defaults to TEXT
	TaskID                   *uuid.UUID  `json:"taskId,omitempty"`
	IsEditSuggestion         bool        `json:"isEditSuggestion,omitempty"`
	IsCompletionConfirmation bool        `json:"isCompletionConfirmation,omitempty"`
	FileURL                  *string     `json:"fileUrl,omitempty"` // Already uploaded by the storage service
	FileName                 *string     `json:"fileName,omitempty"`
	FileSize                 *int64      `json:"fileSize,omitempty"`
}

// UpdateMessageRequest is the body of PUT /chats/messages/{messageId}.
// Nil fields are left untouched.
type UpdateMessageRequest struct {
	Content  *string        `json:"content,omitempty"`
	Type     *MessageType   `json:"type,omitempty"`
	FileURL  *string        `json:"fileUrl,omitempty"`
	FileName *string        `json:"fileName,omitempty"`
	FileSize *int64         `json:"fileSize,omitempty"`
	Status   *MessageStatus `json:"status,omitempty"`
}

// IsEmpty reports whether the request changes nothing.
func (r UpdateMessageRequest) IsEmpty() bool {
	return r.Content == nil && r.Type == nil && r.FileURL == nil &&
		r.FileName == nil && r.FileSize == nil && r.Status == nil
}

// ConfirmationRequest toggles the completion flag of an existing message.
// IsConfirmed is required; a missing value must not read as false.
type ConfirmationRequest struct {
	IsConfirmed *bool `json:"isConfirmed"`
}

// --- Response Structs ---

// ChatDetailResponse is a chat with its messages in canonical order.
type ChatDetailResponse struct {
	Chat     Chat      `json:"chat"`
	Messages []Message `json:"messages"`
}

// ListChatsResponse wraps the chats visible to the caller.
type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
}

// ErrorResponse defines the standard structure for API errors.
// Message is set only for task link failures, where the message was stored.
type ErrorResponse struct {
	Error         string   `json:"error"`
	Kind          string   `json:"kind,omitempty"`
	RequiredRoles []Role   `json:"requiredRoles,omitempty"`
	Message       *Message `json:"message,omitempty"`
}
