package realtime

import (
	"buildtrack-backend/internal/models"
	"encoding/json"

	"github.com/google/uuid"
)

// Commands from client to server
const (
	CommandJoinChat          = "joinChat"
	CommandLeaveChat         = "leaveChat"
	CommandSendMessage       = "sendMessage"
	CommandUpdateMessage     = "updateMessage"
	CommandDeleteMessage     = "deleteMessage"
	CommandConfirmCompletion = "confirmCompletion"
	CommandGetChats          = "getChats"
	CommandGetChatMessages   = "getChatMessages"
)

// Inbound is the raw shape of a client command. Data is decoded according
// to Event.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatRef names a chat; used by joinChat, leaveChat and getChatMessages.
type ChatRef struct {
	ChatID uuid.UUID `json:"chatId"`
}

// MessageRef names a message; used by deleteMessage.
type MessageRef struct {
	MessageID uuid.UUID `json:"messageId"`
}

// SendMessageCommand creates a message. SenderID, when present, must match
// the connection's authenticated user.
type SendMessageCommand struct {
	ChatID   uuid.UUID  `json:"chatId"`
	SenderID *uuid.UUID `json:"senderId,omitempty"`
	models.SendMessageRequest
}

// UpdateMessageCommand edits a message; only present fields change.
type UpdateMessageCommand struct {
	MessageID uuid.UUID `json:"messageId"`
	models.UpdateMessageRequest
}

// ConfirmCompletionCommand toggles the confirmation flag of a message.
type ConfirmCompletionCommand struct {
	MessageID   uuid.UUID `json:"messageId"`
	IsConfirmed *bool     `json:"isConfirmed"`
}

// --- Server to client payloads ---

type ChatRoomPayload struct {
	ChatID string `json:"chatId"`
}

type ChatHistoryPayload struct {
	ChatID   string           `json:"chatId"`
	Messages []models.Message `json:"messages"`
}

type MessageSentPayload struct {
	MessageID string `json:"messageId"`
}

type CompletionConfirmedPayload struct {
	MessageID   string `json:"messageId"`
	IsConfirmed bool   `json:"isConfirmed"`
}

type ChatsListPayload struct {
	Chats []models.Chat `json:"chats"`
}

// ErrorPayload reports a failed command. MessageID is set when a message
// was persisted despite the failure.
type ErrorPayload struct {
	Message       string        `json:"message"`
	Kind          string        `json:"kind"`
	Command       string        `json:"command,omitempty"`
	RequiredRoles []models.Role `json:"requiredRoles,omitempty"`
	MessageID     string        `json:"messageId,omitempty"`
}
