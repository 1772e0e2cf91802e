package models

// Role is the participant role bound to an authenticated session.
type Role string

const (
	RoleContractor Role = "CONTRACTOR"
	RoleInspector  Role = "INSPECTOR"
	RoleAdmin      Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleContractor, RoleInspector, RoleAdmin:
		return true
	}
	return false
}

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// HasAttachment reports whether messages of this type carry a file.
func (t MessageType) HasAttachment() bool {
	return t == MessageTypeImage || t == MessageTypeFile
}

// MessageStatus is the delivery tag of a message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusRead      MessageStatus = "READ"
)

// Valid reports whether s is one of the known delivery tags.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusRead:
		return true
	}
	return false
}

// Realtime event names emitted to room members and single connections.
const (
	EventJoinedChat          = "joinedChat"
	EventLeftChat            = "leftChat"
	EventChatHistory         = "chatHistory"
	EventNewMessage          = "newMessage"
	EventMessageSent         = "messageSent"
	EventMessageUpdated      = "messageUpdated"
	EventMessageDeleted      = "messageDeleted"
	EventCompletionConfirmed = "completionConfirmed"
	EventChatsList           = "chatsList"
	EventChatMessages        = "chatMessages"
	EventError               = "error"
)

// MessageUpdatedPayload is broadcast after a message edit.
type MessageUpdatedPayload struct {
	MessageID string   `json:"messageId"`
	Message   *Message `json:"message"`
}

// MessageDeletedPayload is broadcast after a message removal.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}
