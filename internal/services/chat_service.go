package services

import (
	"buildtrack-backend/internal/access"
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/checklist"
	"buildtrack-backend/internal/metrics"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Broadcaster fans an event out to every connection watching a chat.
// Implementations must not block on slow consumers.
type Broadcaster interface {
	Broadcast(chatID uuid.UUID, event string, payload interface{})
}

// CompletionNotifier is told about tasks completed through a confirmation.
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, task *models.Task, msg *models.Message) error
}

const notifyTimeout = 10 * time.Second

// ChatService runs the chat workflow: role checks, message persistence,
// task side effects for confirmations, and realtime fan-out.
//
// Every write that broadcasts holds its chat's lock from the store write to
// the broadcast, so a chat's events leave in the order they were stored.
type ChatService struct {
	chats       *chatLocks
	store       store.Store
	tasks       checklist.TaskLink
	broadcaster Broadcaster
	notifier    CompletionNotifier
	logger      zerolog.Logger
}

// NewChatService creates a new ChatService. notifier may be nil.
func NewChatService(s store.Store, tasks checklist.TaskLink, b Broadcaster, notifier CompletionNotifier, logger zerolog.Logger) *ChatService {
	return &ChatService{
		chats:       newChatLocks(),
		store:       s,
		tasks:       tasks,
		broadcaster: b,
		notifier:    notifier,
		logger:      logger.With().Str("component", "ChatService").Logger(),
	}
}

func authorize(p auth.Principal, intent access.Intent) error {
	if err := access.Authorize(p.Role, intent); err != nil {
		return &Error{Kind: KindForbidden, Msg: err.Error(), Err: err}
	}
	return nil
}

// --- Chats ---

// GetOrCreateChat returns the chat of an object with its messages in
// canonical order, creating the chat on first access.
func (s *ChatService) GetOrCreateChat(ctx context.Context, p auth.Principal, objectID uuid.UUID) (*models.ChatDetailResponse, error) {
	if err := authorize(p, access.IntentReadChat); err != nil {
		return nil, err
	}
	if objectID == uuid.Nil {
		return nil, validationError("objectId is required")
	}

	chat, err := s.store.GetOrCreateChat(ctx, objectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("object", objectID)
		}
		return nil, internalError("failed to get or create chat", err)
	}

	messages, err := s.store.ListMessagesByChat(ctx, chat.ID)
	if err != nil {
		return nil, internalError("failed to list messages", err)
	}
	return &models.ChatDetailResponse{Chat: *chat, Messages: messages}, nil
}

// ListChats returns the chats visible to p, most recently active first.
// Contractors only see chats of objects assigned to them.
func (s *ChatService) ListChats(ctx context.Context, p auth.Principal) ([]models.Chat, error) {
	if err := authorize(p, access.IntentReadChat); err != nil {
		return nil, err
	}

	var (
		chats []models.Chat
		err   error
	)
	switch access.ChatScope(p.Role) {
	case access.ScopeAll:
		chats, err = s.store.ListChats(ctx)
	case access.ScopeAssigned:
		chats, err = s.store.ListChatsByAssignee(ctx, p.UserID)
	default:
		return []models.Chat{}, nil
	}
	if err != nil {
		return nil, internalError("failed to list chats", err)
	}
	return chats, nil
}

// GetChatMessages returns the messages of a chat in canonical order.
func (s *ChatService) GetChatMessages(ctx context.Context, p auth.Principal, chatID uuid.UUID) ([]models.Message, error) {
	if err := authorize(p, access.IntentReadChat); err != nil {
		return nil, err
	}
	if _, err := s.store.GetChatByID(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("chat", chatID)
		}
		return nil, internalError("failed to get chat", err)
	}

	messages, err := s.store.ListMessagesByChat(ctx, chatID)
	if err != nil {
		return nil, internalError("failed to list messages", err)
	}
	return messages, nil
}

// --- Message creation ---

// SendMessage dispatches on the workflow flags of in.
func (s *ChatService) SendMessage(ctx context.Context, p auth.Principal, chatID uuid.UUID, in models.SendMessageRequest) (*models.Message, error) {
	switch {
	case in.IsEditSuggestion && in.IsCompletionConfirmation:
		return nil, validationError("a message cannot be both an edit suggestion and a completion confirmation")
	case in.IsEditSuggestion:
		return s.SuggestEdit(ctx, p, chatID, in)
	case in.IsCompletionConfirmation:
		return s.ConfirmCompletion(ctx, p, chatID, in)
	}
	return s.SendPlainMessage(ctx, p, chatID, in)
}

// SendPlainMessage stores a message with no task side effect.
func (s *ChatService) SendPlainMessage(ctx context.Context, p auth.Principal, chatID uuid.UUID, in models.SendMessageRequest) (*models.Message, error) {
	if err := authorize(p, access.IntentPlainMessage); err != nil {
		return nil, err
	}
	in.IsEditSuggestion, in.IsCompletionConfirmation = false, false

	params, err := s.buildParams(p, chatID, in)
	if err != nil {
		return nil, err
	}
	if params.TaskID != nil {
		if _, err := s.requireTask(ctx, *params.TaskID); err != nil {
			return nil, err
		}
	}

	unlock := s.chats.lock(chatID)
	defer unlock()

	msg, err := s.appendMessage(ctx, params, metrics.KindPlain)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Broadcast(msg.ChatID, models.EventNewMessage, msg)
	return msg, nil
}

// SuggestEdit stores an inspector's advisory message about a task. The task
// itself is not modified.
func (s *ChatService) SuggestEdit(ctx context.Context, p auth.Principal, chatID uuid.UUID, in models.SendMessageRequest) (*models.Message, error) {
	if err := authorize(p, access.IntentEditSuggestion); err != nil {
		return nil, err
	}
	in.IsEditSuggestion, in.IsCompletionConfirmation = true, false

	params, err := s.buildParams(p, chatID, in)
	if err != nil {
		return nil, err
	}
	if params.TaskID == nil {
		return nil, validationError("taskId is required for an edit suggestion")
	}
	if _, err := s.requireTask(ctx, *params.TaskID); err != nil {
		return nil, err
	}

	unlock := s.chats.lock(chatID)
	defer unlock()

	msg, err := s.appendMessage(ctx, params, metrics.KindEditSuggestion)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Broadcast(msg.ChatID, models.EventNewMessage, msg)
	return msg, nil
}

// ConfirmCompletion stores a contractor's confirmation and marks the task
// completed. The message write happens before the task write; when the task
// write fails the message is kept and broadcast, and *TaskLinkError is
// returned carrying it.
func (s *ChatService) ConfirmCompletion(ctx context.Context, p auth.Principal, chatID uuid.UUID, in models.SendMessageRequest) (*models.Message, error) {
	if err := authorize(p, access.IntentCompletionConfirmation); err != nil {
		return nil, err
	}
	in.IsEditSuggestion, in.IsCompletionConfirmation = false, true

	params, err := s.buildParams(p, chatID, in)
	if err != nil {
		return nil, err
	}
	if params.TaskID == nil {
		return nil, validationError("taskId is required for a completion confirmation")
	}
	if _, err := s.requireTask(ctx, *params.TaskID); err != nil {
		return nil, err
	}

	unlock := s.chats.lock(chatID)
	defer unlock()

	msg, err := s.appendMessage(ctx, params, metrics.KindCompletionConfirmation)
	if err != nil {
		return nil, err
	}

	taskErr := s.setTaskCompleted(ctx, msg, true)
	s.broadcaster.Broadcast(msg.ChatID, models.EventNewMessage, msg)
	if taskErr != nil {
		return msg, taskErr
	}
	return msg, nil
}

// ReconfirmCompletion toggles the confirmation flag of an existing message
// and applies the same completion state to its task. Calling it again with
// the same value retries a failed task update.
func (s *ChatService) ReconfirmCompletion(ctx context.Context, p auth.Principal, messageID uuid.UUID, isConfirmed bool) (*models.Message, error) {
	if err := authorize(p, access.IntentCompletionConfirmation); err != nil {
		return nil, err
	}

	existing, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("message", messageID)
		}
		return nil, internalError("failed to get message", err)
	}
	if existing.TaskID == nil {
		return nil, validationError("message %s is not linked to a task", messageID)
	}
	if existing.IsEditSuggestion {
		return nil, validationError("message %s is an edit suggestion and cannot confirm completion", messageID)
	}

	unlock := s.chats.lock(existing.ChatID)
	defer unlock()

	msg, err := s.store.SetMessageConfirmation(ctx, messageID, isConfirmed)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("message", messageID)
		}
		return nil, internalError("failed to update message confirmation", err)
	}

	taskErr := s.setTaskCompleted(ctx, msg, isConfirmed)
	s.broadcaster.Broadcast(msg.ChatID, models.EventNewMessage, msg)
	if taskErr != nil {
		return msg, taskErr
	}
	return msg, nil
}

// --- Message mutation ---

// UpdateMessage applies a partial edit and broadcasts messageUpdated.
func (s *ChatService) UpdateMessage(ctx context.Context, p auth.Principal, messageID uuid.UUID, in models.UpdateMessageRequest) (*models.Message, error) {
	if err := authorize(p, access.IntentUpdateMessage); err != nil {
		return nil, err
	}
	if in.IsEmpty() {
		return nil, validationError("no fields to update")
	}
	if in.Type != nil && !in.Type.Valid() {
		return nil, validationError("invalid message type %q", *in.Type)
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, validationError("invalid message status %q", *in.Status)
	}
	if in.FileSize != nil && *in.FileSize < 0 {
		return nil, validationError("fileSize cannot be negative")
	}

	existing, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("message", messageID)
		}
		return nil, internalError("failed to get message", err)
	}

	unlock := s.chats.lock(existing.ChatID)
	defer unlock()

	msg, err := s.store.UpdateMessage(ctx, messageID, store.UpdateMessageParams{
		Content:  in.Content,
		Type:     in.Type,
		FileURL:  in.FileURL,
		FileName: in.FileName,
		FileSize: in.FileSize,
		Status:   in.Status,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("message", messageID)
		}
		return nil, internalError("failed to update message", err)
	}

	s.broadcaster.Broadcast(msg.ChatID, models.EventMessageUpdated, models.MessageUpdatedPayload{
		MessageID: msg.ID.String(),
		Message:   msg,
	})
	return msg, nil
}

// DeleteMessage removes a message and broadcasts messageDeleted to its chat.
func (s *ChatService) DeleteMessage(ctx context.Context, p auth.Principal, messageID uuid.UUID) (*models.MessageDeletedPayload, error) {
	if err := authorize(p, access.IntentDeleteMessage); err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("message", messageID)
		}
		return nil, internalError("failed to get message", err)
	}

	unlock := s.chats.lock(msg.ChatID)
	defer unlock()

	deleted, err := s.store.DeleteMessage(ctx, messageID)
	if err != nil {
		return nil, internalError("failed to delete message", err)
	}
	if !deleted {
		// Removed concurrently by another caller, who broadcast it.
		return nil, notFoundError("message", messageID)
	}

	payload := &models.MessageDeletedPayload{MessageID: messageID.String(), ChatID: msg.ChatID.String()}
	s.broadcaster.Broadcast(msg.ChatID, models.EventMessageDeleted, payload)
	return payload, nil
}

// --- Helpers ---

// buildParams validates a creation request and converts it to store params.
func (s *ChatService) buildParams(p auth.Principal, chatID uuid.UUID, in models.SendMessageRequest) (store.AppendMessageParams, error) {
	if chatID == uuid.Nil {
		return store.AppendMessageParams{}, validationError("chatId is required")
	}

	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return store.AppendMessageParams{}, validationError("invalid message type %q", in.Type)
	}

	author := strings.TrimSpace(in.Author)
	if author == "" {
		author = p.Name
	}
	if author == "" {
		return store.AppendMessageParams{}, validationError("author is required")
	}

	if msgType.HasAttachment() {
		if in.FileURL == nil || strings.TrimSpace(*in.FileURL) == "" {
			return store.AppendMessageParams{}, validationError("fileUrl is required for %s messages", msgType)
		}
	} else if strings.TrimSpace(in.Content) == "" {
		return store.AppendMessageParams{}, validationError("content is required")
	}
	if in.FileSize != nil && *in.FileSize < 0 {
		return store.AppendMessageParams{}, validationError("fileSize cannot be negative")
	}
	if in.TaskID != nil && *in.TaskID == uuid.Nil {
		in.TaskID = nil
	}

	return store.AppendMessageParams{
		ChatID:                   chatID,
		Content:                  in.Content,
		Type:                     msgType,
		Author:                   author,
		AuthorID:                 p.UserID,
		TaskID:                   in.TaskID,
		IsEditSuggestion:         in.IsEditSuggestion,
		IsCompletionConfirmation: in.IsCompletionConfirmation,
		FileURL:                  in.FileURL,
		FileName:                 in.FileName,
		FileSize:                 in.FileSize,
	}, nil
}

func (s *ChatService) requireTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, checklist.ErrTaskNotFound) {
			return nil, notFoundError("task", taskID)
		}
		return nil, internalError("failed to look up task", err)
	}
	return task, nil
}

func (s *ChatService) appendMessage(ctx context.Context, params store.AppendMessageParams, kind string) (*models.Message, error) {
	msg, err := s.store.AppendMessage(ctx, params)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("chat", params.ChatID)
		}
		return nil, internalError("failed to save message", err)
	}
	metrics.MessagesPosted.WithLabelValues(kind).Inc()
	return msg, nil
}

// setTaskCompleted flips the task linked to msg. A failure is returned as
// *TaskLinkError; the message stays persisted.
func (s *ChatService) setTaskCompleted(ctx context.Context, msg *models.Message, completed bool) error {
	task, err := s.tasks.SetCompleted(ctx, *msg.TaskID, completed)
	if err != nil {
		metrics.TaskLinkFailures.Inc()
		s.logger.Error().Err(err).
			Str("message_id", msg.ID.String()).
			Str("task_id", msg.TaskID.String()).
			Bool("completed", completed).
			Msg("task update failed after message was saved")
		return &TaskLinkError{Message: msg, TaskID: *msg.TaskID, Err: err}
	}

	s.logger.Info().
		Str("message_id", msg.ID.String()).
		Str("task_id", task.ID.String()).
		Bool("completed", task.Completed).
		Msg("task completion updated")

	if completed && s.notifier != nil {
		go s.notify(task, msg)
	}
	return nil
}

func (s *ChatService) notify(task *models.Task, msg *models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyCompletion(ctx, task, msg); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID.String()).Msg("completion notification failed")
	}
}
