package handlers

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/services"
	"buildtrack-backend/pkg/httputil"
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChatHandlers handles HTTP requests related to chats.
type ChatHandlers struct {
	chatService *services.ChatService
	logger      zerolog.Logger
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(chatService *services.ChatService, logger zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		chatService: chatService,
		logger:      logger.With().Str("component", "ChatHandlers").Logger(),
	}
}

// HandleListChats lists the chats visible to the caller.
func (h *ChatHandlers) HandleListChats(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(r)
	if !ok {
		respondUnauthenticated(w)
		return
	}

	chats, err := h.chatService.ListChats(r.Context(), p)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.ListChatsResponse{Chats: chats})
}

// HandleGetChatByObject returns the chat of an object, creating it on
// first access.
func (h *ChatHandlers) HandleGetChatByObject(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(r)
	if !ok {
		respondUnauthenticated(w)
		return
	}
	objectID, err := uuidParam(r, "objectID")
	if err != nil {
		respondValidation(w, "Invalid object ID")
		return
	}

	detail, err := h.chatService.GetOrCreateChat(r.Context(), p, objectID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, detail)
}

// HandleGetChatMessages returns a chat's messages in canonical order.
func (h *ChatHandlers) HandleGetChatMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(r)
	if !ok {
		respondUnauthenticated(w)
		return
	}
	chatID, err := uuidParam(r, "chatID")
	if err != nil {
		respondValidation(w, "Invalid chat ID")
		return
	}

	messages, err := h.chatService.GetChatMessages(r.Context(), p, chatID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, messages)
}

type createFunc func(ctx context.Context, p auth.Principal, chatID uuid.UUID, req models.SendMessageRequest) (*models.Message, error)

// handleCreate runs the shared parse/dispatch/respond path of the three
// message-creating routes.
func (h *ChatHandlers) handleCreate(w http.ResponseWriter, r *http.Request, create createFunc) {
	p, ok := principalFromRequest(r)
	if !ok {
		respondUnauthenticated(w)
		return
	}
	chatID, err := uuidParam(r, "chatID")
	if err != nil {
		respondValidation(w, "Invalid chat ID")
		return
	}
	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, err.Error())
		return
	}

	msg, err := create(r.Context(), p, chatID, req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, msg)
}

// HandleSendMessage creates a message; the flags in the body pick the
// workflow.
func (h *ChatHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	h.handleCreate(w, r, h.chatService.SendMessage)
}

// HandleSuggestEdit creates an edit suggestion. INSPECTOR only.
func (h *ChatHandlers) HandleSuggestEdit(w http.ResponseWriter, r *http.Request) {
	h.handleCreate(w, r, h.chatService.SuggestEdit)
}

// HandleConfirmCompletion creates a completion confirmation and marks the
// task completed. CONTRACTOR only.
func (h *ChatHandlers) HandleConfirmCompletion(w http.ResponseWriter, r *http.Request) {
	h.handleCreate(w, r, h.chatService.ConfirmCompletion)
}

// HandleUpdateMessage applies a partial message edit.
func (h *ChatHandlers) HandleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(r)
	if !ok {
		respondUnauthenticated(w)
		return
	}
	messageID, err := uuidParam(r, "messageID")
	if err != nil {
		respondValidation(w, "Invalid message ID")
		return
	}
	var req models.UpdateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, err.Error())
		return
	}

	msg, err := h.chatService.UpdateMessage(r.Context(), p, messageID, req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, msg)
}

// HandleDeleteMessage removes a message.
func (h *ChatHandlers) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(r)
	if !ok {
		respondUnauthenticated(w)
		return
	}
	messageID, err := uuidParam(r, "messageID")
	if err != nil {
		respondValidation(w, "Invalid message ID")
		return
	}

	deleted, err := h.chatService.DeleteMessage(r.Context(), p, messageID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, deleted)
}

// HandleSetConfirmation toggles a confirmation and its task. Repeating the
// call retries a task update that failed earlier.
func (h *ChatHandlers) HandleSetConfirmation(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromRequest(r)
	if !ok {
		respondUnauthenticated(w)
		return
	}
	messageID, err := uuidParam(r, "messageID")
	if err != nil {
		respondValidation(w, "Invalid message ID")
		return
	}
	var req models.ConfirmationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, err.Error())
		return
	}
	if req.IsConfirmed == nil {
		respondValidation(w, "isConfirmed is required")
		return
	}

	msg, err := h.chatService.ReconfirmCompletion(r.Context(), p, messageID, *req.IsConfirmed)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, msg)
}
