package realtime

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/metrics"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/services"
	"buildtrack-backend/pkg/httputil"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChatEngine is the workflow the gateway dispatches commands to.
type ChatEngine interface {
	ListChats(ctx context.Context, p auth.Principal) ([]models.Chat, error)
	GetChatMessages(ctx context.Context, p auth.Principal, chatID uuid.UUID) ([]models.Message, error)
	SendMessage(ctx context.Context, p auth.Principal, chatID uuid.UUID, in models.SendMessageRequest) (*models.Message, error)
	UpdateMessage(ctx context.Context, p auth.Principal, messageID uuid.UUID, in models.UpdateMessageRequest) (*models.Message, error)
	DeleteMessage(ctx context.Context, p auth.Principal, messageID uuid.UUID) (*models.MessageDeletedPayload, error)
	ReconfirmCompletion(ctx context.Context, p auth.Principal, messageID uuid.UUID, isConfirmed bool) (*models.Message, error)
}

// Authenticator resolves a session token to a principal.
type Authenticator interface {
	Authenticate(token string) (auth.Principal, error)
}

// GatewayConfig holds connection timing and size limits.
type GatewayConfig struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration // Must exceed PingInterval
	MaxMessageSize int64
	AllowedOrigins []string // Empty or "*" allows any origin
}

// Gateway upgrades authenticated requests to websocket connections and runs
// their command loop.
type Gateway struct {
	cfg      GatewayConfig
	hub      *Hub
	engine   ChatEngine
	sessions Authenticator
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

const (
	defaultPingInterval   = 54 * time.Second
	defaultReadTimeout    = 60 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
)

// NewGateway creates a new websocket gateway. Zero config values take
// defaults.
func NewGateway(cfg GatewayConfig, hub *Hub, engine ChatEngine, sessions Authenticator, logger zerolog.Logger) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReadTimeout <= cfg.PingInterval {
		cfg.ReadTimeout = cfg.PingInterval*10/9 + time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	g := &Gateway{
		cfg:      cfg,
		hub:      hub,
		engine:   engine,
		sessions: sessions,
		logger:   logger.With().Str("component", "Gateway").Logger(),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// ServeHTTP authenticates before upgrading; an unresolvable token is
// answered with 401 and no websocket is opened.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		httputil.RespondErrorKind(w, http.StatusUnauthorized, string(services.KindUnauthenticated), "session token required")
		return
	}
	principal, err := g.sessions.Authenticate(token)
	if err != nil {
		g.logger.Debug().Err(err).Msg("rejected websocket session")
		httputil.RespondErrorKind(w, http.StatusUnauthorized, string(services.KindUnauthenticated), "invalid session token")
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Warn().Err(err).Msg("failed to upgrade websocket")
		return
	}

	client := g.hub.NewClient(principal)
	metrics.ActiveConnections.Inc()
	g.logger.Info().
		Str("client_id", client.ID).
		Str("user_id", principal.UserID.String()).
		Str("role", string(principal.Role)).
		Msg("websocket connected")

	ws.SetReadLimit(g.cfg.MaxMessageSize)
	ctx, cancel := context.WithCancel(context.Background())

	go g.writePump(ws, client)
	go g.readPump(ctx, cancel, ws, client)
}

// readPump processes commands in arrival order until the connection fails.
func (g *Gateway) readPump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, c *Client) {
	defer func() {
		cancel()
		g.hub.Disconnect(c)
		ws.Close()
		metrics.ActiveConnections.Dec()
		g.logger.Info().Str("client_id", c.ID).Msg("websocket disconnected")
	}()

	ws.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.logger.Warn().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			return
		}
		g.handleCommand(ctx, c, data)
	}
}

// writePump is the only writer of ws.
func (g *Gateway) writePump(ws *websocket.Conn, c *Client) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send():
			ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if !ok {
				// Hub closed the queue
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				g.logger.Debug().Err(err).Str("client_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand decodes one command and dispatches it.
func (g *Gateway) handleCommand(ctx context.Context, c *Client, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		g.sendValidationError(c, "", "invalid JSON message")
		return
	}

	switch in.Event {
	case CommandJoinChat:
		g.handleJoinChat(ctx, c, in.Data)
	case CommandLeaveChat:
		g.handleLeaveChat(c, in.Data)
	case CommandSendMessage:
		g.handleSendMessage(ctx, c, in.Data)
	case CommandUpdateMessage:
		g.handleUpdateMessage(ctx, c, in.Data)
	case CommandDeleteMessage:
		g.handleDeleteMessage(ctx, c, in.Data)
	case CommandConfirmCompletion:
		g.handleConfirmCompletion(ctx, c, in.Data)
	case CommandGetChats:
		g.handleGetChats(ctx, c)
	case CommandGetChatMessages:
		g.handleGetChatMessages(ctx, c, in.Data)
	default:
		g.sendValidationError(c, in.Event, "unknown event: "+in.Event)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

func (g *Gateway) decodeChatRef(c *Client, command string, data json.RawMessage) (uuid.UUID, bool) {
	var ref ChatRef
	if err := decode(data, &ref); err != nil || ref.ChatID == uuid.Nil {
		g.sendValidationError(c, command, "chatId is required")
		return uuid.Nil, false
	}
	return ref.ChatID, true
}

func (g *Gateway) handleJoinChat(ctx context.Context, c *Client, data json.RawMessage) {
	chatID, ok := g.decodeChatRef(c, CommandJoinChat, data)
	if !ok {
		return
	}

	// Join before reading history so no message falls between the two.
	if err := g.hub.Join(c, chatID); err != nil {
		return
	}
	messages, err := g.engine.GetChatMessages(ctx, c.Principal, chatID)
	if err != nil {
		g.hub.Leave(c, chatID)
		g.sendError(c, CommandJoinChat, err)
		return
	}

	g.hub.SendTo(c, models.EventJoinedChat, ChatRoomPayload{ChatID: chatID.String()})
	g.hub.SendTo(c, models.EventChatHistory, ChatHistoryPayload{ChatID: chatID.String(), Messages: messages})
}

func (g *Gateway) handleLeaveChat(c *Client, data json.RawMessage) {
	chatID, ok := g.decodeChatRef(c, CommandLeaveChat, data)
	if !ok {
		return
	}
	g.hub.Leave(c, chatID)
	g.hub.SendTo(c, models.EventLeftChat, ChatRoomPayload{ChatID: chatID.String()})
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var cmd SendMessageCommand
	if err := decode(data, &cmd); err != nil {
		g.sendValidationError(c, CommandSendMessage, "invalid sendMessage payload")
		return
	}
	if cmd.ChatID == uuid.Nil {
		g.sendValidationError(c, CommandSendMessage, "chatId is required")
		return
	}
	if cmd.SenderID != nil && *cmd.SenderID != c.Principal.UserID {
		g.logger.Warn().
			Str("client_id", c.ID).
			Str("user_id", c.Principal.UserID.String()).
			Str("claimed_sender", cmd.SenderID.String()).
			Msg("sender mismatch on sendMessage")
		g.hub.SendTo(c, models.EventError, ErrorPayload{
			Message: "senderId does not match the authenticated user",
			Kind:    string(services.KindForbidden),
			Command: CommandSendMessage,
		})
		return
	}

	msg, err := g.engine.SendMessage(ctx, c.Principal, cmd.ChatID, cmd.SendMessageRequest)
	if err != nil {
		g.sendError(c, CommandSendMessage, err)
		return
	}
	g.hub.SendTo(c, models.EventMessageSent, MessageSentPayload{MessageID: msg.ID.String()})
}

func (g *Gateway) handleUpdateMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var cmd UpdateMessageCommand
	if err := decode(data, &cmd); err != nil || cmd.MessageID == uuid.Nil {
		g.sendValidationError(c, CommandUpdateMessage, "messageId is required")
		return
	}

	msg, err := g.engine.UpdateMessage(ctx, c.Principal, cmd.MessageID, cmd.UpdateMessageRequest)
	if err != nil {
		g.sendError(c, CommandUpdateMessage, err)
		return
	}
	if !g.hub.IsMember(c, msg.ChatID) {
		g.hub.SendTo(c, models.EventMessageUpdated, models.MessageUpdatedPayload{MessageID: msg.ID.String(), Message: msg})
	}
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var ref MessageRef
	if err := decode(data, &ref); err != nil || ref.MessageID == uuid.Nil {
		g.sendValidationError(c, CommandDeleteMessage, "messageId is required")
		return
	}

	payload, err := g.engine.DeleteMessage(ctx, c.Principal, ref.MessageID)
	if err != nil {
		g.sendError(c, CommandDeleteMessage, err)
		return
	}
	if chatID, err := uuid.Parse(payload.ChatID); err == nil && !g.hub.IsMember(c, chatID) {
		g.hub.SendTo(c, models.EventMessageDeleted, payload)
	}
}

func (g *Gateway) handleConfirmCompletion(ctx context.Context, c *Client, data json.RawMessage) {
	var cmd ConfirmCompletionCommand
	if err := decode(data, &cmd); err != nil || cmd.MessageID == uuid.Nil || cmd.IsConfirmed == nil {
		g.sendValidationError(c, CommandConfirmCompletion, "messageId and isConfirmed are required")
		return
	}

	msg, err := g.engine.ReconfirmCompletion(ctx, c.Principal, cmd.MessageID, *cmd.IsConfirmed)
	if err != nil {
		g.sendError(c, CommandConfirmCompletion, err)
		return
	}
	g.hub.SendTo(c, models.EventCompletionConfirmed, CompletionConfirmedPayload{
		MessageID:   msg.ID.String(),
		IsConfirmed: msg.IsCompletionConfirmation,
	})
}

func (g *Gateway) handleGetChats(ctx context.Context, c *Client) {
	chats, err := g.engine.ListChats(ctx, c.Principal)
	if err != nil {
		g.sendError(c, CommandGetChats, err)
		return
	}
	g.hub.SendTo(c, models.EventChatsList, ChatsListPayload{Chats: chats})
}

func (g *Gateway) handleGetChatMessages(ctx context.Context, c *Client, data json.RawMessage) {
	chatID, ok := g.decodeChatRef(c, CommandGetChatMessages, data)
	if !ok {
		return
	}
	messages, err := g.engine.GetChatMessages(ctx, c.Principal, chatID)
	if err != nil {
		g.sendError(c, CommandGetChatMessages, err)
		return
	}
	g.hub.SendTo(c, models.EventChatMessages, ChatHistoryPayload{ChatID: chatID.String(), Messages: messages})
}

func (g *Gateway) sendValidationError(c *Client, command, message string) {
	g.hub.SendTo(c, models.EventError, ErrorPayload{
		Message: message,
		Kind:    string(services.KindValidation),
		Command: command,
	})
}

// sendError renders an engine failure as an error event.
func (g *Gateway) sendError(c *Client, command string, err error) {
	kind := services.KindOf(err)
	payload := ErrorPayload{
		Message:       services.PublicMessage(err),
		Kind:          string(kind),
		Command:       command,
		RequiredRoles: services.RequiredRoles(err),
	}
	var linkErr *services.TaskLinkError
	if errors.As(err, &linkErr) {
		payload.MessageID = linkErr.Message.ID.String()
	}
	if kind == services.KindInternal || kind == services.KindTaskLinkFailed {
		g.logger.Error().Err(err).Str("client_id", c.ID).Str("command", command).Msg("command failed")
	}
	g.hub.SendTo(c, models.EventError, payload)
}
