package services

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/checklist"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store/sqlite"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcastEvent struct {
	ChatID  uuid.UUID
	Event   string
	Payload interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) Broadcast(chatID uuid.UUID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{ChatID: chatID, Event: event, Payload: payload})
}

func (b *recordingBroadcaster) Events() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastEvent(nil), b.events...)
}

// flakyTasks wraps a real task link and fails calls on demand.
type flakyTasks struct {
	checklist.TaskLink
	getErr error
	setErr error
}

func (f *flakyTasks) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.TaskLink.GetTask(ctx, id)
}

func (f *flakyTasks) SetCompleted(ctx context.Context, id uuid.UUID, completed bool) (*models.Task, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	return f.TaskLink.SetCompleted(ctx, id, completed)
}

type chanNotifier chan uuid.UUID

func (n chanNotifier) NotifyCompletion(_ context.Context, task *models.Task, _ *models.Message) error {
	n <- task.ID
	return nil
}

type fixture struct {
	svc        *ChatService
	store      *sqlite.SQLiteStore
	tasks      *flakyTasks
	bcast      *recordingBroadcaster
	chat       models.Chat
	taskID     uuid.UUID
	contractor auth.Principal
	inspector  auth.Principal
	admin      auth.Principal
}

func newFixture(t *testing.T, notifier CompletionNotifier) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "chat.db"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:      s,
		tasks:      &flakyTasks{TaskLink: checklist.NewSQLiteTaskLink(s.DB())},
		bcast:      &recordingBroadcaster{},
		taskID:     uuid.New(),
		contractor: auth.Principal{UserID: uuid.New(), Role: models.RoleContractor, Name: "Bob"},
		inspector:  auth.Principal{UserID: uuid.New(), Role: models.RoleInspector, Name: "Ines"},
		admin:      auth.Principal{UserID: uuid.New(), Role: models.RoleAdmin, Name: "Ada"},
	}
	f.svc = NewChatService(s, f.tasks, f.bcast, notifier, zerolog.Nop())

	objectID := uuid.New()
	require.NoError(t, s.SeedObject(ctx, objectID, &f.contractor.UserID))
	require.NoError(t, s.SeedTask(ctx, f.taskID, "Frame walls"))
	detail, err := f.svc.GetOrCreateChat(ctx, f.admin, objectID)
	require.NoError(t, err)
	f.chat = detail.Chat
	return f
}

func (f *fixture) task(t *testing.T) *models.Task {
	t.Helper()
	task, err := f.tasks.TaskLink.GetTask(context.Background(), f.taskID)
	require.NoError(t, err)
	return task
}

func (f *fixture) messageCount(t *testing.T) int {
	t.Helper()
	msgs, err := f.store.ListMessagesByChat(context.Background(), f.chat.ID)
	require.NoError(t, err)
	return len(msgs)
}

func TestGetOrCreateChat_UnknownObject(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.GetOrCreateChat(context.Background(), f.admin, uuid.New())
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGetOrCreateChat_ReturnsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.SendPlainMessage(ctx, f.inspector, f.chat.ID, models.SendMessageRequest{Content: "hello"})
	require.NoError(t, err)

	detail, err := f.svc.GetOrCreateChat(ctx, f.contractor, f.chat.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, f.chat.ID, detail.Chat.ID)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, "hello", detail.Messages[0].Content)
}

func TestSendPlainMessage(t *testing.T) {
	f := newFixture(t, nil)

	msg, err := f.svc.SendPlainMessage(context.Background(), f.inspector, f.chat.ID, models.SendMessageRequest{Content: "site visit at 9"})
	require.NoError(t, err)
	assert.Equal(t, "Ines", msg.Author)
	assert.Equal(t, f.inspector.UserID, msg.AuthorID)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.False(t, msg.IsEditSuggestion)
	assert.False(t, msg.IsCompletionConfirmation)

	events := f.bcast.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventNewMessage, events[0].Event)
	assert.Equal(t, f.chat.ID, events[0].ChatID)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   models.SendMessageRequest
	}{
		{"both flags", models.SendMessageRequest{Content: "x", TaskID: &f.taskID, IsEditSuggestion: true, IsCompletionConfirmation: true}},
		{"empty content", models.SendMessageRequest{Content: "   "}},
		{"unknown type", models.SendMessageRequest{Content: "x", Type: "VIDEO"}},
		{"image without url", models.SendMessageRequest{Type: models.MessageTypeImage}},
		{"confirmation without task", models.SendMessageRequest{Content: "done", IsCompletionConfirmation: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, f.contractor, f.chat.ID, tt.in)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
	assert.Zero(t, f.messageCount(t))
	assert.Empty(t, f.bcast.Events())
}

func TestSuggestEdit_ContractorForbidden(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.SuggestEdit(context.Background(), f.contractor, f.chat.ID, models.SendMessageRequest{
		Content: "move the outlet", TaskID: &f.taskID,
	})
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, []models.Role{models.RoleInspector}, RequiredRoles(err))
	assert.Zero(t, f.messageCount(t))
	assert.Empty(t, f.bcast.Events())
}

func TestSuggestEdit_DoesNotTouchTask(t *testing.T) {
	f := newFixture(t, nil)

	msg, err := f.svc.SendMessage(context.Background(), f.inspector, f.chat.ID, models.SendMessageRequest{
		Content: "move the outlet", TaskID: &f.taskID, IsEditSuggestion: true,
	})
	require.NoError(t, err)
	assert.True(t, msg.IsEditSuggestion)
	assert.False(t, f.task(t).Completed)
}

func TestSuggestEdit_UnknownTask(t *testing.T) {
	f := newFixture(t, nil)
	missing := uuid.New()

	_, err := f.svc.SuggestEdit(context.Background(), f.inspector, f.chat.ID, models.SendMessageRequest{
		Content: "check this", TaskID: &missing,
	})
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Zero(t, f.messageCount(t))
}

func TestSuggestEdit_TaskLookupFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.tasks.getErr = errors.New("checklist unavailable")

	_, err := f.svc.SuggestEdit(context.Background(), f.inspector, f.chat.ID, models.SendMessageRequest{
		Content: "check this", TaskID: &f.taskID,
	})
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Zero(t, f.messageCount(t))
}

func TestConfirmCompletion_InspectorForbidden(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ConfirmCompletion(context.Background(), f.inspector, f.chat.ID, models.SendMessageRequest{
		Content: "done", TaskID: &f.taskID,
	})
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, []models.Role{models.RoleContractor}, RequiredRoles(err))
	assert.False(t, f.task(t).Completed)
	assert.Zero(t, f.messageCount(t))
}

func TestConfirmThenReconfirmFalse(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	msg, err := f.svc.ConfirmCompletion(ctx, f.contractor, f.chat.ID, models.SendMessageRequest{
		Content: "done", TaskID: &f.taskID,
	})
	require.NoError(t, err)
	assert.True(t, msg.IsCompletionConfirmation)
	task := f.task(t)
	assert.True(t, task.Completed)
	assert.NotNil(t, task.CompletedAt)

	updated, err := f.svc.ReconfirmCompletion(ctx, f.contractor, msg.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsCompletionConfirmation)
	task = f.task(t)
	assert.False(t, task.Completed)
	assert.Nil(t, task.CompletedAt)

	events := f.bcast.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventNewMessage, events[1].Event)
	assert.Equal(t, 1, f.messageCount(t))
}

func TestConfirmCompletion_TaskLinkFailureKeepsMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.tasks.setErr = errors.New("checklist unavailable")

	msg, err := f.svc.ConfirmCompletion(ctx, f.contractor, f.chat.ID, models.SendMessageRequest{
		Content: "done", TaskID: &f.taskID,
	})
	require.Error(t, err)
	assert.Equal(t, KindTaskLinkFailed, KindOf(err))
	var linkErr *TaskLinkError
	require.True(t, errors.As(err, &linkErr))
	require.NotNil(t, msg)
	assert.Equal(t, msg.ID, linkErr.Message.ID)
	assert.Equal(t, 1, f.messageCount(t))
	assert.Len(t, f.bcast.Events(), 1)
	assert.False(t, f.task(t).Completed)

	// Retry the task flip without a second message.
	f.tasks.setErr = nil
	_, err = f.svc.ReconfirmCompletion(ctx, f.contractor, msg.ID, true)
	require.NoError(t, err)
	assert.True(t, f.task(t).Completed)
	assert.Equal(t, 1, f.messageCount(t))
}

func TestReconfirmCompletion_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.ReconfirmCompletion(ctx, f.contractor, uuid.New(), true)
	assert.Equal(t, KindNotFound, KindOf(err))

	plain, err := f.svc.SendPlainMessage(ctx, f.contractor, f.chat.ID, models.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	_, err = f.svc.ReconfirmCompletion(ctx, f.contractor, plain.ID, true)
	assert.Equal(t, KindValidation, KindOf(err))

	suggestion, err := f.svc.SuggestEdit(ctx, f.inspector, f.chat.ID, models.SendMessageRequest{Content: "redo", TaskID: &f.taskID})
	require.NoError(t, err)
	_, err = f.svc.ReconfirmCompletion(ctx, f.contractor, suggestion.ID, true)
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.svc.ReconfirmCompletion(ctx, f.inspector, suggestion.ID, true)
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.False(t, f.task(t).Completed)
}

func TestConfirmCompletion_NotifiesOnCompletion(t *testing.T) {
	notified := make(chanNotifier, 1)
	f := newFixture(t, notified)

	_, err := f.svc.ConfirmCompletion(context.Background(), f.contractor, f.chat.ID, models.SendMessageRequest{
		Content: "done", TaskID: &f.taskID,
	})
	require.NoError(t, err)

	select {
	case id := <-notified:
		assert.Equal(t, f.taskID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("completion notifier was not called")
	}
}

func TestUpdateAndDeleteMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	msg, err := f.svc.SendPlainMessage(ctx, f.contractor, f.chat.ID, models.SendMessageRequest{Content: "draft"})
	require.NoError(t, err)

	content := "final"
	updated, err := f.svc.UpdateMessage(ctx, f.contractor, msg.ID, models.UpdateMessageRequest{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)

	payload, err := f.svc.DeleteMessage(ctx, f.inspector, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, f.chat.ID.String(), payload.ChatID)

	events := f.bcast.Events()
	require.Len(t, events, 3)
	assert.Equal(t, models.EventMessageUpdated, events[1].Event)
	assert.Equal(t, models.EventMessageDeleted, events[2].Event)
	assert.Equal(t, models.MessageDeletedPayload{MessageID: msg.ID.String(), ChatID: f.chat.ID.String()}, *events[2].Payload.(*models.MessageDeletedPayload))
}

func TestUpdateAndDelete_NotFoundDoesNotBroadcast(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	content := "x"

	_, err := f.svc.UpdateMessage(ctx, f.contractor, uuid.New(), models.UpdateMessageRequest{Content: &content})
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = f.svc.DeleteMessage(ctx, f.contractor, uuid.New())
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = f.svc.UpdateMessage(ctx, f.contractor, uuid.New(), models.UpdateMessageRequest{})
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Empty(t, f.bcast.Events())
}

func TestListChats_ScopedByRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	otherObject := uuid.New()
	require.NoError(t, f.store.SeedObject(ctx, otherObject, nil))
	_, err := f.svc.GetOrCreateChat(ctx, f.inspector, otherObject)
	require.NoError(t, err)

	mine, err := f.svc.ListChats(ctx, f.contractor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.chat.ID, mine[0].ID)

	all, err := f.svc.ListChats(ctx, f.inspector)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.ListChats(ctx, auth.Principal{UserID: uuid.New()})
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestGetChatMessages_UnknownChat(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.GetChatMessages(context.Background(), f.admin, uuid.New())
	assert.Equal(t, KindNotFound, KindOf(err))
}

// gatedTasks holds SetCompleted until release is closed.
type gatedTasks struct {
	checklist.TaskLink
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTasks) SetCompleted(ctx context.Context, id uuid.UUID, completed bool) (*models.Task, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.TaskLink.SetCompleted(ctx, id, completed)
}

func TestBroadcastOrderMatchesStoredOrder(t *testing.T) {
	f := newFixture(t, nil)
	gated := &gatedTasks{TaskLink: f.tasks.TaskLink, entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewChatService(f.store, gated, f.bcast, nil, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.ConfirmCompletion(ctx, f.contractor, f.chat.ID, models.SendMessageRequest{Content: "done", TaskID: &f.taskID})
		assert.NoError(t, err)
	}()
	select {
	case <-gated.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation never reached the task write")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.SendPlainMessage(ctx, f.inspector, f.chat.ID, models.SendMessageRequest{Content: "hello"})
		assert.NoError(t, err)
	}()
	time.Sleep(50 * time.Millisecond) // let the plain send queue up behind the task write
	close(gated.release)
	wg.Wait()

	stored, err := f.store.ListMessagesByChat(ctx, f.chat.ID)
	require.NoError(t, err)
	var storedOrder, broadcastOrder []string
	for _, m := range stored {
		storedOrder = append(storedOrder, m.Content)
	}
	for _, ev := range f.bcast.Events() {
		if ev.Event == models.EventNewMessage {
			broadcastOrder = append(broadcastOrder, ev.Payload.(*models.Message).Content)
		}
	}
	assert.Equal(t, []string{"done", "hello"}, storedOrder)
	assert.Equal(t, storedOrder, broadcastOrder)
	assert.True(t, f.task(t).Completed)
	assert.Zero(t, svc.chats.size())
}

func TestConcurrentSendsBroadcastInStoredOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const senders = 12
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SendPlainMessage(ctx, f.inspector, f.chat.ID, models.SendMessageRequest{Content: fmt.Sprintf("m%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.store.ListMessagesByChat(ctx, f.chat.ID)
	require.NoError(t, err)
	events := f.bcast.Events()
	require.Len(t, events, senders)
	for i, m := range stored {
		assert.Equal(t, m.ID, events[i].Payload.(*models.Message).ID)
	}
}
