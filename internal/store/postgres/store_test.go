package postgres

import (
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/store"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tables owned by the project and checklist subsystems.
const externalTables = `
CREATE TABLE objects (
    id          UUID PRIMARY KEY,
    assignee_id UUID
);
CREATE TABLE checklist_items (
    id           UUID PRIMARY KEY,
    text         TEXT NOT NULL,
    completed    BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMPTZ
);
`

// newTestStore runs against DATABASE_URL inside a throwaway schema.
func newTestStore(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres store tests")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	schema := pgx.Identifier{fmt.Sprintf("buildtrack_test_%d", time.Now().UnixNano())}.Sanitize()
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE") })

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, externalTables)
	require.NoError(t, err)

	s := NewPostgresStore(pool, zerolog.Nop())
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema must apply twice")
	return s, pool
}

func seedObject(t *testing.T, pool *pgxpool.Pool, assignee *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), "INSERT INTO objects (id, assignee_id) VALUES ($1, $2)", id, assignee)
	require.NoError(t, err)
	return id
}

func textParams(chatID uuid.UUID, content string) store.AppendMessageParams {
	return store.AppendMessageParams{ChatID: chatID, Content: content, Author: "Ines", AuthorID: uuid.New()}
}

func TestGetOrCreateChat_ConcurrentFirstAccess(t *testing.T) {
	s, pool := newTestStore(t)
	ctx := context.Background()
	objectID := seedObject(t, pool, nil)

	const workers = 8
	ids := make([]uuid.UUID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat, err := s.GetOrCreateChat(ctx, objectID)
			if assert.NoError(t, err) {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	chats, err := s.ListChats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestGetOrCreateChat_UnknownObject(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetOrCreateChat(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendMessage_OrderAndActivity(t *testing.T) {
	s, pool := newTestStore(t)
	ctx := context.Background()
	chat, err := s.GetOrCreateChat(ctx, seedObject(t, pool, nil))
	require.NoError(t, err)

	var appended []uuid.UUID
	for i := 0; i < 5; i++ {
		msg, err := s.AppendMessage(ctx, textParams(chat.ID, fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, models.MessageTypeText, msg.Type)
		assert.Equal(t, models.MessageStatusSent, msg.Status)
		appended = append(appended, msg.ID)
	}

	msgs, err := s.ListMessagesByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, appended[i], m.ID)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt))
		}
	}

	touched, err := s.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.False(t, touched.UpdatedAt.Before(msgs[4].CreatedAt))

	_, err = s.AppendMessage(ctx, textParams(uuid.New(), "orphan"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendMessage_TaskLinked(t *testing.T) {
	s, pool := newTestStore(t)
	ctx := context.Background()
	chat, err := s.GetOrCreateChat(ctx, seedObject(t, pool, nil))
	require.NoError(t, err)
	taskID := uuid.New()
	_, err = pool.Exec(ctx, "INSERT INTO checklist_items (id, text) VALUES ($1, $2)", taskID, "Frame walls")
	require.NoError(t, err)

	url := "https://files.example.com/plan.pdf"
	size := int64(2048)
	params := textParams(chat.ID, "")
	params.Type = models.MessageTypeFile
	params.TaskID = &taskID
	params.IsCompletionConfirmation = true
	params.FileURL = &url
	params.FileSize = &size

	msg, err := s.AppendMessage(ctx, params)
	require.NoError(t, err)
	require.NotNil(t, msg.TaskID)
	assert.Equal(t, taskID, *msg.TaskID)
	assert.True(t, msg.IsCompletionConfirmation)
	assert.Equal(t, url, *msg.FileURL)
	assert.Equal(t, size, *msg.FileSize)
	assert.Nil(t, msg.FileName)
}

func TestUpdateConfirmAndDeleteMessage(t *testing.T) {
	s, pool := newTestStore(t)
	ctx := context.Background()
	chat, err := s.GetOrCreateChat(ctx, seedObject(t, pool, nil))
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, textParams(chat.ID, "first"))
	require.NoError(t, err)

	content := "edited"
	status := models.MessageStatusRead
	updated, err := s.UpdateMessage(ctx, msg.ID, store.UpdateMessageParams{Content: &content, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)
	assert.Equal(t, models.MessageStatusRead, updated.Status)
	assert.Equal(t, "Ines", updated.Author)

	confirmed, err := s.SetMessageConfirmation(ctx, msg.ID, true)
	require.NoError(t, err)
	assert.True(t, confirmed.IsCompletionConfirmation)

	got, err := s.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)

	deleted, err := s.DeleteMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.GetMessageByID(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UpdateMessage(ctx, msg.ID, store.UpdateMessageParams{Content: &content})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.SetMessageConfirmation(ctx, msg.ID, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListChatsByAssignee(t *testing.T) {
	s, pool := newTestStore(t)
	ctx := context.Background()
	bob := uuid.New()
	mine, err := s.GetOrCreateChat(ctx, seedObject(t, pool, &bob))
	require.NoError(t, err)
	_, err = s.GetOrCreateChat(ctx, seedObject(t, pool, nil))
	require.NoError(t, err)

	chats, err := s.ListChatsByAssignee(ctx, bob)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, mine.ID, chats[0].ID)

	all, err := s.ListChats(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestObjectDeleteCascadesToChat(t *testing.T) {
	s, pool := newTestStore(t)
	ctx := context.Background()
	objectID := seedObject(t, pool, nil)
	chat, err := s.GetOrCreateChat(ctx, objectID)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, textParams(chat.ID, "bye"))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "DELETE FROM objects WHERE id = $1", objectID)
	require.NoError(t, err)

	_, err = s.GetChatByID(ctx, chat.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
