package slack

import (
	"buildtrack-backend/internal/models"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlack struct {
	mu     sync.Mutex
	posted []map[string]string
	authOK bool
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth.test":
		if !f.authOK {
			w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"team":"Acme Builders","user":"buildbot","user_id":"U1","team_id":"T1"}`))
	case "/chat.postMessage":
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.posted = append(f.posted, map[string]string{
			"channel": r.Form.Get("channel"),
			"text":    r.Form.Get("text"),
		})
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestNotifier(t *testing.T, fake *fakeSlack) *Notifier {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	n, err := NewNotifier("xoxb-test", "C123", zerolog.Nop(), slack.OptionAPIURL(server.URL+"/"))
	require.NoError(t, err)
	return n
}

func TestNewNotifier_RequiresSettings(t *testing.T) {
	_, err := NewNotifier("", "C123", zerolog.Nop())
	assert.Error(t, err)
	_, err = NewNotifier("xoxb-test", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestNotifyCompletion_PostsToChannel(t *testing.T) {
	fake := &fakeSlack{authOK: true}
	n := newTestNotifier(t, fake)

	completedAt := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	task := &models.Task{ID: uuid.New(), Text: "Pour foundation", Completed: true, CompletedAt: &completedAt}
	msg := &models.Message{ID: uuid.New(), Author: "Bob", Content: "slab is in"}

	require.NoError(t, n.NotifyCompletion(context.Background(), task, msg))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.posted, 1)
	assert.Equal(t, "C123", fake.posted[0]["channel"])
	assert.Equal(t, ":white_check_mark: *Pour foundation* marked complete by Bob at 2026-05-04 09:30 UTC\n> slab is in",
		fake.posted[0]["text"])
}

func TestVerify(t *testing.T) {
	assert.NoError(t, newTestNotifier(t, &fakeSlack{authOK: true}).Verify(context.Background()))

	err := newTestNotifier(t, &fakeSlack{}).Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_auth")
}

func TestCompletionText_Attachment(t *testing.T) {
	url := "https://files.example.com/p.jpg"
	text := completionText(
		&models.Task{Text: "Hang drywall"},
		&models.Message{Type: models.MessageTypeImage, FileURL: &url},
	)
	assert.Equal(t, ":white_check_mark: *Hang drywall* marked complete\n<https://files.example.com/p.jpg|attachment>", text)
}
