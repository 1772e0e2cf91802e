// Package slack posts checklist completion notices to a Slack channel.
package slack

import (
	"buildtrack-backend/internal/models"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// Notifier sends a channel message whenever a completion confirmation
// marks a task completed.
type Notifier struct {
	client    *slack.Client
	channelID string
	logger    zerolog.Logger
}

// NewNotifier creates a Notifier posting with botToken to channelID.
// Extra slack options are passed to the client (tests point it at a fake API).
func NewNotifier(botToken, channelID string, logger zerolog.Logger, opts ...slack.Option) (*Notifier, error) {
	if botToken == "" {
		return nil, errors.New("slack bot token is required")
	}
	if channelID == "" {
		return nil, errors.New("slack channel id is required")
	}
	return &Notifier{
		client:    slack.New(botToken, opts...),
		channelID: channelID,
		logger:    logger.With().Str("component", "SlackNotifier").Logger(),
	}, nil
}

// Verify checks the bot token with auth.test.
func (n *Notifier) Verify(ctx context.Context) error {
	resp, err := n.client.AuthTestContext(ctx)
	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "invalid_auth"):
			return fmt.Errorf("slack rejected the bot token: %w", err)
		case strings.Contains(errStr, "not_authed"):
			return fmt.Errorf("slack token not authenticated (check scopes): %w", err)
		}
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	n.logger.Info().
		Str("team", resp.Team).
		Str("bot_user_id", resp.UserID).
		Str("channel_id", n.channelID).
		Msg("slack notifier ready")
	return nil
}

// NotifyCompletion posts the completed task and the confirming message.
func (n *Notifier) NotifyCompletion(ctx context.Context, task *models.Task, msg *models.Message) error {
	if task == nil || msg == nil {
		return errors.New("task and message are required")
	}
	_, ts, err := n.client.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(completionText(task, msg), false),
	)
	if err != nil {
		return fmt.Errorf("failed to post completion for task %s to Slack channel %s: %w", task.ID, n.channelID, err)
	}
	n.logger.Debug().Str("task_id", task.ID.String()).Str("ts", ts).Msg("completion notice posted")
	return nil
}

func completionText(task *models.Task, msg *models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":white_check_mark: *%s* marked complete", task.Text)
	if msg.Author != "" {
		fmt.Fprintf(&b, " by %s", msg.Author)
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(&b, " at %s", task.CompletedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	if content := strings.TrimSpace(msg.Content); content != "" {
		fmt.Fprintf(&b, "\n> %s", content)
	}
	if msg.FileURL != nil && *msg.FileURL != "" {
		fmt.Fprintf(&b, "\n<%s|attachment>", *msg.FileURL)
	}
	return b.String()
}
