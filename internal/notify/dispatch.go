package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/mq"
	"go.uber.org/zap"
)

const (
	// DefaultWelcomeChannel is the broker channel welcome emails are queued on.
	DefaultWelcomeChannel = "account.welcome"

	attrKind    = "kind"
	kindWelcome = "welcome"
)

// Publisher is the subset of *mq.MQ the queue notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// DirectNotifier renders and sends welcome emails in the background of
// the API process.
type DirectNotifier struct {
	background
	templates *Templates
	sender    Sender
}

func NewDirectNotifier(templates *Templates, sender Sender, logger *zap.Logger, m *metrics.Metrics) *DirectNotifier {
	return &DirectNotifier{
		background: background{logger: logger, metrics: m},
		templates:  templates,
		sender:     sender,
	}
}

// SendWelcome schedules the email and returns immediately.
func (n *DirectNotifier) SendWelcome(ctx context.Context, welcome WelcomeEmail) error {
	n.run(ctx, welcome, func(ctx context.Context) error {
		msg, err := n.templates.Welcome(welcome)
		if err != nil {
			return err
		}
		return n.sender.Send(ctx, msg)
	})
	return nil
}

// QueueNotifier hands welcome emails to the worker through a broker channel.
type QueueNotifier struct {
	background
	publisher Publisher
	channel   string
}

func NewQueueNotifier(publisher Publisher, channel string, logger *zap.Logger, m *metrics.Metrics) *QueueNotifier {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultWelcomeChannel
	}
	return &QueueNotifier{
		background: background{logger: logger, metrics: m},
		publisher:  publisher,
		channel:    channel,
	}
}

// SendWelcome schedules the publish and returns immediately.
func (n *QueueNotifier) SendWelcome(ctx context.Context, welcome WelcomeEmail) error {
	data, err := json.Marshal(welcome)
	if err != nil {
		return fmt.Errorf("encode welcome email: %w", err)
	}
	n.run(ctx, welcome, func(ctx context.Context) error {
		id, err := n.publisher.Publish(ctx, n.channel, data, map[string]string{
			mq.AttrContentType: "application/json",
			attrKind:           kindWelcome,
		})
		if err != nil {
			return fmt.Errorf("publish to %s: %w", n.channel, err)
		}
		n.logger.Debug("welcome email queued",
			zap.String("channel", n.channel),
			zap.String("message_id", id))
		return nil
	})
	return nil
}
