package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/mq"
	"go.uber.org/zap"
)

// Subscriber is the subset of *mq.MQ the worker needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Worker consumes queued welcome emails and sends them.
type Worker struct {
	subscriber Subscriber
	channel    string
	templates  *Templates
	sender     Sender
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewWorker(subscriber Subscriber, channel string, templates *Templates, sender Sender, logger *zap.Logger, m *metrics.Metrics) *Worker {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultWelcomeChannel
	}
	return &Worker{
		subscriber: subscriber,
		channel:    channel,
		templates:  templates,
		sender:     sender,
		logger:     logger,
		metrics:    m,
	}
}

// Run blocks consuming the welcome channel until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("welcome worker listening", zap.String("channel", w.channel))
	return w.subscriber.Subscribe(ctx, w.channel, w.Handle)
}

// Handle sends one queued welcome email. Failures are logged and the
// message is acknowledged; welcome emails are never redelivered.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	logger := w.logger.With(zap.String("message_id", msg.ID))

	var welcome WelcomeEmail
	if err := json.Unmarshal(msg.Data, &welcome); err != nil {
		w.metrics.WelcomeEmail("dropped")
		logger.Warn("dropping undecodable welcome message", zap.Error(err))
		return nil
	}
	if strings.TrimSpace(welcome.Email) == "" {
		w.metrics.WelcomeEmail("dropped")
		logger.Warn("dropping welcome message without recipient")
		return nil
	}

	rendered, err := w.templates.Welcome(welcome)
	if err != nil {
		w.metrics.WelcomeEmail("error")
		logger.Error("render welcome email", zap.Error(err))
		return nil
	}
	if err := w.sender.Send(ctx, rendered); err != nil {
		w.metrics.WelcomeEmail("error")
		logger.Warn("send welcome email", zap.String("email", welcome.Email), zap.Error(err))
		return nil
	}

	w.metrics.WelcomeEmail("sent")
	logger.Info("welcome email sent", zap.String("email", welcome.Email))
	return nil
}
