package notify

import (
	"context"
	"sync"
	"time"

	"github.com/jjudge-oj/accounts/internal/metrics"
	"go.uber.org/zap"
)

// WelcomeEmail is the payload of a welcome notification.
type WelcomeEmail struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// Message is a rendered email ready to be sent.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Notifier accepts welcome notifications. Implementations must not block
// the caller on delivery.
type Notifier interface {
	SendWelcome(ctx context.Context, welcome WelcomeEmail) error
}

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DefaultSendTimeout bounds a single background delivery.
const DefaultSendTimeout = 30 * time.Second

// background runs best-effort jobs detached from the request that
// scheduled them and lets shutdown wait for in-flight ones.
type background struct {
	wg      sync.WaitGroup
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func (b *background) run(ctx context.Context, welcome WelcomeEmail, job func(ctx context.Context) error) {
	timeout := b.timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		if err := job(ctx); err != nil {
			b.metrics.WelcomeEmail("error")
			b.logger.Warn("welcome email dispatch failed",
				zap.String("email", welcome.Email),
				zap.Error(err))
			return
		}
		b.metrics.WelcomeEmail("dispatched")
	}()
}

// Wait blocks until every dispatched job has finished.
func (b *background) Wait() {
	b.wg.Wait()
}
