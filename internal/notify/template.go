package notify

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/storage"
	"go.uber.org/zap"
)

const defaultWelcomeSubject = "Welcome aboard, {{.FullName}}!"

//go:embed templates/welcome.html
var defaultWelcomeBody string

// Templates renders welcome emails.
type Templates struct {
	subject *texttemplate.Template
	body    *template.Template
}

// DefaultTemplates returns the embedded welcome templates.
func DefaultTemplates() *Templates {
	t, err := NewTemplates(defaultWelcomeSubject, defaultWelcomeBody)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTemplates parses a subject line and an HTML body.
func NewTemplates(subject, body string) (*Templates, error) {
	subjectTmpl, err := texttemplate.New("subject").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	bodyTmpl, err := template.New("body").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &Templates{subject: subjectTmpl, body: bodyTmpl}, nil
}

// LoadTemplates reads a body override from object storage and falls back
// to the embedded templates when storage is not configured or the object
// is missing.
func LoadTemplates(ctx context.Context, store *storage.Storage, key string, logger *zap.Logger) (*Templates, error) {
	if store == nil || strings.TrimSpace(key) == "" {
		return DefaultTemplates(), nil
	}

	data, err := store.ReadAll(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		logger.Info("welcome template override not found, using default",
			zap.String("bucket", store.Bucket()),
			zap.String("key", key))
		return DefaultTemplates(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load welcome template %q: %w", key, err)
	}

	logger.Info("loaded welcome template override",
		zap.String("bucket", store.Bucket()),
		zap.String("key", key))
	return NewTemplates(defaultWelcomeSubject, string(data))
}

// OpenTemplates connects to the configured object store, if any, and loads
// the welcome templates from it.
func OpenTemplates(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Templates, error) {
	objects, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if objects == nil {
		return DefaultTemplates(), nil
	}
	defer objects.Close()
	return LoadTemplates(ctx, objects, cfg.WelcomeTemplateKey, logger)
}

// Welcome renders the welcome email for w.
func (t *Templates) Welcome(w WelcomeEmail) (Message, error) {
	data := struct {
		FullName string
		Email    string
	}{
		FullName: strings.TrimSpace(w.FullName),
		Email:    w.Email,
	}
	if data.FullName == "" {
		data.FullName = "there"
	}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}
	return Message{
		To:       w.Email,
		Subject:  strings.TrimSpace(subject.String()),
		HTMLBody: body.String(),
	}, nil
}
