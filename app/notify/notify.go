// Package notify delivers build failure and completion messages via email and webhooks
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
)

//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports github.com/go-pkgz/notify Notifier

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Service sends messages to all configured destinations
type Service struct {
	Params
	destinations []notify.Notifier
	fromEmail    string
	toEmail      []string
	webhooks     []string
}

// Params defines which events get notifications and optional custom templates
type Params struct {
	EnabledError       bool
	EnabledCompletion  bool
	ErrorTemplate      string // path to custom error template, embedded default if empty
	CompletionTemplate string // path to custom completion template, embedded default if empty
	HostName           string // shown in messages as the build server
}

// SendersParams defines delivery channels
type SendersParams struct {
	notify.SMTPParams
	FromEmail      string
	ToEmails       []string
	WebhookURLs    []string
	WebhookHeaders []string // "name:value" pairs
	WebhookTimeout time.Duration
}

// NewService makes notification service, returns nil if no destinations defined
func NewService(p Params, sp SendersParams) *Service {
	res := &Service{Params: p, fromEmail: sp.FromEmail, toEmail: sp.ToEmails, webhooks: sp.WebhookURLs}
	if len(sp.ToEmails) > 0 {
		res.destinations = append(res.destinations, notify.NewEmail(sp.SMTPParams))
	}
	if len(sp.WebhookURLs) > 0 {
		res.destinations = append(res.destinations, notify.NewWebhook(notify.WebhookParams{
			Timeout: sp.WebhookTimeout, Headers: sp.WebhookHeaders}))
	}
	if len(res.destinations) == 0 {
		return nil
	}
	return res
}

// Send message with subject to email recipients and webhooks. Email gets subject in headers,
// webhooks get subject as the first line of the text.
func (s *Service) Send(ctx context.Context, subj, text string) error {
	var errs []error
	if len(s.toEmail) > 0 {
		if err := notify.Send(ctx, s.destinations, s.mailtoDestination(subj), text); err != nil {
			errs = append(errs, err)
		}
	}
	for _, wh := range s.webhooks {
		if err := notify.Send(ctx, s.destinations, wh, subj+"\n\n"+text); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", wh, err))
		}
	}
	if len(errs) == 0 {
		log.Printf("[DEBUG] notification %q sent", subj)
	}
	return errors.Join(errs...)
}

// IsOnError status enabling on-error notification
func (s *Service) IsOnError() bool { return s.EnabledError }

// IsOnCompletion status enabling on-completion notification
func (s *Service) IsOnCompletion() bool { return s.EnabledCompletion }

// MakeErrorHTML creates html message for failed build
func (s *Service) MakeErrorHTML(name, host, errorLog string) (string, error) {
	data := s.templateData(name, host)
	data.Error = errorLog
	return s.render(s.ErrorTemplate, "templates/error.tmpl", data)
}

// MakeCompletionHTML creates html message for completed build
func (s *Service) MakeCompletionHTML(name, host, packageName string) (string, error) {
	data := s.templateData(name, host)
	data.PackageName = packageName
	return s.render(s.CompletionTemplate, "templates/completion.tmpl", data)
}

type templateData struct {
	Name        string
	URL         string
	PackageName string
	Error       string
	Host        string
	TS          time.Time
}

func (s *Service) templateData(name, host string) templateData {
	return templateData{Name: name, URL: host, Host: s.HostName, TS: time.Now()}
}

// render applies custom template if set and parsable, falls back to embedded one otherwise
func (s *Service) render(custom, embedded string, data templateData) (string, error) {
	var tmpl *template.Template
	if custom != "" {
		t, err := template.ParseFiles(custom)
		if err != nil {
			log.Printf("[WARN] can't use template %s, fallback to default: %v", custom, err)
		} else {
			tmpl = t
		}
	}
	if tmpl == nil {
		t, err := template.ParseFS(templatesFS, embedded)
		if err != nil {
			return "", fmt.Errorf("can't parse message template: %w", err)
		}
		tmpl = t
	}

	buf := bytes.Buffer{}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply template: %w", err)
	}
	return buf.String(), nil
}

func (s *Service) mailtoDestination(subj string) string {
	q := url.Values{}
	if s.fromEmail != "" {
		q.Set("from", s.fromEmail)
	}
	q.Set("subject", subj)
	return "mailto:" + strings.Join(s.toEmail, ",") + "?" + q.Encode()
}

// HostName returns MHOST env if set, os hostname otherwise
func HostName() string {
	if host := os.Getenv("MHOST"); host != "" {
		return host
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}
