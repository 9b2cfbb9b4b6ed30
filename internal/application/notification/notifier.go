// Package notification delivers verification codes over out-of-band channels.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-recovery-api/internal/domain"
)

// Message is one code delivery request.
type Message struct {
	Purpose   domain.Purpose
	Channel   domain.Channel
	AccountID string
	Address   string
	Name      string
	Code      string
	Validity  time.Duration
}

// Notifier delivers a message over a single channel.
type Notifier interface {
	Channel() domain.Channel
	Notify(ctx context.Context, msg Message) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// SMSNotifier renders the purpose's SMS template and hands it to the SMS gateway.
type SMSNotifier struct {
	sender    smsSender
	templates *Templates
}

func NewSMSNotifier(sender smsSender, templates *Templates) *SMSNotifier {
	return &SMSNotifier{sender: sender, templates: templates}
}

func (n *SMSNotifier) Channel() domain.Channel { return domain.ChannelSMS }

func (n *SMSNotifier) Notify(ctx context.Context, msg Message) error {
	text, err := n.templates.RenderSMS(msg)
	if err != nil {
		return err
	}
	if err := n.sender.SendSMS(ctx, msg.Address, text); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

// EmailNotifier renders the purpose's HTML template and mails it.
type EmailNotifier struct {
	mailer    mailer
	templates *Templates
}

func NewEmailNotifier(m mailer, templates *Templates) *EmailNotifier {
	return &EmailNotifier{mailer: m, templates: templates}
}

func (n *EmailNotifier) Channel() domain.Channel { return domain.ChannelEmail }

func (n *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	subject, body, err := n.templates.RenderEmail(msg)
	if err != nil {
		return err
	}
	if err := n.mailer.SendEmail(ctx, msg.Address, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Registry selects the notifier for a caller-supplied channel.
type Registry struct {
	notifiers map[domain.Channel]Notifier
}

func NewRegistry(notifiers ...Notifier) *Registry {
	r := &Registry{notifiers: make(map[domain.Channel]Notifier, len(notifiers))}
	for _, n := range notifiers {
		r.notifiers[n.Channel()] = n
	}
	return r
}

func (r *Registry) For(ch domain.Channel) (Notifier, bool) {
	n, ok := r.notifiers[ch]
	return n, ok
}
