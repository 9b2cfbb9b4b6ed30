package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"math"
	texttemplate "text/template"

	"github.com/go-recovery-api/internal/domain"
)

const (
	smsRecovery = `Your password recovery code is {{.Code}}. It expires in {{.Minutes}} minutes.`
	smsIdentity = `Your confirmation code is {{.Code}}. It expires in {{.Minutes}} minutes.`

	emailRecovery = `<div style="font-family: Arial, sans-serif; padding: 20px;">
<h2>Hello, {{.Name}}!</h2>
<p>We received a request to reset your password. Your recovery code is:</p>
<h1 style="letter-spacing: 5px;">{{.Code}}</h1>
<p>This code expires in {{.Minutes}} minutes.</p>
<p>If you did not request this, please ignore this email.</p>
</div>`

	emailIdentity = `<div style="font-family: Arial, sans-serif; padding: 20px;">
<h2>Hello, {{.Name}}!</h2>
<p>Use this code to confirm your account:</p>
<h1 style="letter-spacing: 5px;">{{.Code}}</h1>
<p>This code expires in {{.Minutes}} minutes.</p>
</div>`
)

type emailTemplate struct {
	subject string
	body    *htmltemplate.Template
}

type templateData struct {
	Name    string
	Code    string
	Minutes int
}

// Templates resolves message bodies by purpose and channel.
type Templates struct {
	sms   map[domain.Purpose]*texttemplate.Template
	email map[domain.Purpose]emailTemplate
}

// DefaultTemplates returns the built-in bodies for every code-bearing purpose.
func DefaultTemplates() *Templates {
	return &Templates{
		sms: map[domain.Purpose]*texttemplate.Template{
			domain.PurposePasswordRecovery:     texttemplate.Must(texttemplate.New("sms-recovery").Parse(smsRecovery)),
			domain.PurposeIdentityConfirmation: texttemplate.Must(texttemplate.New("sms-identity").Parse(smsIdentity)),
		},
		email: map[domain.Purpose]emailTemplate{
			domain.PurposePasswordRecovery: {
				subject: "Password recovery",
				body:    htmltemplate.Must(htmltemplate.New("email-recovery").Parse(emailRecovery)),
			},
			domain.PurposeIdentityConfirmation: {
				subject: "Confirm your account",
				body:    htmltemplate.Must(htmltemplate.New("email-identity").Parse(emailIdentity)),
			},
		},
	}
}

// OverrideEmailBody replaces the HTML body for purpose, keeping its subject.
func (t *Templates) OverrideEmailBody(purpose domain.Purpose, src string) error {
	cur, ok := t.email[purpose]
	if !ok {
		return fmt.Errorf("no email template for purpose %q", purpose)
	}
	body, err := htmltemplate.New("email-" + string(purpose)).Parse(src)
	if err != nil {
		return fmt.Errorf("parse email template %q: %w", purpose, err)
	}
	t.email[purpose] = emailTemplate{subject: cur.subject, body: body}
	return nil
}

func (t *Templates) RenderSMS(msg Message) (string, error) {
	tpl, ok := t.sms[msg.Purpose]
	if !ok {
		return "", fmt.Errorf("no sms template for purpose %q", msg.Purpose)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, dataFor(msg)); err != nil {
		return "", fmt.Errorf("render sms template: %w", err)
	}
	return buf.String(), nil
}

func (t *Templates) RenderEmail(msg Message) (subject, body string, err error) {
	tpl, ok := t.email[msg.Purpose]
	if !ok {
		return "", "", fmt.Errorf("no email template for purpose %q", msg.Purpose)
	}
	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, dataFor(msg)); err != nil {
		return "", "", fmt.Errorf("render email template: %w", err)
	}
	return tpl.subject, buf.String(), nil
}

func dataFor(msg Message) templateData {
	return templateData{
		Name:    msg.Name,
		Code:    msg.Code,
		Minutes: int(math.Ceil(msg.Validity.Minutes())),
	}
}

type templateSource interface {
	Fetch(ctx context.Context, key string) (string, error)
}

// LoadEmailOverrides replaces built-in email bodies with "<purpose>.html"
// objects from src. Missing objects keep the default.
func LoadEmailOverrides(ctx context.Context, src templateSource, t *Templates) error {
	for purpose := range t.email {
		key := string(purpose) + ".html"
		body, err := src.Fetch(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch template %s: %w", key, err)
		}
		if err := t.OverrideEmailBody(purpose, body); err != nil {
			return err
		}
		slog.Info("loaded email template override", "purpose", purpose, "key", key)
	}
	return nil
}
