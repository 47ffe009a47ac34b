// Package notify delivers terminal-state notifications for restoration
// jobs. A JobNotifier renders the outcome into an email and hands it to
// an EmailSender provider.
package notify

import (
	"context"
	"fmt"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

const (
	templateCompleted = "job_completed"
	templateFailed    = "job_failed"
)

const completedTemplate = `<p>Your {{.Mode}} job <strong>{{.JobID}}</strong> finished.</p>
<p>Quality score: {{printf "%.0f" .QualityScore}}{{if gt .RetryCount 0}} (after {{.RetryCount}} retries){{end}}</p>
{{if .OutputURL}}<p><a href="{{.OutputURL}}">Download the restored image</a></p>{{end}}`

const failedTemplate = `<p>Your {{.Mode}} job <strong>{{.JobID}}</strong> could not be completed.</p>
<p>Reason: {{.Reason}}</p>`

// JobNotifier sends job outcome emails through a provider.
type JobNotifier struct {
	provider  EmailSender
	templates *TemplateRegistry
	from      string
	to        []string
}

// NewJobNotifier creates a notifier with the built-in outcome templates.
func NewJobNotifier(provider EmailSender, from string, to []string) (*JobNotifier, error) {
	if len(to) == 0 {
		return nil, notifyErrors.New(ErrNoRecipients)
	}

	templates := NewTemplateRegistry()
	if err := templates.Register(templateCompleted, completedTemplate); err != nil {
		return nil, err
	}
	if err := templates.Register(templateFailed, failedTemplate); err != nil {
		return nil, err
	}

	return &JobNotifier{
		provider:  provider,
		templates: templates,
		from:      from,
		to:        to,
	}, nil
}

// JobFinished sends the outcome email for a job that reached a terminal
// state. COMPLETED jobs get the success template, everything else the
// failure template.
func (n *JobNotifier) JobFinished(ctx context.Context, outcome JobOutcome) error {
	name := templateFailed
	subject := fmt.Sprintf("Restoration job %s failed", outcome.JobID)
	if outcome.State == "COMPLETED" {
		name = templateCompleted
		subject = fmt.Sprintf("Restoration job %s completed", outcome.JobID)
	}

	body, err := n.templates.Render(name, outcome)
	if err != nil {
		return err
	}

	msg := EmailMessage{
		From:     n.from,
		To:       n.to,
		Subject:  subject,
		HTMLBody: body,
	}
	if err := n.validate(msg); err != nil {
		return err
	}
	return n.provider.SendEmail(ctx, msg)
}

func (n *JobNotifier) validate(msg EmailMessage) error {
	if len(msg.To) == 0 {
		return notifyErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifyErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	return nil
}
