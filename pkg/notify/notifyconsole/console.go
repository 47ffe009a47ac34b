package notifyconsole

import (
	"context"
	"strings"

	"github.com/relightlabs/relight/pkg/logx"
	"github.com/relightlabs/relight/pkg/notify"
)

// ConsoleProvider prints emails to the log instead of sending them.
// Intended for development and testing.
type ConsoleProvider struct {
	logger *logx.Logger
}

// NewConsoleProvider creates a new console email provider.
func NewConsoleProvider(logger *logx.Logger) *ConsoleProvider {
	return &ConsoleProvider{logger: logger}
}

// SendEmail logs the email details instead of sending it.
func (p *ConsoleProvider) SendEmail(_ context.Context, msg notify.EmailMessage) error {
	p.logger.WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Info("notify/console: email sent (dev mode)")

	if msg.TextBody != "" {
		p.logger.Debugf("notify/console: text body:\n%s", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		p.logger.Debugf("notify/console: html body:\n%s", msg.HTMLBody)
	}

	return nil
}
