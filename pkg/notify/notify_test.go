package notify_test

import (
	"context"
	"strings"
	"testing"

	"github.com/relightlabs/relight/pkg/notify"
)

type captureSender struct {
	sent []notify.EmailMessage
}

func (c *captureSender) SendEmail(_ context.Context, msg notify.EmailMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestJobFinished_CompletedUsesSuccessTemplate(t *testing.T) {
	sender := &captureSender{}
	notifier, err := notify.NewJobNotifier(sender, "noreply@relight.dev", []string{"ops@relight.dev"})
	if err != nil {
		t.Fatalf("NewJobNotifier: %v", err)
	}

	err = notifier.JobFinished(context.Background(), notify.JobOutcome{
		JobID:        "job-42",
		Mode:         "restoration",
		State:        "COMPLETED",
		QualityScore: 87,
		RetryCount:   1,
		OutputURL:    "https://images.relight.dev/out/job-42.png",
	})
	if err != nil {
		t.Fatalf("JobFinished: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if !strings.Contains(msg.Subject, "completed") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTMLBody, "87") {
		t.Fatalf("body missing quality score: %q", msg.HTMLBody)
	}
	if !strings.Contains(msg.HTMLBody, "after 1 retries") {
		t.Fatalf("body missing retry note: %q", msg.HTMLBody)
	}
	if !strings.Contains(msg.HTMLBody, "job-42.png") {
		t.Fatalf("body missing output link: %q", msg.HTMLBody)
	}
}

func TestJobFinished_FailedUsesFailureTemplate(t *testing.T) {
	sender := &captureSender{}
	notifier, err := notify.NewJobNotifier(sender, "noreply@relight.dev", []string{"ops@relight.dev"})
	if err != nil {
		t.Fatalf("NewJobNotifier: %v", err)
	}

	err = notifier.JobFinished(context.Background(), notify.JobOutcome{
		JobID:  "job-7",
		Mode:   "enhancement",
		State:  "FAILED",
		Reason: "max_retries_exceeded",
	})
	if err != nil {
		t.Fatalf("JobFinished: %v", err)
	}

	msg := sender.sent[0]
	if !strings.Contains(msg.Subject, "failed") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTMLBody, "max_retries_exceeded") {
		t.Fatalf("body missing reason: %q", msg.HTMLBody)
	}
}

func TestNewJobNotifier_RequiresRecipients(t *testing.T) {
	_, err := notify.NewJobNotifier(&captureSender{}, "noreply@relight.dev", nil)
	if err == nil {
		t.Fatal("expected error with no recipients")
	}
	if !strings.Contains(err.Error(), "NOTIFY_NO_RECIPIENTS") {
		t.Fatalf("err = %v", err)
	}
}
