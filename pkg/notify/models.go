package notify

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// JobOutcome carries everything the outcome templates need about a
// finished restoration job.
type JobOutcome struct {
	JobID        string
	SessionID    string
	Mode         string
	State        string
	QualityScore float64
	RetryCount   int
	OutputURL    string
	Reason       string
}
