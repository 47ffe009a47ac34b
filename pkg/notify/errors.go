package notify

import "github.com/relightlabs/relight/pkg/errx"

var notifyErrors = errx.NewRegistry("NOTIFY")

var (
	ErrSendFailed       = notifyErrors.Register("SEND_FAILED", errx.TypeExternal, 500, "Failed to send email")
	ErrInvalidMessage   = notifyErrors.Register("INVALID_MESSAGE", errx.TypeValidation, 400, "Invalid email message")
	ErrTemplateNotFound = notifyErrors.Register("TEMPLATE_NOT_FOUND", errx.TypeNotFound, 404, "Email template not found")
	ErrTemplateParse    = notifyErrors.Register("TEMPLATE_PARSE", errx.TypeValidation, 400, "Failed to parse email template")
	ErrTemplateRender   = notifyErrors.Register("TEMPLATE_RENDER", errx.TypeInternal, 500, "Failed to render email template")
	ErrNoRecipients     = notifyErrors.Register("NO_RECIPIENTS", errx.TypeValidation, 400, "No notification recipients configured")
)
