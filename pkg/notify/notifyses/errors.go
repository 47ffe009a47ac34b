package notifyses

import "github.com/relightlabs/relight/pkg/errx"

var sesErrors = errx.NewRegistry("NOTIFY_SES")

var ErrSendFailed = sesErrors.Register("SEND_FAILED", errx.TypeExternal, 500, "SES send email failed")
