package port

import "context"

// EmailMessage carries the fields the email collaborator needs to render and
// deliver a verification or reset message.
type EmailMessage struct {
	To     string
	Token  string
	UserID string
}

// EmailSender is the outbound email collaborator. Calls are fire-and-forget
// from the core's perspective: delivery failures are logged by the
// implementation, never retried by the auth core.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, msg EmailMessage) error
	SendPasswordResetEmail(ctx context.Context, msg EmailMessage) error
}
