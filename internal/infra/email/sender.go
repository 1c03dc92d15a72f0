package email

import (
	"context"

	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/port"
	applogger "github.com/readzone/identity-core/internal/infra/logger"
)

// LoggingSender records outbound verification and reset emails instead of
// delivering them. It stands in for a real provider in development and keeps
// tokens out of the logs; only masked recipients are recorded.
type LoggingSender struct {
	logger *zap.Logger
}

var _ port.EmailSender = (*LoggingSender)(nil)

// NewLoggingSender constructs LoggingSender.
func NewLoggingSender(logger *zap.Logger) *LoggingSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingSender{logger: logger}
}

// SendVerificationEmail logs the dispatch of an email verification message.
func (s *LoggingSender) SendVerificationEmail(ctx context.Context, msg port.EmailMessage) error {
	s.logger.Info("email verification dispatched",
		zap.String("to", applogger.MaskEmail(msg.To)),
		zap.String("user_id", msg.UserID),
	)
	return nil
}

// SendPasswordResetEmail logs the dispatch of a password reset message.
func (s *LoggingSender) SendPasswordResetEmail(ctx context.Context, msg port.EmailMessage) error {
	s.logger.Info("password reset dispatched",
		zap.String("to", applogger.MaskEmail(msg.To)),
		zap.String("user_id", msg.UserID),
	)
	return nil
}
