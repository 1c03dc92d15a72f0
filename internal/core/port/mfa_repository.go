package port

import (
	"context"

	"github.com/readzone/identity-core/internal/core/domain"
)

// MFARepository stores TOTP settings and backup codes.
//
// ConsumeBackupCode marks the identified code as used only if it is still
// unused, in one conditional update, and reports whether this caller won the
// consumption. Concurrent redemptions of the same code must observe exactly
// one true result.
type MFARepository interface {
	UpsertSettings(ctx context.Context, settings domain.MFASettings) error
	GetSettings(ctx context.Context, userID string) (*domain.MFASettings, error)
	ConfirmSettings(ctx context.Context, userID string) error
	DeleteSettings(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, codes []domain.BackupCode) error
	ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)
	ConsumeBackupCode(ctx context.Context, codeID string) (bool, error)
}
