package port

import (
	"context"

	"github.com/readzone/identity-core/internal/core/domain"
)

// AuditRepository appends and queries the audit trail. Rows are never updated
// or deleted except for AnonymizeUser, which nulls the subject reference while
// preserving the rows.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error)
	AnonymizeUser(ctx context.Context, userID string) (int, error)
}
