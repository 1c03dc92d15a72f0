package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
)

// AuditRepository implements port.AuditRepository using PostgreSQL.
// The table is append-only; AnonymizeUser nulls the subject reference but the
// rows themselves survive account deletion.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository wires a PostgreSQL-backed audit repository.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts an audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("identity.audit_logs").
		Columns("id", "user_id", "action", "ip_address", "user_agent", "metadata", "severity", "created_at").
		Values(
			entry.ID,
			entry.UserID,
			entry.Action,
			entry.IPAddress,
			entry.UserAgent,
			metadata,
			entry.Severity,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit entry sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// ListByUser returns the user's audit trail newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	query := r.builder.
		Select("id", "user_id", "action", "ip_address", "user_agent", "metadata", "severity", "created_at").
		From("identity.audit_logs").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit entries sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry    domain.AuditEntry
			metadata []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.IPAddress,
			&entry.UserAgent,
			&metadata,
			&entry.Severity,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

// AnonymizeUser detaches all audit rows from the user and returns how many
// rows were touched.
func (r *AuditRepository) AnonymizeUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("identity.audit_logs").
		Set("user_id", nil).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build anonymize audit sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("anonymize audit entries: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode audit metadata: %w", err)
	}
	return payload, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
