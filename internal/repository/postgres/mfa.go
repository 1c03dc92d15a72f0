package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/repository"
)

// MFARepository implements port.MFARepository using PostgreSQL.
type MFARepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewMFARepository wires a PostgreSQL-backed MFA repository.
func NewMFARepository(exec pgExecutor) *MFARepository {
	return &MFARepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// UpsertSettings creates or replaces the user's TOTP settings.
// Re-running setup before confirmation overwrites the pending secret.
func (r *MFARepository) UpsertSettings(ctx context.Context, settings domain.MFASettings) error {
	stmt, args, err := r.builder.Insert("identity.mfa_settings").
		Columns("user_id", "secret", "confirmed", "confirmed_at", "created_at", "updated_at").
		Values(
			settings.UserID,
			settings.Secret,
			settings.Confirmed,
			settings.ConfirmedAt,
			settings.CreatedAt,
			settings.UpdatedAt,
		).
		Suffix(`ON CONFLICT (user_id) DO UPDATE
			SET secret = EXCLUDED.secret,
			    confirmed = EXCLUDED.confirmed,
			    confirmed_at = EXCLUDED.confirmed_at,
			    updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert mfa settings sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert mfa settings: %w", err)
	}

	return nil
}

// GetSettings retrieves the user's TOTP settings.
func (r *MFARepository) GetSettings(ctx context.Context, userID string) (*domain.MFASettings, error) {
	stmt, args, err := r.builder.
		Select("user_id", "secret", "confirmed", "confirmed_at", "created_at", "updated_at").
		From("identity.mfa_settings").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select mfa settings sql: %w", err)
	}

	var settings domain.MFASettings
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&settings.UserID,
		&settings.Secret,
		&settings.Confirmed,
		&settings.ConfirmedAt,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan mfa settings: %w", err)
	}

	return &settings, nil
}

// ConfirmSettings flips pending settings to confirmed.
func (r *MFARepository) ConfirmSettings(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	stmt, args, err := r.builder.Update("identity.mfa_settings").
		Set("confirmed", true).
		Set("confirmed_at", now).
		Set("updated_at", now).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build confirm mfa settings sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("confirm mfa settings: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteSettings removes the user's TOTP settings. Backup codes cascade via
// ReplaceBackupCodes with an empty set at the usecase layer.
func (r *MFARepository) DeleteSettings(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Delete("identity.mfa_settings").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete mfa settings sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete mfa settings: %w", err)
	}

	return nil
}

// ReplaceBackupCodes atomically swaps the user's backup code set. Passing an
// empty slice clears all codes.
func (r *MFARepository) ReplaceBackupCodes(ctx context.Context, userID string, codes []domain.BackupCode) error {
	deleteStmt, deleteArgs, err := r.builder.Delete("identity.mfa_backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete backup codes sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, deleteStmt, deleteArgs...); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	if len(codes) == 0 {
		return nil
	}

	query := r.builder.Insert("identity.mfa_backup_codes").
		Columns("id", "user_id", "code_hash", "created_at", "used_at")
	for _, code := range codes {
		query = query.Values(code.ID, code.UserID, code.CodeHash, code.CreatedAt, code.UsedAt)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert backup codes sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}

	return nil
}

// ListBackupCodes returns the user's backup codes, unused first.
func (r *MFARepository) ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "code_hash", "created_at", "used_at").
		From("identity.mfa_backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("used_at NULLS FIRST", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list backup codes sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query backup codes: %w", err)
	}
	defer rows.Close()

	codes := make([]domain.BackupCode, 0)
	for rows.Next() {
		var code domain.BackupCode
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.CreatedAt, &code.UsedAt); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup codes: %w", err)
	}

	return codes, nil
}

// ConsumeBackupCode marks the code used only when it is still unused. The
// conditional update makes concurrent redemptions race safely: exactly one
// caller observes true.
func (r *MFARepository) ConsumeBackupCode(ctx context.Context, codeID string) (bool, error) {
	stmt, args, err := r.builder.Update("identity.mfa_backup_codes").
		Set("used_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": codeID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume backup code sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

var _ port.MFARepository = (*MFARepository)(nil)
