package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/repository"
)

const uniqueViolation = "23505"

var userColumns = []string{
	"id",
	"email",
	"display_name",
	"password_hash",
	"role",
	"status",
	"email_verified",
	"email_verified_at",
	"mfa_enabled",
	"is_suspended",
	"suspended_until",
	"last_login_at",
	"last_login_ip",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user row. A duplicate email yields repository.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert("identity.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.DisplayName,
			user.PasswordHash,
			user.Role,
			user.Status,
			user.EmailVerified,
			user.EmailVerifiedAt,
			user.MFAEnabled,
			user.IsSuspended,
			user.SuspendedUntil,
			user.LastLoginAt,
			user.LastLoginIP,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("identity.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves a user by case-folded email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("identity.users").
		Where(squirrel.Eq{"email": domain.NormalizeEmail(email)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.EmailVerified,
		&user.EmailVerifiedAt,
		&user.MFAEnabled,
		&user.IsSuspended,
		&user.SuspendedUntil,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("identity.users").
		Set("password_hash", passwordHash).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "update password")
}

// UpdateRole changes the user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.UserRole) error {
	stmt, args, err := r.builder.Update("identity.users").
		Set("role", role).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "update role")
}

// UpdateStatus changes the account status and suspension window. Suspension
// flags are derived from the status so the row stays internally consistent.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status domain.UserStatus, suspendedUntil *time.Time) error {
	stmt, args, err := r.builder.Update("identity.users").
		Set("status", status).
		Set("is_suspended", status == domain.UserStatusSuspended).
		Set("suspended_until", suspendedUntil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "update status")
}

// SetMFAEnabled flips the MFA flag on the user row.
func (r *UserRepository) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	stmt, args, err := r.builder.Update("identity.users").
		Set("mfa_enabled", enabled).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update mfa flag sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "update mfa flag")
}

// SetEmailVerified marks the email address as verified.
func (r *UserRepository) SetEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	stmt, args, err := r.builder.Update("identity.users").
		Set("email_verified", true).
		Set("email_verified_at", verifiedAt).
		Set("updated_at", verifiedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update email verified sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "update email verified")
}

// RecordLogin stamps the last successful login time and source address.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time, ip string) error {
	stmt, args, err := r.builder.Update("identity.users").
		Set("last_login_at", at).
		Set("last_login_ip", ip).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "record login")
}

// Delete removes the user row permanently.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("identity.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	return r.execOne(ctx, stmt, args, "delete user")
}

func (r *UserRepository) execOne(ctx context.Context, stmt string, args []any, op string) error {
	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
