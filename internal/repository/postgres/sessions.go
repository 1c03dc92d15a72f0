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

var sessionColumns = []string{
	"id",
	"user_id",
	"ip_address",
	"user_agent",
	"browser",
	"os",
	"device",
	"remember_me",
	"created_at",
	"last_activity_at",
	"expires_at",
	"refresh_expires_at",
	"active",
	"revoked_at",
	"revoke_reason",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any pool that can
// open transactions.
func NewSessionRepository(pool pgPool) *SessionRepository {
	return &SessionRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateWithLimit inserts the session after revoking the oldest active
// sessions that would push the user past maxActive. The whole evict+insert
// runs inside one transaction holding a per-user advisory lock, so two
// concurrent logins for the same user serialize here and the cap holds.
func (r *SessionRepository) CreateWithLimit(ctx context.Context, session domain.Session, maxActive int) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", session.UserID); err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}

	var evicted []string
	if maxActive > 0 {
		evicted, err = r.evictOldest(ctx, tx, session.UserID, maxActive, session.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	stmt, args, err := r.builder.Insert("identity.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.IPAddress,
			session.UserAgent,
			session.Device.Browser,
			session.Device.OS,
			session.Device.Device,
			session.RememberMe,
			session.CreatedAt,
			session.LastActivityAt,
			session.ExpiresAt,
			session.RefreshExpiresAt,
			session.Active,
			session.RevokedAt,
			session.RevokeReason,
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit session tx: %w", err)
	}

	return evicted, nil
}

// evictOldest revokes active sessions oldest first, by creation time, until
// the user has room for one more under the cap.
func (r *SessionRepository) evictOldest(ctx context.Context, tx pgx.Tx, userID string, maxActive int, now time.Time) ([]string, error) {
	stmt, args, err := r.builder.Select("id").
		From("identity.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select active sessions sql: %w", err)
	}

	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}

	active := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		active = append(active, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active sessions: %w", err)
	}

	// Room for the incoming session keeps the post-insert count at the cap.
	excess := len(active) - maxActive + 1
	if excess <= 0 {
		return nil, nil
	}

	evicted := active[:excess]
	reason := "session_limit"
	updateStmt, updateArgs, err := r.builder.Update("identity.sessions").
		Set("active", false).
		Set("revoked_at", now).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": evicted}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build evict sessions sql: %w", err)
	}

	if _, err := tx.Exec(ctx, updateStmt, updateArgs...); err != nil {
		return nil, fmt.Errorf("evict sessions: %w", err)
	}

	return evicted, nil
}

// Get retrieves a session by identifier.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From("identity.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	row := r.pool.QueryRow(ctx, stmt, args...)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// ListByUser returns the user's sessions newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From("identity.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Revoke marks a session revoked. Already-revoked sessions are left untouched
// so the first revocation's timestamp and reason survive.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string, at time.Time, reason string) error {
	stmt, args, err := r.builder.Update("identity.sessions").
		Set("active", false).
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": sessionID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke session sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// RevokeAllForUser revokes every active session of the user, optionally
// sparing one session. Returns how many sessions changed state.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time, reason string, exceptID string) (int, error) {
	query := r.builder.Update("identity.sessions").
		Set("active", false).
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL")

	if exceptID != "" {
		query = query.Where(squirrel.NotEq{"id": exceptID})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke all sessions sql: %w", err)
	}

	ct, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions for user: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// Touch updates the session's last activity timestamp.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	stmt, args, err := r.builder.Update("identity.sessions").
		Set("last_activity_at", at).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	ct, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Extend pushes the session's access expiry forward and records the activity.
// Used on refresh rotation so the new access window sits on the rotated pair.
func (r *SessionRepository) Extend(ctx context.Context, sessionID string, expiresAt, at time.Time) error {
	stmt, args, err := r.builder.Update("identity.sessions").
		Set("expires_at", expiresAt).
		Set("last_activity_at", at).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build extend session sql: %w", err)
	}

	ct, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteAllForUser removes the user's session rows entirely. Used by account
// deletion, which leaves nothing behind.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.Delete("identity.sessions").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete sessions sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete sessions for user: %w", err)
	}

	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.IPAddress,
		&session.UserAgent,
		&session.Device.Browser,
		&session.Device.OS,
		&session.Device.Device,
		&session.RememberMe,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.RefreshExpiresAt,
		&session.Active,
		&session.RevokedAt,
		&session.RevokeReason,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
