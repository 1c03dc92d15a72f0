package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/repository"
)

func testSession(now time.Time) domain.Session {
	return domain.Session{
		ID:        "session-1",
		UserID:    "user-1",
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0",
		Device: domain.DeviceInfo{
			Browser: "Chrome",
			OS:      "Windows",
			Device:  "Desktop",
		},
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(168 * time.Hour),
		Active:           true,
	}
}

func expectInsertSession(mock pgxmock.PgxPoolIface, session domain.Session) {
	mock.ExpectExec(`INSERT INTO identity\.sessions`).
		WithArgs(
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
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestSessionRepository_CreateWithLimit_UnderCap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)
	now := time.Now().UTC()
	session := testSession(now)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(session.UserID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`SELECT id FROM identity\.sessions`).
		WithArgs(session.UserID, true, now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("session-old"))
	expectInsertSession(mock, session)
	mock.ExpectCommit()

	evicted, err := repo.CreateWithLimit(context.Background(), session, 10)
	if err != nil {
		t.Fatalf("CreateWithLimit returned error: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("expected no evictions under the cap, got %v", evicted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_CreateWithLimit_EvictsOldest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)
	now := time.Now().UTC()
	session := testSession(now)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs(session.UserID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	// Eviction picks victims in creation order, not recent-activity order.
	mock.ExpectQuery(`SELECT id FROM identity\.sessions .* ORDER BY created_at ASC, id ASC`).
		WithArgs(session.UserID, true, now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).
			AddRow("session-oldest").
			AddRow("session-mid").
			AddRow("session-new"))
	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(false, now, "session_limit", "session-oldest").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectInsertSession(mock, session)
	mock.ExpectCommit()

	evicted, err := repo.CreateWithLimit(context.Background(), session, 3)
	if err != nil {
		t.Fatalf("CreateWithLimit returned error: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "session-oldest" {
		t.Fatalf("expected oldest session evicted, got %v", evicted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM identity\.sessions`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(sessionColumns))

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_Extend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)
	now := time.Now().UTC()
	expiresAt := now.Add(24 * time.Hour)

	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(expiresAt, now, "session-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Extend(context.Background(), "session-1", expiresAt, now); err != nil {
		t.Fatalf("Extend returned error: %v", err)
	}

	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(expiresAt, now, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Extend(context.Background(), "missing", expiresAt, now); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_RevokeAllForUser_SparesException(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(false, now, "password_change", "user-1", "session-current").
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	count, err := repo.RevokeAllForUser(context.Background(), "user-1", now, "password_change", "session-current")
	if err != nil {
		t.Fatalf("RevokeAllForUser returned error: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 revoked sessions, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
