package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/readzone/identity-core/internal/core/domain"
)

func TestAuditRecorder_Record(t *testing.T) {
	env := newTestEnv(t)
	recorder := NewAuditRecorder(env.audits, nil, nil).WithClock(env.clock.Now)

	recorder.Record(context.Background(), AuditRecord{
		UserID:    auditUser("user-1"),
		Action:    domain.AuditLogin,
		IPAddress: "203.0.113.9",
		UserAgent: "ua",
		Metadata:  map[string]any{"session_id": "s-1"},
	})

	if len(env.audits.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(env.audits.entries))
	}
	entry := env.audits.entries[0]
	if entry.ID == "" {
		t.Fatal("entry id not assigned")
	}
	if !entry.CreatedAt.Equal(env.clock.Now()) {
		t.Fatalf("created at %v, want %v", entry.CreatedAt, env.clock.Now())
	}
	if entry.Severity != domain.SeverityInfo {
		t.Fatalf("default severity = %s, want INFO", entry.Severity)
	}
}

func TestAuditRecorder_SwallowsWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.audits.failErr = fmt.Errorf("disk full")
	recorder := NewAuditRecorder(env.audits, nil, nil).WithClock(env.clock.Now)

	// Record has no error return; the caller's operation must not notice.
	recorder.Record(context.Background(), AuditRecord{
		Action:   domain.AuditLogin,
		Severity: domain.SeverityInfo,
	})

	if len(env.audits.entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(env.audits.entries))
	}
}

func TestAuditUser(t *testing.T) {
	if got := auditUser(""); got != nil {
		t.Fatalf("auditUser(\"\") = %v, want nil", got)
	}
	if got := auditUser("user-1"); got == nil || *got != "user-1" {
		t.Fatalf("auditUser(user-1) = %v", got)
	}
}
