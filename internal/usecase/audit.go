package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/infra/telemetry"
)

// AuditRecord describes one security event to append to the trail. UserID is
// nil when the subject cannot be attributed, such as a failed login for an
// unknown email.
type AuditRecord struct {
	UserID    *string
	Action    domain.AuditAction
	IPAddress string
	UserAgent string
	Metadata  map[string]any
	Severity  domain.AuditSeverity
}

// AuditRecorder appends audit entries on a best-effort basis. A failed write
// is logged and counted, never returned: the caller's primary operation must
// not fail because the trail could not be extended.
type AuditRecorder struct {
	audits  port.AuditRepository
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewAuditRecorder constructs an AuditRecorder.
func NewAuditRecorder(audits port.AuditRepository, metrics *telemetry.Metrics, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := &AuditRecorder{
		audits:  audits,
		logger:  logger,
		metrics: metrics,
	}
	recorder.now = func() time.Time { return time.Now().UTC() }
	return recorder
}

// WithClock overrides the internal clock for deterministic tests.
func (r *AuditRecorder) WithClock(clock func() time.Time) *AuditRecorder {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Record appends the entry, swallowing any storage failure.
func (r *AuditRecorder) Record(ctx context.Context, record AuditRecord) {
	if r == nil || r.audits == nil {
		return
	}

	severity := record.Severity
	if severity == "" {
		severity = domain.SeverityInfo
	}

	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    record.UserID,
		Action:    record.Action,
		IPAddress: record.IPAddress,
		UserAgent: record.UserAgent,
		Metadata:  record.Metadata,
		Severity:  severity,
		CreatedAt: r.now(),
	}

	if err := r.audits.Append(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.AuditWriteErrors.Inc()
		}
		r.logger.Error("audit write failed",
			zap.String("action", string(record.Action)),
			zap.Error(err),
		)
	}
}

// auditUser adapts a user id to the nullable reference carried by the entry.
func auditUser(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}
