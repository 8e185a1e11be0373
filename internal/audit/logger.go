package audit

import (
	"context"
	"time"

	"github.com/centsible/centsible/domain"
	"github.com/centsible/centsible/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Emitter appends security-relevant events to the audit log. Appends are
// best-effort: a persistence failure is logged and counted but never
// propagated, so the primary operation cannot be aborted by auditing.
type Emitter struct {
	repo domain.AuditLogRepository
}

// NewEmitter creates an Emitter over the given repository.
func NewEmitter(repo domain.AuditLogRepository) *Emitter {
	return &Emitter{repo: repo}
}

// Log records one audit event. userID may be domain.AuditUserUnknown for
// pre-authentication events. Details must never contain submitted passwords.
func (e *Emitter) Log(ctx context.Context, userID, action, resourceType, resourceID string, details map[string]any, ip, userAgent string) {
	if userID == "" {
		userID = domain.AuditUserUnknown
	}
	entry := &domain.AuditLogEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Timestamp:    time.Now().UTC(),
	}

	if err := e.repo.AppendEntry(ctx, entry); err != nil {
		metrics.AuditWriteFailureTotal.Inc()
		log.Error().Err(err).
			Str("action", action).
			Str("user", userID).
			Msg("Failed to persist audit entry, falling back to log output")
		log.Info().
			Str("audit_action", action).
			Str("audit_user", userID).
			Str("audit_resource_type", resourceType).
			Str("audit_resource_id", resourceID).
			Str("audit_ip", ip).
			Interface("audit_details", details).
			Msg("Audit event (fallback)")
		return
	}

	log.Debug().Str("action", action).Str("user", userID).Msg("Audit event recorded")
}
