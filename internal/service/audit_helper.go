package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// recordAudit writes a best-effort audit entry for a domain change.
func recordAudit(ctx context.Context, writer auditWriter, logger *zap.Logger, actorID, action, resource, resourceID string, payload interface{}) {
	if writer == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: resource}
	if actorID != "" {
		entry.UserID = stringPtr(actorID)
	}
	if resourceID != "" {
		entry.ResourceID = stringPtr(resourceID)
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.NewValues = raw
		}
	}
	if err := writer.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
