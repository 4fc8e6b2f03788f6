package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kairos/launch/internal/model"
	"kairos/launch/internal/repository"
	"kairos/launch/pkg/logging"
)

const (
	AuditUserSignIn                = "user.sign_in"
	AuditUserSignOut               = "user.sign_out"
	AuditLicenseVerified           = "license.verified"
	AuditLicenseVerificationFailed = "license.verification_failed"
	AuditVercelConnected           = "vercel.connected"
	AuditDeploymentStarted         = "deployment.started"
	AuditDeploymentCompleted       = "deployment.completed"
	AuditDeploymentFailed          = "deployment.failed"
	AuditInstallationCreated       = "installation.created"
	AuditAPIError                  = "api.error"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type AuditService interface {
	// Log records an event. Failures are logged and swallowed.
	Log(ctx context.Context, action, userID string, details map[string]interface{})
	List(ctx context.Context, action string, limit int) ([]model.AuditLog, error)
}

type auditService struct {
	repo repository.AuditLogRepository
	now  func() time.Time
}

func NewAuditService(repo repository.AuditLogRepository) AuditService {
	return &auditService{repo: repo, now: time.Now}
}

func (s *auditService) Log(ctx context.Context, action, userID string, details map[string]interface{}) {
	entry := &model.AuditLog{
		Action:    action,
		Details:   model.JSONMap(details),
		Timestamp: s.now().UTC(),
	}
	if entry.Details == nil {
		entry.Details = model.JSONMap{}
	}
	if userID != "" {
		entry.UserID = &userID
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		logging.FromContext(ctx).Error("failed to write audit log",
			zap.Error(err),
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Any("details", details),
		)
	}
}

func (s *auditService) List(ctx context.Context, action string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return s.repo.List(ctx, action, limit)
}
