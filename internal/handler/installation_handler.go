package handler

import (
	"github.com/gin-gonic/gin"

	"kairos/launch/internal/model"
	"kairos/launch/internal/service"
	"kairos/launch/pkg/response"
)

type InstallationHandler struct {
	installationService service.InstallationService
	auditService        service.AuditService
	admins              map[string]struct{}
}

// NewInstallationHandler builds the handler. Users in adminUserIDs see every
// installation; everyone else only sees their own.
func NewInstallationHandler(installationService service.InstallationService, auditService service.AuditService, adminUserIDs []string) *InstallationHandler {
	admins := make(map[string]struct{}, len(adminUserIDs))
	for _, id := range adminUserIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &InstallationHandler{installationService: installationService, auditService: auditService, admins: admins}
}

// List filters installations by productId or, failing that, purchaseCode.
func (h *InstallationHandler) List(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	owner := claims.Subject
	if _, isAdmin := h.admins[claims.Subject]; isAdmin {
		owner = ""
	}

	var (
		installations []model.Installation
		err           error
	)
	ctx := c.Request.Context()

	switch {
	case c.Query("productId") != "":
		installations, err = h.installationService.ListByProduct(ctx, c.Query("productId"), owner)
	case c.Query("purchaseCode") != "":
		installations, err = h.installationService.ListByPurchaseCode(ctx, c.Query("purchaseCode"), owner)
	default:
		response.BadRequest(c, "productId or purchaseCode is required")
		return
	}
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}
	if installations == nil {
		installations = []model.Installation{}
	}
	response.Success(c, gin.H{"installations": installations})
}
