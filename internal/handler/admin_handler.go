package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"kairos/launch/internal/service"
	"kairos/launch/pkg/response"
)

type AdminHandler struct {
	licenseService service.LicenseService
	auditService   service.AuditService
}

func NewAdminHandler(licenseService service.LicenseService, auditService service.AuditService) *AdminHandler {
	return &AdminHandler{
		licenseService: licenseService,
		auditService:   auditService,
	}
}

// LicenseCacheStats reports how many verdicts the cache holds.
func (h *AdminHandler) LicenseCacheStats(c *gin.Context) {
	n, err := h.licenseService.CacheSize(c.Request.Context())
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, gin.H{"entries": n})
}

// ClearLicenseCache drops every cached verdict.
func (h *AdminHandler) ClearLicenseCache(c *gin.Context) {
	if err := h.licenseService.ClearCache(c.Request.Context()); err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, gin.H{"cleared": true})
}

// ClearLicenseEntry drops the verdict for one user and item.
func (h *AdminHandler) ClearLicenseEntry(c *gin.Context) {
	userID, itemID := c.Param("userId"), c.Param("itemId")
	if err := h.licenseService.ClearEntry(c.Request.Context(), userID, itemID); err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, gin.H{"cleared": true, "userId": userID, "itemId": itemID})
}

// ListAuditLogs returns recent audit entries, optionally for one action.
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	logs, err := h.auditService.List(c.Request.Context(), c.Query("action"), limit)
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, logs)
}
