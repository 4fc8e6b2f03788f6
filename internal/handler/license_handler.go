package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kairos/launch/internal/service"
	"kairos/launch/internal/upstream"
	"kairos/launch/pkg/response"
)

type LicenseHandler struct {
	licenseService service.LicenseService
	auditService   service.AuditService
}

func NewLicenseHandler(licenseService service.LicenseService, auditService service.AuditService) *LicenseHandler {
	return &LicenseHandler{licenseService: licenseService, auditService: auditService}
}

type VerifyLicenseRequest struct {
	// The cache key joins user and item with ":", so item ids may not contain it.
	ItemID string `json:"itemId" binding:"required,excludes=:"`
}

type VerifyLicenseResponse struct {
	Verified bool   `json:"verified"`
	Cached   bool   `json:"cached"`
	Error    string `json:"error,omitempty"`
}

// Verify checks the caller's purchase of an item through the license cache.
func (h *LicenseHandler) Verify(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}

	var req VerifyLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.licenseService.Verify(c.Request.Context(), claims.Subject, req.ItemID)
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}

	if rl, ok := upstream.IsRateLimited(result.Err); ok {
		response.TooManyRequests(c, "marketplace rate limit reached, try again later", rl.RetryAfter)
		return
	}
	if errors.Is(result.Err, upstream.ErrUnauthorized) {
		response.Unauthorized(c, "marketplace rejected the access token, please reconnect")
		return
	}

	if !result.Verified {
		msg := "License verification failed"
		if result.Err != nil {
			msg = "Failed to verify license"
		}
		response.ErrorWithData(c, http.StatusForbidden, 403, msg, VerifyLicenseResponse{
			Verified: false,
			Error:    msg,
		})
		return
	}

	response.Success(c, VerifyLicenseResponse{Verified: true, Cached: result.Cached})
}
