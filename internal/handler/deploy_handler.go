package handler

import (
	"github.com/gin-gonic/gin"

	"kairos/launch/internal/service"
	"kairos/launch/pkg/response"
)

type DeployHandler struct {
	deployService service.DeployService
	auditService  service.AuditService
}

func NewDeployHandler(deployService service.DeployService, auditService service.AuditService) *DeployHandler {
	return &DeployHandler{deployService: deployService, auditService: auditService}
}

type StartDeploymentRequest struct {
	ProductID    string            `json:"productId" binding:"required"`
	PurchaseCode string            `json:"purchaseCode" binding:"required"`
	UserEnvVars  map[string]string `json:"userEnvVars"`
}

type DeploymentStatusQuery struct {
	DeploymentID   string `form:"deploymentId" binding:"required"`
	InstallationID string `form:"installationId"`
	Poll           bool   `form:"poll"`
}

// Start verifies the license, creates the project and kicks off the first deployment.
func (h *DeployHandler) Start(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}

	var req StartDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "productId and purchaseCode are required")
		return
	}

	result, err := h.deployService.StartDeployment(c.Request.Context(), service.StartDeploymentRequest{
		UserID:       claims.Subject,
		UserEmail:    claims.Email,
		ProductID:    req.ProductID,
		PurchaseCode: req.PurchaseCode,
		UserEnvVars:  req.UserEnvVars,
	})
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, result)
}

// Status returns one observation, or with poll=true blocks until the
// deployment is ready, failed, or timed out.
func (h *DeployHandler) Status(c *gin.Context) {
	req, ok := h.bindStatus(c)
	if !ok {
		return
	}

	status, err := h.deployService.DeploymentStatus(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, status)
}

// Stream sends every observation as a server-sent "status" event and closes
// after the terminal one.
func (h *DeployHandler) Stream(c *gin.Context) {
	req, ok := h.bindStatus(c)
	if !ok {
		return
	}

	seq, err := h.deployService.WatchDeployment(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	for status := range seq {
		c.SSEvent("status", status)
		c.Writer.Flush()
	}
}

func (h *DeployHandler) bindStatus(c *gin.Context) (service.DeploymentStatusRequest, bool) {
	claims := mustClaims(c)
	if claims == nil {
		return service.DeploymentStatusRequest{}, false
	}

	var q DeploymentStatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "deploymentId is required")
		return service.DeploymentStatusRequest{}, false
	}
	return service.DeploymentStatusRequest{
		UserID:         claims.Subject,
		DeploymentID:   q.DeploymentID,
		InstallationID: q.InstallationID,
		Poll:           q.Poll,
	}, true
}
