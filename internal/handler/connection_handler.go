package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"kairos/launch/internal/service"
	"kairos/launch/pkg/response"
)

type ConnectionHandler struct {
	connectionService service.ConnectionService
	auditService      service.AuditService
}

func NewConnectionHandler(connectionService service.ConnectionService, auditService service.AuditService) *ConnectionHandler {
	return &ConnectionHandler{connectionService: connectionService, auditService: auditService}
}

type ConnectRequest struct {
	AccessToken string `json:"accessToken" binding:"required"`
	// ExpiresIn is the token lifetime in seconds; 0 keeps it until removed.
	ExpiresIn int64 `json:"expiresIn" binding:"gte=0"`
}

// Connect stores the caller's access token for a provider.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	provider, err := service.ParseProvider(c.Param("provider"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ttl := time.Duration(req.ExpiresIn) * time.Second
	if err := h.connectionService.Connect(c.Request.Context(), claims.Subject, provider, req.AccessToken, ttl); err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, gin.H{"provider": provider, "connected": true})
}

// Status reports which providers the caller has connected.
func (h *ConnectionHandler) Status(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}

	connected, err := h.connectionService.Connected(c.Request.Context(), claims.Subject)
	if err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, gin.H{"connections": connected})
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	provider, err := service.ParseProvider(c.Param("provider"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.connectionService.Disconnect(c.Request.Context(), claims.Subject, provider); err != nil {
		respondError(c, h.auditService, err)
		return
	}
	response.Success(c, gin.H{"provider": provider, "connected": false})
}
