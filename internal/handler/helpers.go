package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kairos/launch/internal/handler/middleware"
	"kairos/launch/internal/service"
	"kairos/launch/internal/upstream"
	jwtpkg "kairos/launch/pkg/jwt"
	"kairos/launch/pkg/logging"
	"kairos/launch/pkg/response"
)

var ErrNoClaims = errors.New("claims not found in context")

func getClaimsFromContext(c *gin.Context) (*jwtpkg.Claims, error) {
	claimsVal, exists := c.Get(middleware.ContextKeyUserClaims)
	if !exists {
		return nil, ErrNoClaims
	}
	claims, ok := claimsVal.(*jwtpkg.Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrNoClaims
	}
	return claims, nil
}

// mustClaims writes a 401 and returns nil when the request carries no user.
func mustClaims(c *gin.Context) *jwtpkg.Claims {
	claims, err := getClaimsFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return nil
	}
	return claims
}

// respondError maps service and upstream errors to responses. Server-side and
// upstream failures are also written to the audit log as api.error.
func respondError(c *gin.Context, audit service.AuditService, err error) {
	ctx := c.Request.Context()
	status := http.StatusInternalServerError

	var rateLimited *upstream.RateLimitedError
	switch {
	case errors.Is(err, service.ErrProviderNotConnected):
		status = http.StatusUnauthorized
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrUnsupportedProvider),
		errors.Is(err, service.ErrMissingEnvVar),
		errors.Is(err, service.ErrInvalidEnvVar):
		status = http.StatusBadRequest
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrInstallationNotFound):
		status = http.StatusNotFound
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrLicenseNotVerified),
		errors.Is(err, service.ErrPurchaseCodeMismatch),
		errors.Is(err, service.ErrInstallationNotOwned),
		errors.Is(err, service.ErrDeploymentMismatch),
		errors.Is(err, service.ErrRepositoryInaccessible):
		status = http.StatusForbidden
		response.Forbidden(c, err.Error())
	case errors.As(err, &rateLimited):
		status = http.StatusTooManyRequests
		response.TooManyRequests(c, "rate limited by upstream, try again later", rateLimited.RetryAfter)
	case errors.Is(err, upstream.ErrUnauthorized):
		status = http.StatusUnauthorized
		response.Unauthorized(c, "provider rejected the access token, please reconnect")
	case errors.Is(err, upstream.ErrUnavailable), errors.Is(err, upstream.ErrNetwork):
		status = http.StatusServiceUnavailable
		response.ServiceUnavailable(c, "upstream service unavailable")
	case errors.Is(err, upstream.ErrNotFound):
		status = http.StatusBadGateway
		response.BadGateway(c, err.Error())
	default:
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			status = http.StatusBadGateway
			response.BadGateway(c, "upstream request failed")
		} else {
			response.InternalError(c, "internal server error")
		}
	}

	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("request failed", zap.Error(err))
		var userID string
		if claims, cerr := getClaimsFromContext(c); cerr == nil {
			userID = claims.Subject
		}
		audit.Log(ctx, service.AuditAPIError, userID, map[string]interface{}{
			"endpoint": c.FullPath(),
			"error":    err.Error(),
		})
	}
}
