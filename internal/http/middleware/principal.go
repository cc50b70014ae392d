package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prodpulse/prodpulse-backend/internal/ctxutil"
	"github.com/prodpulse/prodpulse-backend/internal/http/response"
	"github.com/prodpulse/prodpulse-backend/internal/logger"
)

// PrincipalMiddleware trusts the X-User-ID header set by the upstream auth
// gateway. Authentication itself lives outside this service.
type PrincipalMiddleware struct {
	log *logger.Logger
}

func NewPrincipalMiddleware(baseLog *logger.Logger) *PrincipalMiddleware {
	return &PrincipalMiddleware{log: baseLog.With("middleware", "Principal")}
}

func (m *PrincipalMiddleware) RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			response.RespondError(c, http.StatusUnauthorized, "missing_principal", errors.New("X-User-ID header required"))
			c.Abort()
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusUnauthorized, "invalid_principal", err)
			c.Abort()
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
