package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/gocomet/ridematch/internal/api/dto"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
)

const principalKey = "principal"

// Authenticate verifies the bearer credential and stores the caller on the context.
func Authenticate(verifier identity.Verifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.BearerToken(c.Request)
		if err != nil {
			abort(c, apperrors.Unauthenticated("a bearer token is required", err))
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			log.Debug("Rejected bearer token", logger.String("path", c.FullPath()), logger.Err(err))
			message := "invalid or expired token"
			if errors.Is(err, identity.ErrMissingRole) {
				message = "token carries no rider or driver role"
			}
			abort(c, apperrors.Unauthenticated(message, err))
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole rejects callers of any other role with 403.
func RequireRole(role identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil || p.Role != role {
			abort(c, apperrors.Forbidden("this endpoint is only available to "+string(role)+"s"))
			return
		}
		c.Next()
	}
}

// Principal returns the authenticated caller, or nil outside Authenticate.
func Principal(c *gin.Context) *identity.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*identity.Principal)
	return p
}

// WithPrincipal is used by tests that bypass token verification.
func WithPrincipal(p *identity.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalKey, p)
		c.Next()
	}
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.Status, dto.ErrorResponse{Code: err.Code, Message: err.Message})
}
