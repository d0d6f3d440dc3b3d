package routers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/partup/partup/internal/handlers"
	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/networks"
	"go.uber.org/zap"
)

// key for the verified claims in gin.Context
const AuthClaims string = "_partup.Claims"

// AdminScope grants platform administration.
const AdminScope = "admin"

// ValidateJWT verifies the bearer token of the request and stores the
// resulting caller under handlers.AuthCaller.
func ValidateJWT(logger *zap.SugaredLogger, verifier TokenVerifier) func(*gin.Context) {
	return func(c *gin.Context) {
		authz := c.Request.Header.Get("Authorization")
		if authz == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewApiError("unauthorized", "no Authorization header present"))
			return
		}

		parts := strings.Split(authz, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewApiError("unauthorized", "unable to get token from header"))
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), parts[1])
		if err != nil {
			logger.Debugw("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewApiError("unauthorized", "token is not valid"))
			return
		}
		if claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewApiError("unauthorized", "token has no subject"))
			return
		}

		c.Set(AuthClaims, claims)
		c.Set(gin.AuthUserKey, claims.Subject)
		c.Set(handlers.AuthCaller, &networks.Caller{
			ID:    claims.Subject,
			Email: claims.Email,
			Admin: claims.HasScope(AdminScope),
		})
		c.Next()
	}
}

// SyncUser records the profile asserted by the token before the request is
// handled, so invites by email can be resolved to the user.
func SyncUser(logger *zap.SugaredLogger, service *networks.Service) func(*gin.Context) {
	return func(c *gin.Context) {
		v, ok := c.Get(AuthClaims)
		if !ok {
			c.Next()
			return
		}
		claims := v.(*Claims)
		err := service.SyncUser(c.Request.Context(), models.User{
			ID:       claims.Subject,
			UserName: claims.UserName,
			FullName: claims.FullName,
			Email:    claims.Email,
			Admin:    claims.HasScope(AdminScope),
		})
		if err != nil {
			handlers.SendInternalServerError(c, logger, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
