package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/quartermaster_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and attaches the actor identity
// to the request context. Requests without a token pass through; handlers
// that need an actor fail on the missing context values.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if strings.HasPrefix(auth, bearer) {
			auth = auth[len(bearer):]
		}

		token, err := utils.JwtValidate(auth)
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetBusinessIdInContext(ctx, claims.BusinessId)
		ctx = utils.SetActorIdInContext(ctx, claims.ID)
		ctx = utils.SetActorNameInContext(ctx, claims.Name)
		ctx = utils.SetActorRoleInContext(ctx, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
