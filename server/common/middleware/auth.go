package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hospital_locker/server/common/transport/httpresp"
)

const (
	KeyUserID = "auth_user_id"
	KeyEmail  = "auth_email"
	KeyRole   = "auth_role"
)

// sessionSource reports the identity of whoever is signed in to the local
// gateway. ok is false while signed out.
type sessionSource interface {
	Identity() (uid, email, role string, ok bool)
}

func SessionRequired(src sessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, email, role, ok := src.Identity()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrSessionRequired))
			return
		}
		c.Set(KeyUserID, uid)
		c.Set(KeyEmail, email)
		c.Set(KeyRole, role)
		c.Next()
	}
}

func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[strings.TrimSpace(role)] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(KeyRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
			return
		}
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrInsufficientRole))
			return
		}
		c.Next()
	}
}
