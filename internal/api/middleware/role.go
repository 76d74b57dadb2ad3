package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole 只放行指定角色的已认证用户。
// 角色在注册时固定，这里不提供任何改派途径。
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get("userRole")
		if !ok {
			abortUnauthorized(c)
			return
		}
		current, ok := value.(string)
		if !ok || current == "" {
			abortUnauthorized(c)
			return
		}
		if current != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
