package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const contextKeySubject = "auth-subject"

// AuthRequired 驗證 Authorization header 中的 bearer token
// token 由外部身份提供者簽發，這裡只檢查有效性，不處理登入流程
func (impl *ServerImpl) AuthRequired() gin.HandlerFunc {
	const op = "AuthRequired"
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
			return
		}
		claims, err := impl.verifier.Verify(c.Request.Context(), rawToken)
		if err != nil {
			slog.Warn("Reject invalid token", slog.String("op", op), slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
			return
		}
		c.Set(contextKeySubject, claims.Sub)
		c.Next()
	}
}
