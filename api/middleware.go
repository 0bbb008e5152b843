package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"towbid/adapters/auth"
	"towbid/models"
)

const contextKeyClaims = "towbid/claims"

// authRequired 解析 Authorization header 的 Bearer token，
// 驗證通過後把身分資訊放進請求context
func (srv *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": lo.ToPtr("Missing access token"),
			})
			return
		}
		claims, err := auth.ParseToken([]byte(srv.config.Auth.Secret), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": lo.ToPtr("Invalid access token"),
			})
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// adminOnly 限制只有管理員角色能通過，必須排在 authRequired 之後
func (srv *Server) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := currentClaims(c)
		if claims == nil || claims.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message": lo.ToPtr("Admin role required"),
			})
			return
		}
		c.Next()
	}
}

func currentClaims(c *gin.Context) *auth.Claims {
	value, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, ok := value.(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
