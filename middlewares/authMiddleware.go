package middlewares

import (
	"net/http"
	"strings"

	"petitbacserver/game"
	"petitbacserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "playerClaims"

// AuthMiddleware は Bearer トークンを検証し、URL の :code と一致するルームのプレイヤーだけを通します。
func AuthMiddleware(issuer *TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required", "code": "unauthorized"})
			return
		}

		claims, err := issuer.ParseToken(tokenString)
		if err != nil {
			logger.Warn("Failed to parse player token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "unauthorized"})
			return
		}

		if code := c.Param("code"); code != "" && game.NormalizeCode(code) != claims.RoomCode {
			logger.Warn("Token used for another room", zap.String("roomCode", code), zap.String("tokenRoom", claims.RoomCode))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token is not valid for this room", "code": "forbidden"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext は AuthMiddleware が保存したクレームを返します。
func ClaimsFromContext(c *gin.Context) (*models.PlayerClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.PlayerClaims)
	return claims, ok
}
