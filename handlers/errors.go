package handlers

import (
	"net/http"

	"petitbacserver/game"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor は game.Kind を HTTP ステータスに対応付けます。
var statusFor = map[string]int{
	"validation":         http.StatusBadRequest,
	"not_found":          http.StatusNotFound,
	"forbidden":          http.StatusForbidden,
	"invalid_transition": http.StatusForbidden,
	"conflict":           http.StatusConflict,
	"full":               http.StatusConflict,
}

// respondError はエラーを {"error","code"} 形式で返します。
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := game.Kind(err)
	status, ok := statusFor[kind]
	if !ok {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": kind})
		return
	}
	logger.Info("Request rejected", zap.String("path", c.FullPath()), zap.String("code", kind), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error(), "code": kind})
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Info("Invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation"})
}
