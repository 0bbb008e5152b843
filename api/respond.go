package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// fail 記錄非預期的錯誤並回覆500，預期中的錯誤應該在handler內對應到明確的狀態碼
func (srv *Server) fail(c *gin.Context, err error) {
	srv.logger.Error("Unexpected handler error",
		slog.String("path", c.FullPath()),
		slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"message": lo.ToPtr("Internal server error"),
	})
}
