package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/middleware"
	"go.uber.org/zap"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验凭据并返回 JWT，同时写入会话 cookie 供浏览器后台使用。
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req, "email and password are required") {
		return
	}

	result, err := a.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if err := middleware.SaveSession(c, result.User); err != nil {
		requestLogger(c).Warn("session save failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, result)
}

// Logout 清空会话
func (a *API) Logout(c *gin.Context) {
	if err := middleware.ClearSession(c); err != nil {
		requestLogger(c).Warn("session clear failed", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

// Me 返回当前登录用户
func (a *API) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentPrincipal(c))
}
