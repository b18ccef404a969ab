package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAuthor 返回作者主页：公开资料与最新文章。
func (a *API) GetAuthor(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := a.authors.Profile(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
