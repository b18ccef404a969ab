package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/metrics"
)

// postParam 是公开文章路由的参数名：读取时为 slug，记录浏览时为 id。
const postParam = "post"

// RecordView 记录一次文章浏览，来源 IP 取自 gin 的 ClientIP。
func (a *API) RecordView(c *gin.Context) {
	id, err := parseUintParam(c, postParam)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.analytics.RecordView(c.Request.Context(), id, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	metrics.ViewsRecorded.WithLabelValues(result.Country).Inc()
	c.JSON(http.StatusOK, result)
}
