package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/service"
)

// AdminStats 返回后台仪表盘数据。
func (a *API) AdminStats(c *gin.Context) {
	stats, err := a.analytics.AdminOverview(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GeoStats 返回指定时间范围内的地区分布，range 取 24h、7d、30d 或 all。
func (a *API) GeoStats(c *gin.Context) {
	rng, err := service.ParseGeoRange(c.Query("range"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	breakdown, err := a.analytics.GeoBreakdown(c.Request.Context(), rng)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}
