package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/service"
)

// ListPosts 返回公开文章分页列表，支持 page、limit、category 参数。
func (a *API) ListPosts(c *gin.Context) {
	result, err := a.posts.ListPublished(c.Request.Context(), service.PublicFilter{
		Page:         parseIntQuery(c, "page"),
		Limit:        parseIntQuery(c, "limit"),
		CategorySlug: c.Query("category"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TrendingPosts 返回浏览量最高的可见文章。
func (a *API) TrendingPosts(c *gin.Context) {
	posts, err := a.posts.Trending(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// GetPostBySlug 返回单篇可见文章。
func (a *API) GetPostBySlug(c *gin.Context) {
	detail, err := a.posts.BySlug(c.Request.Context(), c.Param(postParam))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListCategories 返回全部栏目。
func (a *API) ListCategories(c *gin.Context) {
	categories, err := a.categories.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// GetCategory 返回栏目及其最新文章。
func (a *API) GetCategory(c *gin.Context) {
	page, err := a.categories.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Healthz 检查数据库连接。
func (a *API) Healthz(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
