package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/db"
	"github.com/viewisland/internal/middleware"
	"github.com/viewisland/internal/service"
)

type createPostRequest struct {
	Title       string     `json:"title" binding:"required"`
	Slug        *string    `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	Content     string     `json:"content"`
	CoverImage  string     `json:"coverImage"`
	CategoryID  uint       `json:"categoryId" binding:"required"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"publishedAt"`
	IsTrending  bool       `json:"isTrending"`
}

type updatePostRequest struct {
	Title       *string    `json:"title"`
	Slug        *string    `json:"slug"`
	Excerpt     *string    `json:"excerpt"`
	Content     *string    `json:"content"`
	CoverImage  *string    `json:"coverImage"`
	CategoryID  *uint      `json:"categoryId"`
	Status      *string    `json:"status"`
	PublishedAt *time.Time `json:"publishedAt"`
	IsTrending  *bool      `json:"isTrending"`
}

// CreatePost 创建文章，作者取自当前登录用户。
func (a *API) CreatePost(c *gin.Context) {
	var req createPostRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}
	if !a.categoryExists(c, req.CategoryID) {
		return
	}

	post, err := a.posts.Create(c.Request.Context(), service.PostInput{
		Title:       req.Title,
		Slug:        req.Slug,
		Excerpt:     req.Excerpt,
		Content:     req.Content,
		CoverImage:  req.CoverImage,
		CategoryID:  req.CategoryID,
		Status:      db.PostStatus(req.Status),
		PublishedAt: req.PublishedAt,
		IsTrending:  req.IsTrending,
	}, middleware.CurrentPrincipal(c).UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// UpdatePost 按提交的字段更新文章，浏览量不可修改。
func (a *API) UpdatePost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req updatePostRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}
	if req.CategoryID != nil && !a.categoryExists(c, *req.CategoryID) {
		return
	}

	patch := service.PostPatch{
		Title:       req.Title,
		Slug:        req.Slug,
		Excerpt:     req.Excerpt,
		Content:     req.Content,
		CoverImage:  req.CoverImage,
		CategoryID:  req.CategoryID,
		PublishedAt: req.PublishedAt,
		IsTrending:  req.IsTrending,
	}
	if req.Status != nil {
		status := db.PostStatus(*req.Status)
		patch.Status = &status
	}

	post, err := a.posts.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// DeletePost 删除文章及其按天统计。
func (a *API) DeletePost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.posts.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminListPosts 返回所有文章（含草稿与定时文章）。
func (a *API) AdminListPosts(c *gin.Context) {
	posts, err := a.posts.ListForAdmin(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// AdminGetPost 按 id 返回文章，不受可见性限制。
func (a *API) AdminGetPost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	post, err := a.posts.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (a *API) categoryExists(c *gin.Context, id uint) bool {
	var count int64
	if err := a.db.WithContext(c.Request.Context()).Model(&db.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		respondServiceError(c, err)
		return false
	}
	if count == 0 {
		respondError(c, http.StatusBadRequest, "unknown category")
		return false
	}
	return true
}
