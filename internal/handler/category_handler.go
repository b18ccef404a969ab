package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viewisland/internal/service"
)

type categoryRequest struct {
	Name        string  `json:"name" binding:"required"`
	Slug        *string `json:"slug"`
	Description string  `json:"description"`
}

type categoryPatchRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}

// CreateCategory 新建栏目
func (a *API) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}
	category, err := a.categories.Create(c.Request.Context(), service.CategoryInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// UpdateCategory 更新栏目
func (a *API) UpdateCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	var req categoryPatchRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}
	category, err := a.categories.Update(c.Request.Context(), id, service.CategoryPatch{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// DeleteCategory 删除栏目
func (a *API) DeleteCategory(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.categories.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
