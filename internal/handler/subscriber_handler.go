package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type subscribeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Subscribe 订阅新闻简报
func (a *API) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if !bindJSON(c, &req, "a valid email is required") {
		return
	}
	subscriber, err := a.subscribers.Subscribe(c.Request.Context(), req.Email)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subscriber)
}

// Unsubscribe 退订
func (a *API) Unsubscribe(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	subscriber, err := a.subscribers.Unsubscribe(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscriber)
}

// ListSubscribers 返回全部订阅者
func (a *API) ListSubscribers(c *gin.Context) {
	subscribers, err := a.subscribers.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscribers)
}
