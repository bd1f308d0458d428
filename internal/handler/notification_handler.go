package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	inbox NotificationService
}

func NewNotificationHandler(inbox NotificationService) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// List handles GET /notifications?unread=true&limit=n
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	unread, _ := strconv.ParseBool(c.Query("unread"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.inbox.List(c.Request.Context(), actor.AccountID, unread, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), actor.AccountID, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
