package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type unreadMessagesResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

type chatTokenResponse struct {
	Token string `json:"token"`
}

func (h *httpHandler) handleUnreadMessages(c *gin.Context) {
	c.JSON(http.StatusOK, unreadMessagesResponse{UnreadCount: h.chat.UnreadCount(c.Request.Context(), viewerOf(c))})
}

func (h *httpHandler) handleChatToken(c *gin.Context) {
	viewer, err := h.users.Get(c.Request.Context(), viewerOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	token, err := h.chat.UserToken(c.Request.Context(), viewer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatTokenResponse{Token: token})
}

func (h *httpHandler) handleChatUpsert(c *gin.Context) {
	viewer, err := h.users.Get(c.Request.Context(), viewerOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.chat.UpsertUser(c.Request.Context(), viewer); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
