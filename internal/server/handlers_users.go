package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"github.com/gin-gonic/gin"
)

type updateProfileRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	Bio         string `json:"bio" binding:"max=1000"`
}

func (h *httpHandler) handleUserProfile(c *gin.Context) {
	profile, err := h.social.UserProfile(c.Request.Context(), viewerOf(c), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleUserByUsername(c *gin.Context) {
	profile, err := h.social.UserProfileByUsername(c.Request.Context(), viewerOf(c), c.Param("username"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleUserPosts(c *gin.Context) {
	page, err := h.social.UserPosts(c.Request.Context(), viewerOf(c), c.Param("userId"), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleListFollowers(c *gin.Context) {
	page, err := h.social.Followers(c.Request.Context(), viewerOf(c), c.Param("userId"), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleFollowerInfo(c *gin.Context) {
	info, err := h.social.FollowerInfo(c.Request.Context(), viewerOf(c), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleFollowUser(c *gin.Context) {
	info, err := h.social.FollowUser(c.Request.Context(), viewerOf(c), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleUnfollowUser(c *gin.Context) {
	info, err := h.social.UnfollowUser(c.Request.Context(), viewerOf(c), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleSuggestions(c *gin.Context) {
	suggestions, err := h.social.Suggestions(c.Request.Context(), viewerOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

// handleUpdateProfile stores the profile first; the chat display name follows on a best effort basis.
func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request updateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	viewerID := viewerOf(c)
	updated, err := h.users.UpdateProfile(c.Request.Context(), viewerID, users.ProfileUpdate{
		DisplayName: request.DisplayName,
		Bio:         request.Bio,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.chat.RenameUser(c.Request.Context(), updated.ID, updated.DisplayName)

	profile, err := h.social.UserProfile(c.Request.Context(), viewerID, viewerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
