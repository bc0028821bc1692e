package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/huddle/internal/social"
	"github.com/gin-gonic/gin"
)

type createPostRequest struct {
	Content  string   `json:"content" binding:"max=2000"`
	MediaIDs []string `json:"mediaIds" binding:"max=5,dive,required"`
}

type createCommentRequest struct {
	Content string `json:"content" binding:"max=1000"`
}

func (h *httpHandler) handleForYouFeed(c *gin.Context) {
	page, err := h.social.ForYouFeed(c.Request.Context(), viewerOf(c), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleFollowingFeed(c *gin.Context) {
	page, err := h.social.FollowingFeed(c.Request.Context(), viewerOf(c), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleBookmarkedFeed(c *gin.Context) {
	page, err := h.social.BookmarkedFeed(c.Request.Context(), viewerOf(c), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleSearchPosts(c *gin.Context) {
	page, err := h.social.SearchPosts(c.Request.Context(), viewerOf(c), c.Query("q"), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request createPostRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	post, err := h.social.CreatePost(c.Request.Context(), viewerOf(c), social.CreatePostInput{
		Content:  request.Content,
		MediaIDs: request.MediaIDs,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	post, err := h.social.GetPost(c.Request.Context(), viewerOf(c), c.Param("postId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	if err := h.social.DeletePost(c.Request.Context(), viewerOf(c), c.Param("postId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleLikeInfo(c *gin.Context) {
	info, err := h.social.LikeInfo(c.Request.Context(), viewerOf(c), c.Param("postId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleLikePost(c *gin.Context) {
	info, err := h.social.LikePost(c.Request.Context(), viewerOf(c), c.Param("postId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleUnlikePost(c *gin.Context) {
	info, err := h.social.UnlikePost(c.Request.Context(), viewerOf(c), c.Param("postId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleBookmarkInfo(c *gin.Context) {
	info, err := h.social.BookmarkInfo(c.Request.Context(), viewerOf(c), c.Param("postId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleBookmarkPost(c *gin.Context) {
	info, err := h.social.BookmarkPost(c.Request.Context(), viewerOf(c), c.Param("postId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleUnbookmarkPost(c *gin.Context) {
	info, err := h.social.UnbookmarkPost(c.Request.Context(), viewerOf(c), c.Param("postId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	page, err := h.social.Comments(c.Request.Context(), viewerOf(c), c.Param("postId"), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	var request createCommentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	comment, err := h.social.CreateComment(c.Request.Context(), viewerOf(c), c.Param("postId"), request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	comment, err := h.social.DeleteComment(c.Request.Context(), viewerOf(c), c.Param("commentId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}
