package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const uploadFormField = "file"

var errMissingUploadFile = errors.New("multipart field \"file\" is required")

type avatarResponse struct {
	AvatarURL string `json:"avatarUrl"`
}

type attachmentResponse struct {
	MediaID string            `json:"mediaId"`
	URL     string            `json:"url"`
	Type    uploads.MediaType `json:"type"`
}

func (h *httpHandler) handleUploadAvatar(c *gin.Context) {
	file, closeFile, ok := h.formFile(c)
	if !ok {
		return
	}
	defer closeFile()

	avatarURL, err := h.uploads.UploadAvatar(c.Request.Context(), viewerOf(c), file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, avatarResponse{AvatarURL: avatarURL})
}

func (h *httpHandler) handleUploadAttachment(c *gin.Context) {
	file, closeFile, ok := h.formFile(c)
	if !ok {
		return
	}
	defer closeFile()

	media, err := h.uploads.UploadAttachment(c.Request.Context(), viewerOf(c), file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachmentResponse{MediaID: media.ID, URL: media.URL, Type: media.Type})
}

func (h *httpHandler) formFile(c *gin.Context) (uploads.File, func(), bool) {
	header, err := c.FormFile(uploadFormField)
	if err != nil {
		h.respondInvalidRequest(c, errMissingUploadFile)
		return uploads.File{}, nil, false
	}
	body, err := header.Open()
	if err != nil {
		h.logger.Warn("failed to open uploaded file", zap.String("name", header.Filename), zap.Error(err))
		h.respondInvalidRequest(c, err)
		return uploads.File{}, nil, false
	}
	file := uploads.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        body,
	}
	return file, func() { _ = body.Close() }, true
}
