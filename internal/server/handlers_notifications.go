package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/social"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const streamWriteTimeout = 10 * time.Second

type unreadCountResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

type streamFrame struct {
	Type         string                   `json:"type"`
	Notification *social.NotificationView `json:"notification,omitempty"`
	Timestamp    time.Time                `json:"timestamp"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	page, err := h.social.Notifications(c.Request.Context(), viewerOf(c), c.Query("cursor"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleUnreadNotifications(c *gin.Context) {
	count, err := h.social.UnreadNotificationCount(c.Request.Context(), viewerOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, unreadCountResponse{UnreadCount: count})
}

func (h *httpHandler) handleMarkNotificationsRead(c *gin.Context) {
	if _, err := h.social.MarkNotificationsRead(c.Request.Context(), viewerOf(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleTrends(c *gin.Context) {
	c.JSON(http.StatusOK, h.social.Trends(c.Request.Context()))
}

// handleNotificationStream pushes the viewer's new notifications over a websocket until either side closes.
func (h *httpHandler) handleNotificationStream(c *gin.Context) {
	viewerID := viewerOf(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("notification stream upgrade failed", zap.String("user_id", viewerID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stream, cleanup := h.realtime.Subscribe(ctx, viewerID)
	defer cleanup()

	// Control frames are only processed while reading.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			notification := message.Notification
			frame := streamFrame{Type: message.EventType, Notification: &notification, Timestamp: message.Timestamp}
			if err := writeFrame(conn, frame); err != nil {
				h.logger.Debug("notification stream closed", zap.String("user_id", viewerID), zap.Error(err))
				return
			}
		case tick := <-ticker.C:
			if err := writeFrame(conn, streamFrame{Type: realtimeEventHeartbeat, Timestamp: tick.UTC()}); err != nil {
				h.logger.Debug("notification stream closed", zap.String("user_id", viewerID), zap.Error(err))
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame streamFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
