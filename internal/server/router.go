package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/chat"
	"github.com/MarcoPoloResearchLab/huddle/internal/social"
	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "huddle_user_id"

	defaultHeartbeatInterval = 25 * time.Second
	maxMultipartMemory       = 8 << 20
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingSocialService    = errors.New("social service dependency required")
	errMissingUploadsService   = errors.New("uploads service dependency required")
	errMissingChatService      = errors.New("chat service dependency required")
	errMissingRealtime         = errors.New("realtime dispatcher dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type Dependencies struct {
	Sessions          SessionValidator
	Users             *users.Service
	Social            *social.Service
	Uploads           *uploads.Service
	Chat              *chat.Service
	Realtime          *RealtimeDispatcher
	AllowedOrigins    []string
	UploadsDirectory  string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Social == nil {
		return nil, errMissingSocialService
	}
	if deps.Uploads == nil {
		return nil, errMissingUploadsService
	}
	if deps.Chat == nil {
		return nil, errMissingChatService
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	useJSONFieldNames()
	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:  deps.Sessions,
		users:     deps.Users,
		social:    deps.Social,
		uploads:   deps.Uploads,
		chat:      deps.Chat,
		realtime:  deps.Realtime,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(deps.AllowedOrigins),
		},
		logger: logger,
	}

	if directory := strings.TrimSpace(deps.UploadsDirectory); directory != "" {
		router.Static("/uploads", directory)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/posts/for-you", handler.handleForYouFeed)
	protected.GET("/posts/following", handler.handleFollowingFeed)
	protected.GET("/posts/bookmarked", handler.handleBookmarkedFeed)
	protected.GET("/posts/search", handler.handleSearchPosts)
	protected.POST("/posts", handler.handleCreatePost)
	protected.GET("/posts/:postId", handler.handleGetPost)
	protected.DELETE("/posts/:postId", handler.handleDeletePost)
	protected.GET("/posts/:postId/likes", handler.handleLikeInfo)
	protected.POST("/posts/:postId/likes", handler.handleLikePost)
	protected.DELETE("/posts/:postId/likes", handler.handleUnlikePost)
	protected.GET("/posts/:postId/bookmark", handler.handleBookmarkInfo)
	protected.POST("/posts/:postId/bookmark", handler.handleBookmarkPost)
	protected.DELETE("/posts/:postId/bookmark", handler.handleUnbookmarkPost)
	protected.GET("/posts/:postId/comments", handler.handleListComments)
	protected.POST("/posts/:postId/comments", handler.handleCreateComment)
	protected.DELETE("/comments/:commentId", handler.handleDeleteComment)

	protected.GET("/users/suggestions", handler.handleSuggestions)
	protected.PATCH("/users/me", handler.handleUpdateProfile)
	protected.GET("/users/username/:username", handler.handleUserByUsername)
	protected.GET("/users/:userId", handler.handleUserProfile)
	protected.GET("/users/:userId/posts", handler.handleUserPosts)
	protected.GET("/users/:userId/followers", handler.handleListFollowers)
	protected.GET("/users/:userId/followers/info", handler.handleFollowerInfo)
	protected.POST("/users/:userId/followers", handler.handleFollowUser)
	protected.DELETE("/users/:userId/followers", handler.handleUnfollowUser)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.GET("/notifications/unread-count", handler.handleUnreadNotifications)
	protected.PATCH("/notifications/mark-as-read", handler.handleMarkNotificationsRead)
	protected.GET("/notifications/stream", handler.handleNotificationStream)
	protected.GET("/trends", handler.handleTrends)

	protected.POST("/uploads/avatar", handler.handleUploadAvatar)
	protected.POST("/uploads/attachments", handler.handleUploadAttachment)

	protected.GET("/messages/unread-count", handler.handleUnreadMessages)
	protected.GET("/chat/token", handler.handleChatToken)
	protected.POST("/chat/users", handler.handleChatUpsert)

	return router, nil
}

type httpHandler struct {
	sessions  SessionValidator
	users     *users.Service
	social    *social.Service
	uploads   *uploads.Service
	chat      *chat.Service
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

// originChecker admits websocket upgrades from the configured origins and from non-browser clients.
func originChecker(allowedOrigins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	viewerID, err := h.users.ResolveViewer(c.Request.Context(), claims)
	if err != nil {
		h.respondError(c, err)
		c.Abort()
		return
	}
	c.Set(userIDContextKey, viewerID)
	c.Next()
}

func viewerOf(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}
