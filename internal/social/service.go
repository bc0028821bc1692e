// Package social implements posts, comments, likes, bookmarks, follows, notifications and discovery.
//
// Every list is read as keyset pages through the pagination package. Writes
// that notify another user insert the notification in the same transaction as
// the row that caused it, and publish it once the transaction commits.
package social

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/ids"
	"github.com/MarcoPoloResearchLab/huddle/internal/pagination"
	"github.com/MarcoPoloResearchLab/huddle/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound       = errors.New("social: post not found")
	ErrCommentNotFound    = errors.New("social: comment not found")
	ErrUserNotFound       = errors.New("social: user not found")
	ErrSelfAction         = errors.New("social: action not allowed on yourself")
	ErrNotAuthor          = errors.New("social: only the author may do this")
	ErrInvalidContent     = errors.New("social: invalid content")
	ErrTooManyAttachments = errors.New("social: too many attachments")
	ErrInvalidAttachment  = errors.New("social: invalid attachment")

	errMissingDatabase = errors.New("social: database connection required")
	noOpLogger         = zap.NewNop()
)

const (
	opForYouFeed     = "social.for_you_feed"
	opFollowingFeed  = "social.following_feed"
	opBookmarkedFeed = "social.bookmarked_feed"
	opUserPosts      = "social.user_posts"
	opSearchPosts    = "social.search_posts"
	opListComments   = "social.list_comments"
	opListNotify     = "social.list_notifications"
	opListFollowers  = "social.list_followers"
	opGetPost        = "social.get_post"
	opGetUser        = "social.get_user"
	opLikeInfo       = "social.like_info"
	opBookmarkInfo   = "social.bookmark_info"
	opFollowerInfo   = "social.follower_info"
	opUnreadCount    = "social.unread_count"
	opSuggestions    = "social.suggestions"
	opTrends         = "social.trends"
	opCreatePost     = "social.create_post"
	opDeletePost     = "social.delete_post"
	opLikePost       = "social.like_post"
	opUnlikePost     = "social.unlike_post"
	opBookmarkPost   = "social.bookmark_post"
	opUnbookmarkPost = "social.unbookmark_post"
	opCreateComment  = "social.create_comment"
	opDeleteComment  = "social.delete_comment"
	opFollowUser     = "social.follow_user"
	opUnfollowUser   = "social.unfollow_user"
	opMarkNotifyRead = "social.mark_notifications_read"
	opPublishNotify  = "social.publish_notification"
)

// NotificationPublisher receives notifications after they are committed.
type NotificationPublisher interface {
	PublishNotification(recipientID string, notification NotificationView)
}

// ServiceConfig describes the dependencies of the social service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Publisher  NotificationPublisher
	Logger     *zap.Logger
}

// Service serves the social graph and its feeds.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	publisher  NotificationPublisher
	logger     *zap.Logger
}

// NewService constructs the social service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: idProvider,
		publisher:  cfg.Publisher,
		logger:     logger,
	}, nil
}

func (s *Service) nowMillis() int64 {
	return s.clock().UTC().UnixMilli()
}

func (s *Service) pageRequest(operation, cursor string, pageSize int, direction pagination.Direction) (pagination.Request, error) {
	request, err := pagination.NewRequest(cursor, pageSize, direction)
	if err != nil {
		return pagination.Request{}, serviceerror.New(operation, "invalid_cursor", serviceerror.KindValidation, err)
	}
	return request, nil
}

func (s *Service) dependencyError(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return serviceerror.New(operation, reason, serviceerror.KindDependency, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("social service error", attrs...)
}

func notFound(operation, reason string, sentinel error) error {
	return serviceerror.New(operation, reason, serviceerror.KindNotFound, sentinel)
}

func invalid(operation, reason string, cause error) error {
	return serviceerror.New(operation, reason, serviceerror.KindValidation, cause)
}

func forbidden(operation, reason string, cause error) error {
	return serviceerror.New(operation, reason, serviceerror.KindForbidden, cause)
}

// passThrough keeps classified errors raised inside a transaction and classifies anything else as a dependency failure.
func (s *Service) passThrough(operation, reason string, err error, fields ...zap.Field) error {
	var serviceErr *serviceerror.Error
	if errors.As(err, &serviceErr) {
		return err
	}
	return s.dependencyError(operation, reason, err, fields...)
}
