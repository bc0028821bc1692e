package social

import (
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
)

// UserView is a user as seen by the viewer.
type UserView struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	DisplayName      string    `json:"displayName"`
	Bio              string    `json:"bio"`
	AvatarURL        string    `json:"avatarUrl"`
	CreatedAt        time.Time `json:"createdAt"`
	Followers        int64     `json:"followers"`
	Posts            int64     `json:"posts"`
	IsFollowedByUser bool      `json:"isFollowedByUser"`
}

// WithProfile returns v carrying the editable fields of user.
func (v UserView) WithProfile(user UserView) UserView {
	v.Username = user.Username
	v.DisplayName = user.DisplayName
	v.Bio = user.Bio
	v.AvatarURL = user.AvatarURL
	return v
}

// AttachmentView is a media file attached to a post.
type AttachmentView struct {
	ID   string            `json:"id"`
	URL  string            `json:"url"`
	Type uploads.MediaType `json:"type"`
}

// PostView is a post with everything needed to render it.
type PostView struct {
	ID                 string           `json:"id"`
	Content            string           `json:"content"`
	CreatedAt          time.Time        `json:"createdAt"`
	User               UserView         `json:"user"`
	Attachments        []AttachmentView `json:"attachments"`
	Likes              int64            `json:"likes"`
	Comments           int64            `json:"comments"`
	IsLikedByUser      bool             `json:"isLikedByUser"`
	IsBookmarkedByUser bool             `json:"isBookmarkedByUser"`
}

// CommentView is a comment with its author.
type CommentView struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	User      UserView  `json:"user"`
}

// IssuerView summarizes the user behind a notification.
type IssuerView struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// PostExcerpt is the post a notification refers to.
type PostExcerpt struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// NotificationView is a notification with its issuer and post excerpt.
type NotificationView struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
	Issuer    IssuerView       `json:"issuer"`
	Post      *PostExcerpt     `json:"post"`
}

// LikeInfo is the like aggregate of one post.
type LikeInfo struct {
	Likes         int64 `json:"likes"`
	IsLikedByUser bool  `json:"isLikedByUser"`
}

// Flag reports whether the viewer likes the post.
func (l LikeInfo) Flag() bool {
	return l.IsLikedByUser
}

// WithFlag returns the aggregate after the viewer's like becomes liked, moving the count with the flag.
func (l LikeInfo) WithFlag(liked bool) LikeInfo {
	l.Likes += flagDelta(l.IsLikedByUser, liked)
	l.IsLikedByUser = liked
	return l
}

// BookmarkInfo is the viewer's bookmark state for one post.
type BookmarkInfo struct {
	IsBookmarkedByUser bool `json:"isBookmarkedByUser"`
}

// Flag reports whether the viewer bookmarked the post.
func (b BookmarkInfo) Flag() bool {
	return b.IsBookmarkedByUser
}

// WithFlag returns the bookmark state set to bookmarked.
func (b BookmarkInfo) WithFlag(bookmarked bool) BookmarkInfo {
	b.IsBookmarkedByUser = bookmarked
	return b
}

// FollowerInfo is the follower aggregate of one user.
type FollowerInfo struct {
	Followers        int64 `json:"followers"`
	IsFollowedByUser bool  `json:"isFollowedByUser"`
}

// Flag reports whether the viewer follows the user.
func (f FollowerInfo) Flag() bool {
	return f.IsFollowedByUser
}

// WithFlag returns the aggregate after the viewer's follow becomes followed, moving the count with the flag.
func (f FollowerInfo) WithFlag(followed bool) FollowerInfo {
	f.Followers += flagDelta(f.IsFollowedByUser, followed)
	f.IsFollowedByUser = followed
	return f
}

// Trend is one hashtag and the number of recent posts carrying it.
type Trend struct {
	Hashtag string `json:"hashtag"`
	Count   int    `json:"count"`
}

func flagDelta(from, to bool) int64 {
	switch {
	case from == to:
		return 0
	case to:
		return 1
	default:
		return -1
	}
}

func issuerViewOf(user users.User) IssuerView {
	return IssuerView{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	}
}

func millisToTime(millis int64) time.Time {
	return time.UnixMilli(millis).UTC()
}
