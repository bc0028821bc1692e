package social

import (
	"github.com/MarcoPoloResearchLab/huddle/internal/pagination"
)

// NotificationType enumerates the events that notify a user.
type NotificationType string

const (
	NotificationLike    NotificationType = "LIKE"
	NotificationFollow  NotificationType = "FOLLOW"
	NotificationComment NotificationType = "COMMENT"
)

// Post is an authored status update.
type Post struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	AuthorID        string `gorm:"column:author_id;size:190;not null;index:idx_posts_author_order,priority:1"`
	Content         string `gorm:"column:content;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_posts_order,priority:1;index:idx_posts_author_order,priority:2"`
}

// TableName exposes the table backing posts.
func (Post) TableName() string {
	return "posts"
}

func (p Post) orderKey() pagination.OrderKey {
	return pagination.OrderKey{CreatedAtMillis: p.CreatedAtMillis, ID: p.ID}
}

// Comment is a reply attached to a post.
type Comment struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	PostID          string `gorm:"column:post_id;size:190;not null;index:idx_comments_post_order,priority:1"`
	AuthorID        string `gorm:"column:author_id;size:190;not null"`
	Content         string `gorm:"column:content;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_comments_post_order,priority:2"`
}

// TableName exposes the table backing comments.
func (Comment) TableName() string {
	return "comments"
}

func (c Comment) orderKey() pagination.OrderKey {
	return pagination.OrderKey{CreatedAtMillis: c.CreatedAtMillis, ID: c.ID}
}

// Like records that a user liked a post.
type Like struct {
	UserID          string `gorm:"column:user_id;primaryKey;size:190;not null"`
	PostID          string `gorm:"column:post_id;primaryKey;size:190;not null;index"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
}

// TableName exposes the table backing likes.
func (Like) TableName() string {
	return "likes"
}

// Bookmark records that a user saved a post. ID orders the bookmarks feed.
type Bookmark struct {
	ID              string `gorm:"column:id;size:190;not null;uniqueIndex"`
	UserID          string `gorm:"column:user_id;primaryKey;size:190;not null"`
	PostID          string `gorm:"column:post_id;primaryKey;size:190;not null;index"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index"`
}

// TableName exposes the table backing bookmarks.
func (Bookmark) TableName() string {
	return "bookmarks"
}

func (b Bookmark) orderKey() pagination.OrderKey {
	return pagination.OrderKey{CreatedAtMillis: b.CreatedAtMillis, ID: b.ID}
}

// Follow records that FollowerID follows FollowingID.
type Follow struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	FollowerID      string `gorm:"column:follower_id;size:190;not null;uniqueIndex:idx_follows_pair,priority:1"`
	FollowingID     string `gorm:"column:following_id;size:190;not null;uniqueIndex:idx_follows_pair,priority:2;index"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index"`
}

// TableName exposes the table backing follows.
func (Follow) TableName() string {
	return "follows"
}

func (f Follow) orderKey() pagination.OrderKey {
	return pagination.OrderKey{CreatedAtMillis: f.CreatedAtMillis, ID: f.ID}
}

// Notification tells RecipientID that IssuerID acted on them or their post.
type Notification struct {
	ID              string           `gorm:"column:id;primaryKey;size:190;not null"`
	RecipientID     string           `gorm:"column:recipient_id;size:190;not null;index:idx_notifications_recipient,priority:1"`
	IssuerID        string           `gorm:"column:issuer_id;size:190;not null"`
	PostID          *string          `gorm:"column:post_id;size:190;index"`
	Type            NotificationType `gorm:"column:type;size:16;not null"`
	Read            bool             `gorm:"column:read;not null;default:false"`
	CreatedAtMillis int64            `gorm:"column:created_at_ms;not null;index:idx_notifications_recipient,priority:2"`
}

// TableName exposes the table backing notifications.
func (Notification) TableName() string {
	return "notifications"
}

func (n Notification) orderKey() pagination.OrderKey {
	return pagination.OrderKey{CreatedAtMillis: n.CreatedAtMillis, ID: n.ID}
}

// Models lists every table owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{&Post{}, &Comment{}, &Like{}, &Bookmark{}, &Follow{}, &Notification{}}
}
