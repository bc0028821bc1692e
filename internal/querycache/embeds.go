package querycache

import "github.com/MarcoPoloResearchLab/huddle/internal/social"

// Entity kinds embedded in cached social items.
const (
	KindUser          = "user"
	KindUserFollowers = "user-followers"
	KindPostLikes     = "post-likes"
	KindPostBookmark  = "post-bookmark"
)

// Well known key prefixes.
const (
	KeyPostFeed      = "post-feed"
	KeyUserPosts     = "user-posts"
	KeyComments      = "comments"
	KeyNotifications = "notifications"
	KeyUser          = "user"
	KeyFollowerInfo  = "follower-info"
	KeyLikeInfo      = "like-info"
	KeyBookmarkInfo  = "bookmark-info"
)

func UserRef(userID string) EntityRef {
	return EntityRef{Kind: KindUser, ID: userID}
}

func FollowersRef(userID string) EntityRef {
	return EntityRef{Kind: KindUserFollowers, ID: userID}
}

func LikesRef(postID string) EntityRef {
	return EntityRef{Kind: KindPostLikes, ID: postID}
}

func BookmarkRef(postID string) EntityRef {
	return EntityRef{Kind: KindPostBookmark, ID: postID}
}

// Embeds tells an entry which entities an item carries and how to replace them.
type Embeds[T any] struct {
	Refs  func(item T) []EntityRef
	Patch func(item T, ref EntityRef, value any) (T, bool)
}

func (e Embeds[T]) refs(items []T) []EntityRef {
	if e.Refs == nil {
		return nil
	}
	refs := make([]EntityRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, e.Refs(item)...)
	}
	return refs
}

func (e Embeds[T]) apply(item T, ref EntityRef, value any) (T, bool) {
	if e.Patch == nil {
		return item, false
	}
	return e.Patch(item, ref, value)
}

// UserEmbeds patches profile and follower edits into cached users.
var UserEmbeds = Embeds[social.UserView]{
	Refs: func(user social.UserView) []EntityRef {
		return []EntityRef{UserRef(user.ID), FollowersRef(user.ID)}
	},
	Patch: patchUser,
}

// PostEmbeds patches author, like and bookmark edits into cached posts.
var PostEmbeds = Embeds[social.PostView]{
	Refs: func(post social.PostView) []EntityRef {
		return []EntityRef{
			UserRef(post.User.ID),
			FollowersRef(post.User.ID),
			LikesRef(post.ID),
			BookmarkRef(post.ID),
		}
	},
	Patch: func(post social.PostView, ref EntityRef, value any) (social.PostView, bool) {
		if user, ok := patchUser(post.User, ref, value); ok {
			post.User = user
			return post, true
		}
		if ref.ID != post.ID {
			return post, false
		}
		switch typed := value.(type) {
		case social.LikeInfo:
			if ref.Kind != KindPostLikes {
				return post, false
			}
			post.Likes = typed.Likes
			post.IsLikedByUser = typed.IsLikedByUser
			return post, true
		case social.BookmarkInfo:
			if ref.Kind != KindPostBookmark {
				return post, false
			}
			post.IsBookmarkedByUser = typed.IsBookmarkedByUser
			return post, true
		}
		return post, false
	},
}

// CommentEmbeds patches author edits into cached comments.
var CommentEmbeds = Embeds[social.CommentView]{
	Refs: func(comment social.CommentView) []EntityRef {
		return []EntityRef{UserRef(comment.User.ID), FollowersRef(comment.User.ID)}
	},
	Patch: func(comment social.CommentView, ref EntityRef, value any) (social.CommentView, bool) {
		user, ok := patchUser(comment.User, ref, value)
		if ok {
			comment.User = user
		}
		return comment, ok
	},
}

// NotificationEmbeds patches issuer profile edits into cached notifications.
var NotificationEmbeds = Embeds[social.NotificationView]{
	Refs: func(notification social.NotificationView) []EntityRef {
		return []EntityRef{UserRef(notification.Issuer.ID)}
	},
	Patch: func(notification social.NotificationView, ref EntityRef, value any) (social.NotificationView, bool) {
		user, ok := value.(social.UserView)
		if !ok || ref.Kind != KindUser || notification.Issuer.ID != ref.ID {
			return notification, false
		}
		notification.Issuer.Username = user.Username
		notification.Issuer.DisplayName = user.DisplayName
		notification.Issuer.AvatarURL = user.AvatarURL
		return notification, true
	},
}

func patchUser(user social.UserView, ref EntityRef, value any) (social.UserView, bool) {
	if user.ID != ref.ID {
		return user, false
	}
	switch typed := value.(type) {
	case social.UserView:
		if ref.Kind != KindUser {
			return user, false
		}
		return user.WithProfile(typed), true
	case social.FollowerInfo:
		if ref.Kind != KindUserFollowers {
			return user, false
		}
		user.Followers = typed.Followers
		user.IsFollowedByUser = typed.IsFollowedByUser
		return user, true
	}
	return user, false
}
