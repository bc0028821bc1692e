package querycache

import (
	"context"

	"github.com/MarcoPoloResearchLab/huddle/internal/apiclient"
	"github.com/MarcoPoloResearchLab/huddle/internal/pagination"
	"github.com/MarcoPoloResearchLab/huddle/internal/social"
)

func postID(post social.PostView) string { return post.ID }

func postOptions() InfiniteOptions[social.PostView] {
	return InfiniteOptions[social.PostView]{Embeds: PostEmbeds, Identity: postID}
}

// ForYouFeed binds the for-you feed of client.
func ForYouFeed(manager *Manager, client *apiclient.Client) *InfiniteQuery[social.PostView] {
	return Infinite(manager, Key{KeyPostFeed, "for-you"}, client.ForYouFeed, postOptions())
}

// FollowingFeed binds the following feed of client.
func FollowingFeed(manager *Manager, client *apiclient.Client) *InfiniteQuery[social.PostView] {
	return Infinite(manager, Key{KeyPostFeed, "following"}, client.FollowingFeed, postOptions())
}

// BookmarkedFeed binds the viewer's bookmarks.
func BookmarkedFeed(manager *Manager, client *apiclient.Client) *InfiniteQuery[social.PostView] {
	return Infinite(manager, Key{KeyPostFeed, "bookmarks"}, client.BookmarkedFeed, postOptions())
}

// UserPosts binds the posts authored by userID.
func UserPosts(manager *Manager, client *apiclient.Client, userID string) *InfiniteQuery[social.PostView] {
	fetch := func(ctx context.Context, cursor string) (pagination.Page[social.PostView], error) {
		return client.UserPosts(ctx, userID, cursor)
	}
	return Infinite(manager, Key{KeyUserPosts, userID}, fetch, postOptions())
}

// Comments binds the comments of postID.
func Comments(manager *Manager, client *apiclient.Client, postID string) *InfiniteQuery[social.CommentView] {
	fetch := func(ctx context.Context, cursor string) (pagination.Page[social.CommentView], error) {
		return client.Comments(ctx, postID, cursor)
	}
	return Infinite(manager, Key{KeyComments, postID}, fetch, commentOptions())
}

func commentOptions() InfiniteOptions[social.CommentView] {
	return InfiniteOptions[social.CommentView]{
		Embeds:   CommentEmbeds,
		Identity: func(comment social.CommentView) string { return comment.ID },
		Prepend:  true,
	}
}

// Notifications binds the viewer's notifications.
func Notifications(manager *Manager, client *apiclient.Client) *InfiniteQuery[social.NotificationView] {
	return Infinite(manager, Key{KeyNotifications}, client.Notifications, InfiniteOptions[social.NotificationView]{
		Embeds:   NotificationEmbeds,
		Identity: func(notification social.NotificationView) string { return notification.ID },
	})
}

// LikeToggle binds the viewer's like of post, seeded from the post itself. Authors cannot like
// their own posts so the toggle refuses them before any call.
func LikeToggle(manager *Manager, client *apiclient.Client, viewerID string, post social.PostView) *Toggle[social.LikeInfo] {
	value := ValueFor(manager, Key{KeyLikeInfo, post.ID}, ValueOptions[social.LikeInfo]{})
	if _, present := value.Get(); !present {
		value.Set(social.LikeInfo{Likes: post.Likes, IsLikedByUser: post.IsLikedByUser})
	}
	ref := LikesRef(post.ID)
	return NewToggle(value, ToggleConfig[social.LikeInfo]{
		Guard: SelfGuard(viewerID, post.User.ID),
		Ref:   &ref,
		Commit: func(ctx context.Context, target bool) (social.LikeInfo, error) {
			if target {
				return client.LikePost(ctx, post.ID)
			}
			return client.UnlikePost(ctx, post.ID)
		},
	})
}

// BookmarkToggle binds the viewer's bookmark of post.
func BookmarkToggle(manager *Manager, client *apiclient.Client, post social.PostView) *Toggle[social.BookmarkInfo] {
	value := ValueFor(manager, Key{KeyBookmarkInfo, post.ID}, ValueOptions[social.BookmarkInfo]{})
	if _, present := value.Get(); !present {
		value.Set(social.BookmarkInfo{IsBookmarkedByUser: post.IsBookmarkedByUser})
	}
	ref := BookmarkRef(post.ID)
	return NewToggle(value, ToggleConfig[social.BookmarkInfo]{
		Ref: &ref,
		Commit: func(ctx context.Context, target bool) (social.BookmarkInfo, error) {
			if target {
				return client.BookmarkPost(ctx, post.ID)
			}
			return client.UnbookmarkPost(ctx, post.ID)
		},
	})
}

// FollowToggle binds the viewer's follow of user.
func FollowToggle(manager *Manager, client *apiclient.Client, viewerID string, user social.UserView) *Toggle[social.FollowerInfo] {
	value := ValueFor(manager, Key{KeyFollowerInfo, user.ID}, ValueOptions[social.FollowerInfo]{})
	if _, present := value.Get(); !present {
		value.Set(social.FollowerInfo{Followers: user.Followers, IsFollowedByUser: user.IsFollowedByUser})
	}
	ref := FollowersRef(user.ID)
	return NewToggle(value, ToggleConfig[social.FollowerInfo]{
		Guard: SelfGuard(viewerID, user.ID),
		Ref:   &ref,
		Commit: func(ctx context.Context, target bool) (social.FollowerInfo, error) {
			if target {
				return client.FollowUser(ctx, user.ID)
			}
			return client.UnfollowUser(ctx, user.ID)
		},
	})
}

// SubmitComment creates a comment and appends it to the cached thread of its post. A thread that
// has not loaded yet is marked stale instead.
func SubmitComment(ctx context.Context, manager *Manager, client *apiclient.Client, postID, content string) (social.CommentView, error) {
	comment, err := client.CreateComment(ctx, postID, content)
	if err != nil {
		return social.CommentView{}, err
	}
	if thread, ok := cached[*InfiniteQuery[social.CommentView]](manager, Key{KeyComments, comment.PostID}); ok {
		thread.Insert(comment)
	}
	return comment, nil
}

// RemoveComment deletes a comment and drops it from every page of its cached thread.
func RemoveComment(ctx context.Context, manager *Manager, client *apiclient.Client, commentID string) (social.CommentView, error) {
	comment, err := client.DeleteComment(ctx, commentID)
	if err != nil {
		return social.CommentView{}, err
	}
	if thread, ok := cached[*InfiniteQuery[social.CommentView]](manager, Key{KeyComments, comment.PostID}); ok {
		thread.Remove(comment.ID)
	}
	return comment, nil
}

// SubmitPost creates a post and places it first in the cached for-you feed and in the author's
// cached posts.
func SubmitPost(ctx context.Context, manager *Manager, client *apiclient.Client, content string, mediaIDs []string) (social.PostView, error) {
	post, err := client.CreatePost(ctx, content, mediaIDs)
	if err != nil {
		return social.PostView{}, err
	}
	for _, key := range []Key{{KeyPostFeed, "for-you"}, {KeyUserPosts, post.User.ID}} {
		if list, ok := cached[*InfiniteQuery[social.PostView]](manager, key); ok {
			list.Insert(post)
		}
	}
	return post, nil
}

// RemovePost deletes a post, drops it from every cached post list and invalidates its thread.
func RemovePost(ctx context.Context, manager *Manager, client *apiclient.Client, postID string) error {
	if err := client.DeletePost(ctx, postID); err != nil {
		return err
	}
	for _, prefix := range []Key{{KeyPostFeed}, {KeyUserPosts}} {
		for _, list := range cachedUnder[*InfiniteQuery[social.PostView]](manager, prefix) {
			list.Remove(postID)
		}
	}
	manager.InvalidatePrefix(Key{KeyComments, postID})
	return nil
}
