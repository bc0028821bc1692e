package social

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/huddle/internal/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ForYouFeed returns every post, newest first.
func (s *Service) ForYouFeed(ctx context.Context, viewerID, cursor string) (pagination.Page[PostView], error) {
	request, err := s.pageRequest(opForYouFeed, cursor, pagination.FeedPageSize, pagination.Descending)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	return s.postPage(ctx, opForYouFeed, viewerID, s.db.Model(&Post{}), request)
}

// FollowingFeed returns posts by the users the viewer follows and by the viewer.
func (s *Service) FollowingFeed(ctx context.Context, viewerID, cursor string) (pagination.Page[PostView], error) {
	request, err := s.pageRequest(opFollowingFeed, cursor, pagination.FeedPageSize, pagination.Descending)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	followed := s.db.Model(&Follow{}).Select("following_id").Where("follower_id = ?", viewerID)
	query := s.db.Model(&Post{}).Where("(author_id IN (?) OR author_id = ?)", followed, viewerID)
	return s.postPage(ctx, opFollowingFeed, viewerID, query, request)
}

// UserPosts returns the posts of one author.
func (s *Service) UserPosts(ctx context.Context, viewerID, authorID, cursor string) (pagination.Page[PostView], error) {
	request, err := s.pageRequest(opUserPosts, cursor, pagination.FeedPageSize, pagination.Descending)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	return s.postPage(ctx, opUserPosts, viewerID, s.db.Model(&Post{}).Where("author_id = ?", authorID), request)
}

// BookmarkedFeed returns the viewer's bookmarked posts, most recently bookmarked first.
func (s *Service) BookmarkedFeed(ctx context.Context, viewerID, cursor string) (pagination.Page[PostView], error) {
	request, err := s.pageRequest(opBookmarkedFeed, cursor, pagination.FeedPageSize, pagination.Descending)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	bookmarks, err := pagination.Fetch(ctx, s.db.Model(&Bookmark{}).Where("user_id = ?", viewerID), request, Bookmark.orderKey)
	if err != nil {
		return pagination.Page[PostView]{}, s.dependencyError(opBookmarkedFeed, "query_failed", err, zap.String("viewer_id", viewerID))
	}

	postIDs := make([]string, 0, len(bookmarks.Items))
	for _, bookmark := range bookmarks.Items {
		postIDs = append(postIDs, bookmark.PostID)
	}
	var rows []Post
	if len(postIDs) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", postIDs).Find(&rows).Error; err != nil {
			return pagination.Page[PostView]{}, s.dependencyError(opBookmarkedFeed, "query_failed", err, zap.String("viewer_id", viewerID))
		}
	}
	byID := make(map[string]Post, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]Post, 0, len(postIDs))
	for _, postID := range postIDs {
		if post, ok := byID[postID]; ok {
			ordered = append(ordered, post)
		}
	}
	views, err := s.hydratePosts(ctx, viewerID, ordered)
	if err != nil {
		return pagination.Page[PostView]{}, s.dependencyError(opBookmarkedFeed, "hydrate_failed", err)
	}
	return pagination.Page[PostView]{Items: views, NextCursor: bookmarks.NextCursor}, nil
}

// SearchPosts matches the query, and each whitespace separated term, against post content and author names.
// A blank query yields an empty page.
func (s *Service) SearchPosts(ctx context.Context, viewerID, query, cursor string) (pagination.Page[PostView], error) {
	request, err := s.pageRequest(opSearchPosts, cursor, pagination.FeedPageSize, pagination.Descending)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	terms := searchTerms(query)
	if len(terms) == 0 {
		return pagination.Empty[PostView](), nil
	}

	const matchTerm = "(LOWER(posts.content) LIKE ? ESCAPE '\\' OR LOWER(users.display_name) LIKE ? ESCAPE '\\' OR LOWER(users.username) LIKE ? ESCAPE '\\')"
	conditions := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)*3)
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		conditions = append(conditions, matchTerm)
		args = append(args, pattern, pattern, pattern)
	}
	scoped := s.db.Model(&Post{}).
		Select("posts.*").
		Joins("JOIN users ON users.id = posts.author_id").
		Where("("+strings.Join(conditions, " OR ")+")", args...)
	return s.postPage(ctx, opSearchPosts, viewerID, scoped, request.WithColumns(pagination.Qualified("posts")))
}

// Comments returns a post's comments in ascending pages: each page is the newest window before the cursor, oldest first.
func (s *Service) Comments(ctx context.Context, viewerID, postID, cursor string) (pagination.Page[CommentView], error) {
	request, err := s.pageRequest(opListComments, cursor, pagination.CommentPageSize, pagination.Ascending)
	if err != nil {
		return pagination.Page[CommentView]{}, err
	}
	page, err := pagination.Fetch(ctx, s.db.Model(&Comment{}).Where("post_id = ?", postID), request, Comment.orderKey)
	if err != nil {
		return pagination.Page[CommentView]{}, s.dependencyError(opListComments, "query_failed", err, zap.String("post_id", postID))
	}
	views, err := s.hydrateComments(ctx, viewerID, page.Items)
	if err != nil {
		return pagination.Page[CommentView]{}, s.dependencyError(opListComments, "hydrate_failed", err)
	}
	return pagination.Page[CommentView]{Items: views, NextCursor: page.NextCursor}, nil
}

// Notifications returns the viewer's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, viewerID, cursor string) (pagination.Page[NotificationView], error) {
	request, err := s.pageRequest(opListNotify, cursor, pagination.FeedPageSize, pagination.Descending)
	if err != nil {
		return pagination.Page[NotificationView]{}, err
	}
	page, err := pagination.Fetch(ctx, s.db.Model(&Notification{}).Where("recipient_id = ?", viewerID), request, Notification.orderKey)
	if err != nil {
		return pagination.Page[NotificationView]{}, s.dependencyError(opListNotify, "query_failed", err, zap.String("viewer_id", viewerID))
	}
	views, err := s.hydrateNotifications(ctx, page.Items)
	if err != nil {
		return pagination.Page[NotificationView]{}, s.dependencyError(opListNotify, "hydrate_failed", err)
	}
	return pagination.Page[NotificationView]{Items: views, NextCursor: page.NextCursor}, nil
}

// Followers returns the users following userID, most recent follow first.
func (s *Service) Followers(ctx context.Context, viewerID, userID, cursor string) (pagination.Page[UserView], error) {
	request, err := s.pageRequest(opListFollowers, cursor, pagination.FeedPageSize, pagination.Descending)
	if err != nil {
		return pagination.Page[UserView]{}, err
	}
	page, err := pagination.Fetch(ctx, s.db.Model(&Follow{}).Where("following_id = ?", userID), request, Follow.orderKey)
	if err != nil {
		return pagination.Page[UserView]{}, s.dependencyError(opListFollowers, "query_failed", err, zap.String("user_id", userID))
	}
	followerIDs := make([]string, 0, len(page.Items))
	for _, follow := range page.Items {
		followerIDs = append(followerIDs, follow.FollowerID)
	}
	views, err := s.hydrateUsers(ctx, viewerID, followerIDs)
	if err != nil {
		return pagination.Page[UserView]{}, s.dependencyError(opListFollowers, "hydrate_failed", err)
	}
	items := make([]UserView, 0, len(followerIDs))
	for _, followerID := range followerIDs {
		if view, ok := views[followerID]; ok {
			items = append(items, view)
		}
	}
	return pagination.Page[UserView]{Items: items, NextCursor: page.NextCursor}, nil
}

func (s *Service) postPage(ctx context.Context, operation, viewerID string, query *gorm.DB, request pagination.Request) (pagination.Page[PostView], error) {
	page, err := pagination.Fetch(ctx, query, request, Post.orderKey)
	if err != nil {
		return pagination.Page[PostView]{}, s.dependencyError(operation, "query_failed", err, zap.String("viewer_id", viewerID))
	}
	views, err := s.hydratePosts(ctx, viewerID, page.Items)
	if err != nil {
		return pagination.Page[PostView]{}, s.dependencyError(operation, "hydrate_failed", err, zap.String("viewer_id", viewerID))
	}
	return pagination.Page[PostView]{Items: views, NextCursor: page.NextCursor}, nil
}

// searchTerms returns the whole query followed by its distinct words, lower cased.
func searchTerms(query string) []string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil
	}
	terms := []string{normalized}
	for _, word := range strings.Fields(normalized) {
		if word != normalized {
			terms = append(terms, word)
		}
	}
	return uniqueStrings(terms)
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
