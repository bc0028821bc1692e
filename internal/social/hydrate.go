package social

import (
	"context"

	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"gorm.io/gorm"
)

type countRow struct {
	RefID string `gorm:"column:ref_id"`
	Total int64  `gorm:"column:total"`
}

// countBy counts rows of model grouped by column for the given ids.
func countBy(ctx context.Context, db *gorm.DB, model interface{}, column string, refIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(refIDs))
	if len(refIDs) == 0 {
		return counts, nil
	}
	var rows []countRow
	err := db.WithContext(ctx).Model(model).
		Select(column+" AS ref_id, COUNT(*) AS total").
		Where(column+" IN ?", refIDs).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.RefID] = row.Total
	}
	return counts, nil
}

// viewerSet returns which of refIDs the viewer has a row for in model.
func viewerSet(ctx context.Context, db *gorm.DB, model interface{}, viewerColumn, refColumn, viewerID string, refIDs []string) (map[string]bool, error) {
	set := make(map[string]bool, len(refIDs))
	if viewerID == "" || len(refIDs) == 0 {
		return set, nil
	}
	var matched []string
	err := db.WithContext(ctx).Model(model).
		Where(viewerColumn+" = ? AND "+refColumn+" IN ?", viewerID, refIDs).
		Pluck(refColumn, &matched).Error
	if err != nil {
		return nil, err
	}
	for _, id := range matched {
		set[id] = true
	}
	return set, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func (s *Service) loadUsers(ctx context.Context, userIDs []string) (map[string]users.User, error) {
	result := make(map[string]users.User, len(userIDs))
	userIDs = uniqueStrings(userIDs)
	if len(userIDs) == 0 {
		return result, nil
	}
	var rows []users.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

// hydrateUsers builds viewer-relative views for the given users keyed by id.
func (s *Service) hydrateUsers(ctx context.Context, viewerID string, userIDs []string) (map[string]UserView, error) {
	userIDs = uniqueStrings(userIDs)
	rows, err := s.loadUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	followers, err := countBy(ctx, s.db, &Follow{}, "following_id", userIDs)
	if err != nil {
		return nil, err
	}
	posts, err := countBy(ctx, s.db, &Post{}, "author_id", userIDs)
	if err != nil {
		return nil, err
	}
	followed, err := viewerSet(ctx, s.db, &Follow{}, "follower_id", "following_id", viewerID, userIDs)
	if err != nil {
		return nil, err
	}

	views := make(map[string]UserView, len(rows))
	for id, row := range rows {
		views[id] = UserView{
			ID:               row.ID,
			Username:         row.Username,
			DisplayName:      row.DisplayName,
			Bio:              row.Bio,
			AvatarURL:        row.AvatarURL,
			CreatedAt:        row.CreatedAt(),
			Followers:        followers[id],
			Posts:            posts[id],
			IsFollowedByUser: followed[id],
		}
	}
	return views, nil
}

// hydratePosts builds views for posts, keeping their order.
func (s *Service) hydratePosts(ctx context.Context, viewerID string, posts []Post) ([]PostView, error) {
	views := make([]PostView, 0, len(posts))
	if len(posts) == 0 {
		return views, nil
	}
	postIDs := make([]string, 0, len(posts))
	authorIDs := make([]string, 0, len(posts))
	for _, post := range posts {
		postIDs = append(postIDs, post.ID)
		authorIDs = append(authorIDs, post.AuthorID)
	}

	authors, err := s.hydrateUsers(ctx, viewerID, authorIDs)
	if err != nil {
		return nil, err
	}
	likes, err := countBy(ctx, s.db, &Like{}, "post_id", postIDs)
	if err != nil {
		return nil, err
	}
	comments, err := countBy(ctx, s.db, &Comment{}, "post_id", postIDs)
	if err != nil {
		return nil, err
	}
	liked, err := viewerSet(ctx, s.db, &Like{}, "user_id", "post_id", viewerID, postIDs)
	if err != nil {
		return nil, err
	}
	bookmarked, err := viewerSet(ctx, s.db, &Bookmark{}, "user_id", "post_id", viewerID, postIDs)
	if err != nil {
		return nil, err
	}
	var media []uploads.Media
	if err := s.db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Order("created_at_ms ASC").Order("id ASC").
		Find(&media).Error; err != nil {
		return nil, err
	}
	attachments := make(map[string][]AttachmentView, len(posts))
	for _, item := range media {
		attachments[*item.PostID] = append(attachments[*item.PostID], AttachmentView{ID: item.ID, URL: item.URL, Type: item.Type})
	}

	for _, post := range posts {
		author, ok := authors[post.AuthorID]
		if !ok {
			author = UserView{ID: post.AuthorID}
		}
		postAttachments := attachments[post.ID]
		if postAttachments == nil {
			postAttachments = []AttachmentView{}
		}
		views = append(views, PostView{
			ID:                 post.ID,
			Content:            post.Content,
			CreatedAt:          millisToTime(post.CreatedAtMillis),
			User:               author,
			Attachments:        postAttachments,
			Likes:              likes[post.ID],
			Comments:           comments[post.ID],
			IsLikedByUser:      liked[post.ID],
			IsBookmarkedByUser: bookmarked[post.ID],
		})
	}
	return views, nil
}

func (s *Service) hydrateComments(ctx context.Context, viewerID string, comments []Comment) ([]CommentView, error) {
	authorIDs := make([]string, 0, len(comments))
	for _, comment := range comments {
		authorIDs = append(authorIDs, comment.AuthorID)
	}
	authors, err := s.hydrateUsers(ctx, viewerID, authorIDs)
	if err != nil {
		return nil, err
	}
	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		author, ok := authors[comment.AuthorID]
		if !ok {
			author = UserView{ID: comment.AuthorID}
		}
		views = append(views, CommentView{
			ID:        comment.ID,
			PostID:    comment.PostID,
			Content:   comment.Content,
			CreatedAt: millisToTime(comment.CreatedAtMillis),
			User:      author,
		})
	}
	return views, nil
}

func (s *Service) hydrateNotifications(ctx context.Context, notifications []Notification) ([]NotificationView, error) {
	issuerIDs := make([]string, 0, len(notifications))
	postIDs := make([]string, 0, len(notifications))
	for _, notification := range notifications {
		issuerIDs = append(issuerIDs, notification.IssuerID)
		if notification.PostID != nil {
			postIDs = append(postIDs, *notification.PostID)
		}
	}
	issuers, err := s.loadUsers(ctx, issuerIDs)
	if err != nil {
		return nil, err
	}
	posts := make(map[string]Post, len(postIDs))
	if postIDs = uniqueStrings(postIDs); len(postIDs) > 0 {
		var rows []Post
		if err := s.db.WithContext(ctx).Where("id IN ?", postIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			posts[row.ID] = row
		}
	}

	views := make([]NotificationView, 0, len(notifications))
	for _, notification := range notifications {
		issuer, ok := issuers[notification.IssuerID]
		if !ok {
			issuer = users.User{ID: notification.IssuerID}
		}
		view := NotificationView{
			ID:        notification.ID,
			Type:      notification.Type,
			Read:      notification.Read,
			CreatedAt: millisToTime(notification.CreatedAtMillis),
			Issuer:    issuerViewOf(issuer),
		}
		if notification.PostID != nil {
			if post, ok := posts[*notification.PostID]; ok {
				view.Post = &PostExcerpt{ID: post.ID, Content: post.Content}
			}
		}
		views = append(views, view)
	}
	return views, nil
}
