package social

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeInfo returns the like count of a post and whether the viewer likes it.
func (s *Service) LikeInfo(ctx context.Context, viewerID, postID string) (LikeInfo, error) {
	if _, err := s.findPost(ctx, s.db, opLikeInfo, postID); err != nil {
		return LikeInfo{}, err
	}
	return s.likeInfo(ctx, opLikeInfo, viewerID, postID)
}

// LikePost likes a post once. Liking an own post is rejected; the author is notified in the same transaction.
func (s *Service) LikePost(ctx context.Context, viewerID, postID string) (LikeInfo, error) {
	var created *Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.findPost(ctx, tx, opLikePost, postID)
		if err != nil {
			return err
		}
		if post.AuthorID == viewerID {
			return forbidden(opLikePost, "self_action", ErrSelfAction)
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Like{UserID: viewerID, PostID: postID, CreatedAtMillis: s.nowMillis()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created, err = s.insertNotification(tx, post.AuthorID, viewerID, &post.ID, NotificationLike)
		return err
	})
	if err != nil {
		return LikeInfo{}, s.passThrough(opLikePost, "insert_failed", err, zap.String("post_id", postID))
	}
	s.publish(ctx, created)
	return s.likeInfo(ctx, opLikePost, viewerID, postID)
}

// UnlikePost removes the viewer's like and the notification it produced.
func (s *Service) UnlikePost(ctx context.Context, viewerID, postID string) (LikeInfo, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.findPost(ctx, tx, opUnlikePost, postID)
		if err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND post_id = ?", viewerID, postID).Delete(&Like{}).Error; err != nil {
			return err
		}
		return tx.Where("recipient_id = ? AND issuer_id = ? AND post_id = ? AND type = ?",
			post.AuthorID, viewerID, postID, NotificationLike).Delete(&Notification{}).Error
	})
	if err != nil {
		return LikeInfo{}, s.passThrough(opUnlikePost, "delete_failed", err, zap.String("post_id", postID))
	}
	return s.likeInfo(ctx, opUnlikePost, viewerID, postID)
}

func (s *Service) likeInfo(ctx context.Context, operation, viewerID, postID string) (LikeInfo, error) {
	counts, err := countBy(ctx, s.db, &Like{}, "post_id", []string{postID})
	if err != nil {
		return LikeInfo{}, s.dependencyError(operation, "count_failed", err, zap.String("post_id", postID))
	}
	liked, err := viewerSet(ctx, s.db, &Like{}, "user_id", "post_id", viewerID, []string{postID})
	if err != nil {
		return LikeInfo{}, s.dependencyError(operation, "count_failed", err, zap.String("post_id", postID))
	}
	return LikeInfo{Likes: counts[postID], IsLikedByUser: liked[postID]}, nil
}

// BookmarkInfo reports whether the viewer bookmarked a post.
func (s *Service) BookmarkInfo(ctx context.Context, viewerID, postID string) (BookmarkInfo, error) {
	bookmarked, err := viewerSet(ctx, s.db, &Bookmark{}, "user_id", "post_id", viewerID, []string{postID})
	if err != nil {
		return BookmarkInfo{}, s.dependencyError(opBookmarkInfo, "query_failed", err, zap.String("post_id", postID))
	}
	return BookmarkInfo{IsBookmarkedByUser: bookmarked[postID]}, nil
}

// BookmarkPost saves a post for the viewer once.
func (s *Service) BookmarkPost(ctx context.Context, viewerID, postID string) (BookmarkInfo, error) {
	bookmarkID, err := s.idProvider.NewID()
	if err != nil {
		return BookmarkInfo{}, s.dependencyError(opBookmarkPost, "id_generation_failed", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findPost(ctx, tx, opBookmarkPost, postID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Bookmark{ID: bookmarkID, UserID: viewerID, PostID: postID, CreatedAtMillis: s.nowMillis()}).Error
	})
	if err != nil {
		return BookmarkInfo{}, s.passThrough(opBookmarkPost, "insert_failed", err, zap.String("post_id", postID))
	}
	return BookmarkInfo{IsBookmarkedByUser: true}, nil
}

// UnbookmarkPost removes the viewer's bookmark.
func (s *Service) UnbookmarkPost(ctx context.Context, viewerID, postID string) (BookmarkInfo, error) {
	if err := s.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", viewerID, postID).Delete(&Bookmark{}).Error; err != nil {
		return BookmarkInfo{}, s.dependencyError(opUnbookmarkPost, "delete_failed", err, zap.String("post_id", postID))
	}
	return BookmarkInfo{IsBookmarkedByUser: false}, nil
}

// CreateComment adds a comment to a post and notifies the post author unless they commented themselves.
func (s *Service) CreateComment(ctx context.Context, viewerID, postID, rawContent string) (CommentView, error) {
	content, err := validateContent(opCreateComment, rawContent, maxCommentLength)
	if err != nil {
		return CommentView{}, err
	}
	commentID, err := s.idProvider.NewID()
	if err != nil {
		return CommentView{}, s.dependencyError(opCreateComment, "id_generation_failed", err)
	}
	comment := Comment{ID: commentID, PostID: postID, AuthorID: viewerID, Content: content, CreatedAtMillis: s.nowMillis()}

	var created *Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.findPost(ctx, tx, opCreateComment, postID)
		if err != nil {
			return err
		}
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		if post.AuthorID == viewerID {
			return nil
		}
		created, err = s.insertNotification(tx, post.AuthorID, viewerID, &post.ID, NotificationComment)
		return err
	})
	if err != nil {
		return CommentView{}, s.passThrough(opCreateComment, "insert_failed", err, zap.String("post_id", postID))
	}
	s.publish(ctx, created)

	views, err := s.hydrateComments(ctx, viewerID, []Comment{comment})
	if err != nil {
		return CommentView{}, s.dependencyError(opCreateComment, "hydrate_failed", err)
	}
	return views[0], nil
}

// DeleteComment removes a comment written by the viewer and returns it.
func (s *Service) DeleteComment(ctx context.Context, viewerID, commentID string) (CommentView, error) {
	var comment Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", commentID).Take(&comment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(opDeleteComment, "comment_not_found", ErrCommentNotFound)
		}
		if err != nil {
			return err
		}
		if comment.AuthorID != viewerID {
			return forbidden(opDeleteComment, "not_author", ErrNotAuthor)
		}
		if err := tx.Delete(&Comment{}, "id = ?", commentID).Error; err != nil {
			return err
		}
		return deleteCommentNotification(tx, comment)
	})
	if err != nil {
		return CommentView{}, s.passThrough(opDeleteComment, "delete_failed", err, zap.String("comment_id", commentID))
	}
	views, err := s.hydrateComments(ctx, viewerID, []Comment{comment})
	if err != nil {
		return CommentView{}, s.dependencyError(opDeleteComment, "hydrate_failed", err)
	}
	return views[0], nil
}

// deleteCommentNotification removes the notification raised by comment: the first COMMENT
// notification from its author on the post created no earlier than the comment itself.
func deleteCommentNotification(tx *gorm.DB, comment Comment) error {
	var notification Notification
	err := tx.Where("issuer_id = ? AND post_id = ? AND type = ? AND created_at_ms >= ?",
		comment.AuthorID, comment.PostID, NotificationComment, comment.CreatedAtMillis).
		Order("created_at_ms ASC, id ASC").
		Take(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.Delete(&Notification{}, "id = ?", notification.ID).Error
}
