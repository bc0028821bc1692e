package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxPostLength      = 2000
	maxCommentLength   = 1000
	maxPostAttachments = 5
)

// CreatePostInput is the content of a new post.
type CreatePostInput struct {
	Content  string
	MediaIDs []string
}

// CreatePost stores a post and claims the viewer's unattached media for it.
func (s *Service) CreatePost(ctx context.Context, viewerID string, input CreatePostInput) (PostView, error) {
	content, err := validateContent(opCreatePost, input.Content, maxPostLength)
	if err != nil {
		return PostView{}, err
	}
	mediaIDs := uniqueStrings(input.MediaIDs)
	if len(mediaIDs) > maxPostAttachments {
		return PostView{}, invalid(opCreatePost, "too_many_attachments",
			fmt.Errorf("%w: at most %d attachments", ErrTooManyAttachments, maxPostAttachments))
	}
	postID, err := s.idProvider.NewID()
	if err != nil {
		return PostView{}, s.dependencyError(opCreatePost, "id_generation_failed", err)
	}
	post := Post{ID: postID, AuthorID: viewerID, Content: content, CreatedAtMillis: s.nowMillis()}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		if len(mediaIDs) == 0 {
			return nil
		}
		result := tx.Model(&uploads.Media{}).
			Where("id IN ? AND owner_id = ? AND post_id IS NULL", mediaIDs, viewerID).
			Update("post_id", post.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(mediaIDs)) {
			return invalid(opCreatePost, "invalid_attachment",
				fmt.Errorf("%w: attachments must be your own unused uploads", ErrInvalidAttachment))
		}
		return nil
	})
	if err != nil {
		return PostView{}, s.passThrough(opCreatePost, "insert_failed", err, zap.String("viewer_id", viewerID))
	}
	return s.GetPost(ctx, viewerID, post.ID)
}

// GetPost returns one post as seen by the viewer.
func (s *Service) GetPost(ctx context.Context, viewerID, postID string) (PostView, error) {
	post, err := s.findPost(ctx, s.db, opGetPost, postID)
	if err != nil {
		return PostView{}, err
	}
	views, err := s.hydratePosts(ctx, viewerID, []Post{post})
	if err != nil {
		return PostView{}, s.dependencyError(opGetPost, "hydrate_failed", err, zap.String("post_id", postID))
	}
	return views[0], nil
}

// DeletePost removes the viewer's post with its likes, bookmarks, comments and notifications.
// Its media is detached and left for orphan cleanup.
func (s *Service) DeletePost(ctx context.Context, viewerID, postID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.findPost(ctx, tx, opDeletePost, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != viewerID {
			return forbidden(opDeletePost, "not_author", ErrNotAuthor)
		}
		for _, model := range []interface{}{&Like{}, &Bookmark{}, &Comment{}, &Notification{}} {
			if err := tx.Where("post_id = ?", postID).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&uploads.Media{}).Where("post_id = ?", postID).Update("post_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&Post{}, "id = ?", postID).Error
	})
	if err != nil {
		return s.passThrough(opDeletePost, "delete_failed", err, zap.String("post_id", postID))
	}
	return nil
}

func (s *Service) findPost(ctx context.Context, db *gorm.DB, operation, postID string) (Post, error) {
	var post Post
	err := db.WithContext(ctx).Where("id = ?", strings.TrimSpace(postID)).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, notFound(operation, "post_not_found", ErrPostNotFound)
	}
	if err != nil {
		return Post{}, s.dependencyError(operation, "post_select_failed", err, zap.String("post_id", postID))
	}
	return post, nil
}

func validateContent(operation, raw string, maxLength int) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", invalid(operation, "content_required", fmt.Errorf("%w: content is required", ErrInvalidContent))
	}
	if utf8.RuneCountInString(content) > maxLength {
		return "", invalid(operation, "content_too_long",
			fmt.Errorf("%w: content must be at most %d characters", ErrInvalidContent, maxLength))
	}
	return content, nil
}
