package social

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxSuggestions = 6

// UserProfile returns a user as seen by the viewer.
func (s *Service) UserProfile(ctx context.Context, viewerID, userID string) (UserView, error) {
	return s.userProfile(ctx, viewerID, "id = ?", strings.TrimSpace(userID))
}

// UserProfileByUsername returns a user looked up by case-insensitive username.
func (s *Service) UserProfileByUsername(ctx context.Context, viewerID, username string) (UserView, error) {
	return s.userProfile(ctx, viewerID, "LOWER(username) = LOWER(?)", strings.TrimSpace(username))
}

func (s *Service) userProfile(ctx context.Context, viewerID, condition, value string) (UserView, error) {
	user, err := s.findUser(ctx, s.db, opGetUser, condition, value)
	if err != nil {
		return UserView{}, err
	}
	views, err := s.hydrateUsers(ctx, viewerID, []string{user.ID})
	if err != nil {
		return UserView{}, s.dependencyError(opGetUser, "hydrate_failed", err, zap.String("user_id", user.ID))
	}
	return views[user.ID], nil
}

// FollowerInfo returns the follower count of a user and whether the viewer follows them.
func (s *Service) FollowerInfo(ctx context.Context, viewerID, userID string) (FollowerInfo, error) {
	if _, err := s.findUser(ctx, s.db, opFollowerInfo, "id = ?", userID); err != nil {
		return FollowerInfo{}, err
	}
	return s.followerInfo(ctx, opFollowerInfo, viewerID, userID)
}

// FollowUser makes the viewer follow userID once and notifies them in the same transaction.
func (s *Service) FollowUser(ctx context.Context, viewerID, userID string) (FollowerInfo, error) {
	if viewerID == userID {
		return FollowerInfo{}, forbidden(opFollowUser, "self_action", ErrSelfAction)
	}
	followID, err := s.idProvider.NewID()
	if err != nil {
		return FollowerInfo{}, s.dependencyError(opFollowUser, "id_generation_failed", err)
	}

	var created *Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.findUser(ctx, tx, opFollowUser, "id = ?", userID); err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Follow{ID: followID, FollowerID: viewerID, FollowingID: userID, CreatedAtMillis: s.nowMillis()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created, err = s.insertNotification(tx, userID, viewerID, nil, NotificationFollow)
		return err
	})
	if err != nil {
		return FollowerInfo{}, s.passThrough(opFollowUser, "insert_failed", err, zap.String("user_id", userID))
	}
	s.publish(ctx, created)
	return s.followerInfo(ctx, opFollowUser, viewerID, userID)
}

// UnfollowUser removes the viewer's follow and its notification.
func (s *Service) UnfollowUser(ctx context.Context, viewerID, userID string) (FollowerInfo, error) {
	if viewerID == userID {
		return FollowerInfo{}, forbidden(opUnfollowUser, "self_action", ErrSelfAction)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("follower_id = ? AND following_id = ?", viewerID, userID).Delete(&Follow{}).Error; err != nil {
			return err
		}
		return tx.Where("recipient_id = ? AND issuer_id = ? AND type = ?", userID, viewerID, NotificationFollow).
			Delete(&Notification{}).Error
	})
	if err != nil {
		return FollowerInfo{}, s.dependencyError(opUnfollowUser, "delete_failed", err, zap.String("user_id", userID))
	}
	return s.followerInfo(ctx, opUnfollowUser, viewerID, userID)
}

// Suggestions returns up to six recent users the viewer does not follow yet.
func (s *Service) Suggestions(ctx context.Context, viewerID string) ([]UserView, error) {
	followed := s.db.Model(&Follow{}).Select("following_id").Where("follower_id = ?", viewerID)
	var candidateIDs []string
	err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id <> ? AND id NOT IN (?)", viewerID, followed).
		Order("created_at_ms DESC").Order("id DESC").
		Limit(maxSuggestions).
		Pluck("id", &candidateIDs).Error
	if err != nil {
		return nil, s.dependencyError(opSuggestions, "query_failed", err, zap.String("viewer_id", viewerID))
	}
	views, err := s.hydrateUsers(ctx, viewerID, candidateIDs)
	if err != nil {
		return nil, s.dependencyError(opSuggestions, "hydrate_failed", err)
	}
	result := make([]UserView, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if view, ok := views[id]; ok {
			result = append(result, view)
		}
	}
	return result, nil
}

func (s *Service) followerInfo(ctx context.Context, operation, viewerID, userID string) (FollowerInfo, error) {
	counts, err := countBy(ctx, s.db, &Follow{}, "following_id", []string{userID})
	if err != nil {
		return FollowerInfo{}, s.dependencyError(operation, "count_failed", err, zap.String("user_id", userID))
	}
	followed, err := viewerSet(ctx, s.db, &Follow{}, "follower_id", "following_id", viewerID, []string{userID})
	if err != nil {
		return FollowerInfo{}, s.dependencyError(operation, "count_failed", err, zap.String("user_id", userID))
	}
	return FollowerInfo{Followers: counts[userID], IsFollowedByUser: followed[userID]}, nil
}

func (s *Service) findUser(ctx context.Context, db *gorm.DB, operation, condition, value string) (users.User, error) {
	if value == "" {
		return users.User{}, notFound(operation, "user_not_found", ErrUserNotFound)
	}
	var user users.User
	err := db.WithContext(ctx).Where(condition, value).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, notFound(operation, "user_not_found", ErrUserNotFound)
	}
	if err != nil {
		return users.User{}, s.dependencyError(operation, "user_select_failed", err)
	}
	return user, nil
}
