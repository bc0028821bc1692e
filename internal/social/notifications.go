package social

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UnreadNotificationCount returns how many of the viewer's notifications are unread.
func (s *Service) UnreadNotificationCount(ctx context.Context, viewerID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND read = ?", viewerID, false).
		Count(&count).Error
	if err != nil {
		return 0, s.dependencyError(opUnreadCount, "count_failed", err, zap.String("viewer_id", viewerID))
	}
	return count, nil
}

// MarkNotificationsRead marks every unread notification of the viewer as read and returns how many changed.
func (s *Service) MarkNotificationsRead(ctx context.Context, viewerID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND read = ?", viewerID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, s.dependencyError(opMarkNotifyRead, "update_failed", result.Error, zap.String("viewer_id", viewerID))
	}
	return result.RowsAffected, nil
}

func (s *Service) insertNotification(tx *gorm.DB, recipientID, issuerID string, postID *string, kind NotificationType) (*Notification, error) {
	notificationID, err := s.idProvider.NewID()
	if err != nil {
		return nil, err
	}
	notification := &Notification{
		ID:              notificationID,
		RecipientID:     recipientID,
		IssuerID:        issuerID,
		PostID:          postID,
		Type:            kind,
		CreatedAtMillis: s.nowMillis(),
	}
	if err := tx.Create(notification).Error; err != nil {
		return nil, err
	}
	return notification, nil
}

// publish hands a committed notification to the realtime publisher. Failures only lose the push.
func (s *Service) publish(ctx context.Context, notification *Notification) {
	if notification == nil || s.publisher == nil {
		return
	}
	views, err := s.hydrateNotifications(ctx, []Notification{*notification})
	if err != nil {
		s.logger.Warn("notification publish skipped",
			zap.String("operation", opPublishNotify),
			zap.String("notification_id", notification.ID),
			zap.Error(err))
		return
	}
	s.publisher.PublishNotification(notification.RecipientID, views[0])
}
