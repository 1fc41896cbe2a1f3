package services

import (
	"errors"

	"gorm.io/gorm"

	"hearth/internal/clock"
	apperrors "hearth/internal/errors"
	"hearth/internal/models"
	"hearth/internal/pagination"
)

// notificationService serves the user-facing notification feed.
type notificationService struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewNotificationService creates a new NotificationServicer.
func NewNotificationService(db *gorm.DB, clk clock.Clock) NotificationServicer {
	return &notificationService{db: db, clock: clk}
}

// GetUserNotifications retrieves a paginated list of the user's
// notifications, newest first.
func (s *notificationService) GetUserNotifications(userID string, page pagination.PageRequest, unreadOnly bool) (*pagination.PageResponse[models.Notification], error) {
	page.Defaults()

	base := s.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		base = base.Where("read_at IS NULL")
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var notifications []models.Notification
	if err := base.Scopes(pagination.Paginate(page)).Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(notifications, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// MarkRead stamps a notification as read. Marking an already-read
// notification is a no-op.
func (s *notificationService) MarkRead(userID, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.Where("id = ? AND user_id = ?", notificationID, userID).First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if notification.ReadAt == nil {
		now := s.clock.Now()
		if err := s.db.Model(&notification).Update("read_at", now).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		notification.ReadAt = &now
	}
	return &notification, nil
}
