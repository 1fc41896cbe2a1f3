package services

import (
	"gorm.io/gorm"

	"hearth/internal/notify"
)

// newTestNotifier returns a notifier that persists events without a
// message broker attached.
func newTestNotifier(db *gorm.DB) notify.Notifier {
	return notify.NewService(db, nil)
}
