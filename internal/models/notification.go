package models

import "time"

// Notification event types produced by the budget and payment sweeps.
const (
	NotificationBudgetAlert     = "budget_alert"
	NotificationPaymentReminder = "payment_reminder"
	NotificationPaymentOverdue  = "payment_overdue"
)

// Notification is a persisted fire-and-forget event for the notification
// subsystem. Delivery (email, push) happens outside this service; the row
// is the event of record.
type Notification struct {
	Base
	UserID  string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Type    string     `gorm:"not null" json:"type"`
	Title   string     `gorm:"not null" json:"title"`
	Message string     `json:"message"`
	Payload string     `json:"payload,omitempty"`
	ReadAt  *time.Time `json:"read_at,omitempty"`
}
