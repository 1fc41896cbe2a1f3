// Package notify delivers structured budget and payment events to the
// notification subsystem. Events are persisted as Notification rows (the
// record the dashboard reads) and optionally republished to AMQP for
// downstream consumers (email, push). Delivery is fire-and-forget: callers
// never wait for, or fail on, notification outcomes.
package notify

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"hearth/internal/logger"
	"hearth/internal/models"
)

// Event is a structured notification event.
type Event struct {
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier is the boundary consumed by the core services.
type Notifier interface {
	Notify(event Event)
}

// Service persists events and fans them out to an optional publisher.
type Service struct {
	db        *gorm.DB
	publisher *Publisher
}

// NewService creates a Notifier backed by the database. publisher may be
// nil when no broker is configured.
func NewService(db *gorm.DB, publisher *Publisher) *Service {
	return &Service{db: db, publisher: publisher}
}

// Notify records the event. Errors are logged and swallowed so that a
// notification failure can never disturb the operation that produced it.
func (s *Service) Notify(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var payloadJSON string
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			logger.Get().Errorw("failed to marshal notification payload", "error", err, "type", event.Type)
		} else {
			payloadJSON = string(data)
		}
	}

	row := &models.Notification{
		UserID:  event.UserID,
		Type:    event.Type,
		Title:   event.Title,
		Message: event.Message,
		Payload: payloadJSON,
	}
	if err := s.db.Create(row).Error; err != nil {
		logger.Get().Errorw("failed to persist notification",
			"error", err,
			"user_id", event.UserID,
			"type", event.Type,
		)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(event); err != nil {
			logger.Get().Errorw("failed to publish notification event",
				"error", err,
				"type", event.Type,
			)
		}
	}
}
