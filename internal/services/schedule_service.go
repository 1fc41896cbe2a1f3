package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"hearth/internal/clock"
	apperrors "hearth/internal/errors"
	"hearth/internal/logger"
	"hearth/internal/models"
	"hearth/internal/notify"
	"hearth/internal/pagination"
)

// duplicateWindow is the span within which a creation request matching an
// existing schedule by owner, name and amount is treated as a retry.
const duplicateWindow = 10 * time.Second

// scheduleService handles standalone payment schedules and their bridge
// into weekly ledgers.
type scheduleService struct {
	db         *gorm.DB
	clock      clock.Clock
	gate       PermissionGate
	ledgers    LedgerServicer
	reconciler Reconciler
	notifier   notify.Notifier
}

// NewScheduleService creates a new ScheduleServicer.
func NewScheduleService(db *gorm.DB, clk clock.Clock, gate PermissionGate, ledgers LedgerServicer, reconciler Reconciler, notifier notify.Notifier) ScheduleServicer {
	return &scheduleService{db: db, clock: clk, gate: gate, ledgers: ledgers, reconciler: reconciler, notifier: notifier}
}

func validFrequency(f models.PaymentFrequency) bool {
	switch f {
	case models.FrequencyOnce, models.FrequencyWeekly, models.FrequencyBiweekly,
		models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyYearly:
		return true
	}
	return false
}

// CreateSchedule creates a payment schedule and bridges it into the
// weekly ledger covering its due date, bootstrapping a minimal ledger
// when none exists. A request matching an existing schedule by
// owner+name+amount within the duplicate window returns the existing
// record instead of creating a second one.
func (s *scheduleService) CreateSchedule(userID string, in ScheduleInput) (*models.PaymentSchedule, error) {
	if in.Name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "schedule name is required")
	}
	if in.Amount <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "schedule amount must be positive")
	}
	if !validFrequency(in.Frequency) {
		return nil, apperrors.ErrInvalidFrequency
	}
	if in.IsRecurring && in.Frequency == models.FrequencyOnce {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "a recurring schedule needs a repeating frequency")
	}

	var count int64
	if err := s.db.Model(&models.Category{}).Where("id = ? AND user_id = ?", in.CategoryID, userID).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return nil, apperrors.ErrCategoryNotFound
	}

	// Duplicate-submission protection.
	var existing models.PaymentSchedule
	err := s.db.Where("user_id = ? AND name = ? AND amount = ? AND created_at > ?",
		userID, in.Name, in.Amount, s.clock.Now().Add(-duplicateWindow)).
		Order("created_at DESC").First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	txType := in.TxType
	if txType == "" {
		txType = models.TransactionTypeExpense
	}

	// Stamp creation time from the injected clock so the duplicate
	// window above compares like against like.
	schedule := &models.PaymentSchedule{
		Base:             models.Base{CreatedAt: s.clock.Now(), UpdatedAt: s.clock.Now()},
		UserID:           userID,
		Name:             in.Name,
		Amount:           in.Amount,
		CategoryID:       in.CategoryID,
		DueDate:          startOfDay(in.DueDate),
		Frequency:        in.Frequency,
		Status:           models.PaymentStatusPending,
		IsRecurring:      in.IsRecurring,
		RecurringEndDate: in.RecurringEndDate,
		TxType:           txType,
		ReminderDays:     in.ReminderDays,
	}
	if err := s.db.Create(schedule).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.bridgeToLedger(schedule)
	return schedule, nil
}

// bridgeToLedger links a schedule to the ledger covering its due date,
// creating the ledger when needed. A bridge failure (for example an
// allocation ceiling in an existing ledger) leaves the schedule standalone
// and is logged; reporting still counts the schedule.
func (s *scheduleService) bridgeToLedger(schedule *models.PaymentSchedule) {
	ledger, err := s.ledgers.EnsureLedgerFor(schedule.UserID, schedule.DueDate)
	if err != nil {
		logger.Get().Warnw("schedule bridge: ledger bootstrap failed",
			"schedule_id", schedule.ID, "error", err)
		return
	}

	entry, err := s.ledgers.AddPayment(schedule.UserID, ledger.ID, schedule.CategoryID, PaymentInput{
		Name:          schedule.Name,
		Amount:        schedule.Amount,
		ScheduledDate: schedule.DueDate,
		Status:        schedule.Status,
		ScheduleID:    &schedule.ID,
	})
	if err != nil {
		logger.Get().Warnw("schedule bridge: ledger entry rejected",
			"schedule_id", schedule.ID, "ledger_id", ledger.ID, "error", err)
		return
	}

	links := map[string]interface{}{
		"ledger_id":       ledger.ID,
		"ledger_entry_id": entry.ID,
	}
	if err := s.db.Model(schedule).Updates(links).Error; err != nil {
		logger.Get().Errorw("schedule bridge: link update failed",
			"schedule_id", schedule.ID, "error", err)
		return
	}
	schedule.LedgerID = &ledger.ID
	schedule.LedgerEntryID = &entry.ID
}

// GetUserSchedules returns a paginated list of the user's schedules.
func (s *scheduleService) GetUserSchedules(userID string, page pagination.PageRequest, status *models.PaymentStatus) (*pagination.PageResponse[models.PaymentSchedule], error) {
	page.Defaults()

	base := s.db.Model(&models.PaymentSchedule{}).Where("user_id = ?", userID)
	if status != nil {
		base = base.Where("status = ?", *status)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var schedules []models.PaymentSchedule
	if err := base.Preload("Category").Scopes(pagination.Paginate(page)).Order("due_date ASC").Find(&schedules).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(schedules, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// loadSchedule fetches a schedule by ID and checks the caller may act on
// it; a schedule owned by someone else yields forbidden, not not-found.
func (s *scheduleService) loadSchedule(userID, scheduleID string) (*models.PaymentSchedule, error) {
	var schedule models.PaymentSchedule
	if err := s.db.Where("id = ?", scheduleID).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrScheduleNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if schedule.UserID != userID && !s.gate.MayWrite(userID, schedule.UserID, "payment_schedule", schedule.ID) {
		return nil, apperrors.ErrForbidden
	}
	return &schedule, nil
}

// GetScheduleByID returns a schedule.
func (s *scheduleService) GetScheduleByID(userID, scheduleID string) (*models.PaymentSchedule, error) {
	return s.loadSchedule(userID, scheduleID)
}

// UpdateSchedule updates a schedule's fields and keeps its linked ledger
// entry in step for payments that have not been paid yet.
func (s *scheduleService) UpdateSchedule(userID, scheduleID string, in UpdateScheduleInput) (*models.PaymentSchedule, error) {
	schedule, err := s.loadSchedule(userID, scheduleID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Amount != nil {
		if *in.Amount <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "schedule amount must be positive")
		}
		updates["amount"] = *in.Amount
	}
	if in.DueDate != nil {
		updates["due_date"] = startOfDay(*in.DueDate)
	}
	if in.Frequency != nil {
		if !validFrequency(*in.Frequency) {
			return nil, apperrors.ErrInvalidFrequency
		}
		updates["frequency"] = *in.Frequency
	}
	if in.RecurringEndDate != nil {
		updates["recurring_end_date"] = in.RecurringEndDate
	}
	if in.ReminderDays != nil {
		updates["reminder_days"] = *in.ReminderDays
	}
	if len(updates) == 0 {
		return schedule, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(schedule).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if schedule.LedgerEntryID == nil {
			return nil
		}
		var entry models.PaymentEntry
		if err := tx.Where("id = ?", *schedule.LedgerEntryID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if entry.Status == models.PaymentStatusPaid {
			return nil
		}

		entryUpdates := make(map[string]interface{})
		if in.Name != nil {
			entryUpdates["name"] = *in.Name
		}
		if in.Amount != nil {
			entryUpdates["amount"] = *in.Amount
		}
		if in.DueDate != nil {
			entryUpdates["scheduled_date"] = startOfDay(*in.DueDate)
		}
		if len(entryUpdates) == 0 {
			return nil
		}
		if err := tx.Model(&entry).Updates(entryUpdates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadSchedule(userID, scheduleID)
}

// DeleteSchedule soft-deletes a schedule. An unpaid linked ledger entry
// is removed with it; a paid entry and its derived Transaction stay, as
// they record money that actually moved.
func (s *scheduleService) DeleteSchedule(userID, scheduleID string) error {
	schedule, err := s.loadSchedule(userID, scheduleID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if schedule.LedgerEntryID != nil {
			var entry models.PaymentEntry
			err := tx.Where("id = ?", *schedule.LedgerEntryID).First(&entry).Error
			if err == nil && entry.Status != models.PaymentStatusPaid {
				if err := tx.Delete(&entry).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
			} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		if err := tx.Delete(schedule).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// MarkPaid marks a schedule paid through the reconciliation protocol and
// spawns the recurring successor when applicable.
func (s *scheduleService) MarkPaid(userID, scheduleID string, paidDate *time.Time) (*models.PaymentSchedule, error) {
	return s.setStatus(userID, scheduleID, models.PaymentStatusPaid, paidDate)
}

// SetStatus transitions a schedule through the reconciliation protocol.
func (s *scheduleService) SetStatus(userID, scheduleID string, status models.PaymentStatus) (*models.PaymentSchedule, error) {
	return s.setStatus(userID, scheduleID, status, nil)
}

func (s *scheduleService) setStatus(userID, scheduleID string, status models.PaymentStatus, paidDate *time.Time) (*models.PaymentSchedule, error) {
	schedule, err := s.reconciler.SetScheduleStatus(userID, scheduleID, status, paidDate)
	if err != nil {
		return nil, err
	}

	if status == models.PaymentStatusPaid {
		s.spawnSuccessor(schedule)
	}
	return schedule, nil
}

// spawnSuccessor creates the next occurrence of a recurring schedule with
// the due date advanced by one frequency interval. Nothing is created
// when the successor would fall past the recurring end date, or when a
// matching successor already exists (the existence check keeps repeated
// sweeps from duplicating occurrences).
func (s *scheduleService) spawnSuccessor(schedule *models.PaymentSchedule) {
	if !schedule.IsRecurring || schedule.Frequency == models.FrequencyOnce {
		return
	}

	next := schedule.Frequency.NextDue(schedule.DueDate)
	if schedule.RecurringEndDate != nil && next.After(*schedule.RecurringEndDate) {
		return
	}

	var count int64
	err := s.db.Model(&models.PaymentSchedule{}).
		Where("user_id = ? AND name = ? AND amount = ? AND due_date = ? AND id <> ?",
			schedule.UserID, schedule.Name, schedule.Amount, next, schedule.ID).
		Count(&count).Error
	if err != nil {
		logger.Get().Errorw("recurring successor check failed", "schedule_id", schedule.ID, "error", err)
		return
	}
	if count > 0 {
		return
	}

	successor := &models.PaymentSchedule{
		UserID:           schedule.UserID,
		Name:             schedule.Name,
		Amount:           schedule.Amount,
		CategoryID:       schedule.CategoryID,
		DueDate:          next,
		Frequency:        schedule.Frequency,
		Status:           models.PaymentStatusPending,
		IsRecurring:      true,
		RecurringEndDate: schedule.RecurringEndDate,
		TxType:           schedule.TxType,
		ReminderDays:     schedule.ReminderDays,
	}
	if err := s.db.Create(successor).Error; err != nil {
		logger.Get().Errorw("recurring successor creation failed", "schedule_id", schedule.ID, "error", err)
		return
	}
	s.bridgeToLedger(successor)
}

// CheckOverdue transitions every pending schedule whose due date has
// passed to overdue and emits a payment_overdue event. The sweep is
// idempotent: overdue records no longer match the query, and failures on
// individual records are logged and skipped. Returns the number of
// schedules transitioned.
func (s *scheduleService) CheckOverdue() (int, error) {
	var due []models.PaymentSchedule
	err := s.db.Where("status = ? AND due_date < ?", models.PaymentStatusPending, s.clock.Now()).Find(&due).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	transitioned := 0
	for i := range due {
		schedule := &due[i]
		if _, err := s.reconciler.SetScheduleStatus(schedule.UserID, schedule.ID, models.PaymentStatusOverdue, nil); err != nil {
			logger.Get().Errorw("overdue check failed", "schedule_id", schedule.ID, "error", err)
			continue
		}
		s.notifier.Notify(notify.Event{
			UserID:  schedule.UserID,
			Type:    models.NotificationPaymentOverdue,
			Title:   "Payment overdue",
			Message: schedule.Name + " was due on " + schedule.DueDate.Format("2006-01-02"),
			Payload: map[string]any{
				"schedule_id": schedule.ID,
				"amount":      schedule.Amount,
				"due_date":    schedule.DueDate,
			},
		})
		transitioned++
	}
	return transitioned, nil
}

// CheckReminders emits a payment_reminder event for every pending
// schedule entering its reminder window. Each schedule is reminded at
// most once. Returns the number of reminders sent.
func (s *scheduleService) CheckReminders() (int, error) {
	now := s.clock.Now()
	var upcoming []models.PaymentSchedule
	err := s.db.Where("status = ? AND reminder_days > 0 AND reminder_sent_at IS NULL AND due_date >= ?",
		models.PaymentStatusPending, now).Find(&upcoming).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	sent := 0
	for i := range upcoming {
		schedule := &upcoming[i]
		windowStart := schedule.DueDate.AddDate(0, 0, -schedule.ReminderDays)
		if now.Before(windowStart) {
			continue
		}

		s.notifier.Notify(notify.Event{
			UserID:  schedule.UserID,
			Type:    models.NotificationPaymentReminder,
			Title:   "Payment due soon",
			Message: schedule.Name + " is due on " + schedule.DueDate.Format("2006-01-02"),
			Payload: map[string]any{
				"schedule_id": schedule.ID,
				"amount":      schedule.Amount,
				"due_date":    schedule.DueDate,
			},
		})
		if err := s.db.Model(schedule).Update("reminder_sent_at", now).Error; err != nil {
			logger.Get().Errorw("reminder bookkeeping failed", "schedule_id", schedule.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
