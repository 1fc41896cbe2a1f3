package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"hearth/internal/clock"
	apperrors "hearth/internal/errors"
	"hearth/internal/logger"
	"hearth/internal/models"
	"hearth/internal/notify"
)

// ledgerService handles materialized weekly ledgers, allocation
// enforcement, and budget-alert sweeps.
type ledgerService struct {
	db       *gorm.DB
	clock    clock.Clock
	gate     PermissionGate
	notifier notify.Notifier
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(db *gorm.DB, clk clock.Clock, gate PermissionGate, notifier notify.Notifier) LedgerServicer {
	return &ledgerService{db: db, clock: clk, gate: gate, notifier: notifier}
}

// loadLedger fetches a ledger by ID with its categories and entries, and
// checks the caller may act on it.
func (s *ledgerService) loadLedger(userID, ledgerID string) (*models.WeeklyLedger, error) {
	var ledger models.WeeklyLedger
	err := s.db.Preload("Categories").Preload("Categories.Entries").
		Where("id = ?", ledgerID).First(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrLedgerNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if ledger.UserID != userID && !s.gate.MayWrite(userID, ledger.UserID, "weekly_ledger", ledger.ID) {
		return nil, apperrors.ErrForbidden
	}
	return &ledger, nil
}

// GetLedgerByID returns a ledger with categories and entries.
func (s *ledgerService) GetLedgerByID(userID, ledgerID string) (*models.WeeklyLedger, error) {
	return s.loadLedger(userID, ledgerID)
}

// MaterializeFromPeriod turns a weekly slice into a live ledger. The
// operation is idempotent: if the slice already points at a ledger, that
// ledger is returned unchanged. Categories are cloned from the plan's
// allocations with per-slice amounts. Only a slice whose window has
// started is pre-populated with due payment schedules; future slices
// start empty.
func (s *ledgerService) MaterializeFromPeriod(userID, periodID string, weekNumber int) (*models.WeeklyLedger, error) {
	var period models.PeriodBudget
	if err := s.db.Preload("Allocations").Where("id = ?", periodID).First(&period).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if period.UserID != userID && !s.gate.MayWrite(userID, period.UserID, "period_budget", period.ID) {
		return nil, apperrors.ErrForbidden
	}

	var slice models.WeeklySlice
	if err := s.db.Where("period_budget_id = ? AND week_number = ?", period.ID, weekNumber).First(&slice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSliceNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if slice.LedgerID != nil {
		return s.loadLedger(userID, *slice.LedgerID)
	}

	var sliceCount int64
	if err := s.db.Model(&models.WeeklySlice{}).Where("period_budget_id = ?", period.ID).Count(&sliceCount).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if sliceCount == 0 {
		sliceCount = 1
	}

	ledger := &models.WeeklyLedger{
		UserID:         period.UserID,
		PeriodBudgetID: &period.ID,
		WeekStart:      slice.StartDate,
		WeekEnd:        slice.EndDate,
		TotalAmount:    slice.AllocatedAmount,
	}
	for _, alloc := range period.Allocations {
		var amount int64
		if alloc.Amount > 0 {
			amount = alloc.Amount / sliceCount
		} else if alloc.Percent > 0 {
			amount = int64(alloc.Percent * float64(slice.AllocatedAmount) / 100)
		}
		mode := models.AllocationModeUnset
		if amount > 0 {
			mode = models.AllocationModeLimited
		}
		ledger.Categories = append(ledger.Categories, models.LedgerCategory{
			CategoryID: alloc.CategoryID,
			Allocation: amount,
			Mode:       mode,
		})
	}
	var allocated int64
	for _, lc := range ledger.Categories {
		allocated += lc.Allocation
	}
	ledger.Remaining = ledger.TotalAmount - allocated

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ledger).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if !slice.StartDate.After(s.clock.Now()) {
			if err := s.pullDueSchedules(tx, ledger); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"ledger_id": ledger.ID,
			"status":    models.SliceStatusActive,
		}
		if err := tx.Model(&slice).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.loadLedger(userID, ledger.ID)
}

// pullDueSchedules links the owner's unbridged schedules falling inside
// the ledger window as payment entries.
func (s *ledgerService) pullDueSchedules(tx *gorm.DB, ledger *models.WeeklyLedger) error {
	var due []models.PaymentSchedule
	err := tx.Where(
		"user_id = ? AND due_date >= ? AND due_date < ? AND ledger_entry_id IS NULL AND status IN ?",
		ledger.UserID, ledger.WeekStart, ledger.WeekEnd,
		[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusOverdue},
	).Find(&due).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for i := range due {
		schedule := &due[i]
		lc, err := findOrCreateLedgerCategory(tx, ledger, schedule.CategoryID)
		if err != nil {
			return err
		}
		entry := &models.PaymentEntry{
			LedgerID:         ledger.ID,
			LedgerCategoryID: lc.ID,
			UserID:           ledger.UserID,
			Name:             schedule.Name,
			Amount:           schedule.Amount,
			ScheduledDate:    schedule.DueDate,
			Status:           schedule.Status,
			ScheduleID:       &schedule.ID,
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		links := map[string]interface{}{
			"ledger_id":       ledger.ID,
			"ledger_entry_id": entry.ID,
		}
		if err := tx.Model(schedule).Updates(links).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

// findOrCreateLedgerCategory returns the ledger's row for a category,
// creating an unset (no ceiling) row when the category is not yet present.
func findOrCreateLedgerCategory(tx *gorm.DB, ledger *models.WeeklyLedger, categoryID string) (*models.LedgerCategory, error) {
	var lc models.LedgerCategory
	err := tx.Where("ledger_id = ? AND category_id = ?", ledger.ID, categoryID).First(&lc).Error
	if err == nil {
		return &lc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	lc = models.LedgerCategory{
		LedgerID:   ledger.ID,
		CategoryID: categoryID,
		Allocation: 0,
		Mode:       models.AllocationModeUnset,
	}
	if err := tx.Create(&lc).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &lc, nil
}

// EnsureLedgerFor returns the ledger covering the week of date, creating
// a minimal standalone ledger (no plan parent, no allocations) when none
// exists. This is the named bootstrap operation the scheduler uses.
func (s *ledgerService) EnsureLedgerFor(userID string, date time.Time) (*models.WeeklyLedger, error) {
	// Window containment, not Monday alignment: a ledger materialized
	// from a clipped plan slice can start mid-week, and a payment due
	// inside its window belongs to it. Prefer the latest-starting match
	// so a clipped plan ledger wins over an overlapping standalone one.
	var ledger models.WeeklyLedger
	err := s.db.Where("user_id = ? AND week_start <= ? AND week_end > ?", userID, date, date).
		Order("week_start DESC").
		First(&ledger).Error
	if err == nil {
		return s.loadLedger(userID, ledger.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	weekStart := mondayOnOrBefore(date)
	weekEnd := weekStart.AddDate(0, 0, 7)

	ledger = models.WeeklyLedger{
		UserID:    userID,
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
	}
	if err := s.db.Create(&ledger).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &ledger, nil
}

// AddPayment inserts a payment entry into a ledger category. For a
// limited category the insert is rejected with OverAllocation when the
// category's payments would exceed its allocation; the check and the
// insert run in one database transaction so a rejected payment leaves the
// ledger unchanged. Unset and unlimited categories accept unconditionally.
func (s *ledgerService) AddPayment(userID, ledgerID, categoryID string, in PaymentInput) (*models.PaymentEntry, error) {
	if in.Amount <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "payment amount must be positive")
	}
	if in.Name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "payment name is required")
	}
	status := in.Status
	if status == "" {
		status = models.PaymentStatusPending
	}

	ledger, err := s.loadLedger(userID, ledgerID)
	if err != nil {
		return nil, err
	}

	var entry *models.PaymentEntry
	err = s.db.Transaction(func(tx *gorm.DB) error {
		lc, err := findOrCreateLedgerCategory(tx, ledger, categoryID)
		if err != nil {
			return err
		}

		if lc.Mode == models.AllocationModeLimited {
			var committed int64
			err := tx.Model(&models.PaymentEntry{}).
				Select("COALESCE(SUM(amount), 0)").
				Where("ledger_category_id = ? AND status <> ?", lc.ID, models.PaymentStatusCancelled).
				Scan(&committed).Error
			if err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if committed+in.Amount > lc.Allocation {
				return apperrors.WithMessage(apperrors.ErrOverAllocation,
					fmt.Sprintf("payment of %d would exceed the category allocation of %d (%d already committed)",
						in.Amount, lc.Allocation, committed))
			}
		}

		entry = &models.PaymentEntry{
			LedgerID:         ledger.ID,
			LedgerCategoryID: lc.ID,
			UserID:           ledger.UserID,
			Name:             in.Name,
			Amount:           in.Amount,
			ScheduledDate:    in.ScheduledDate,
			Status:           status,
			ScheduleID:       in.ScheduleID,
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SetCategoryAllocation sets a category's allocation ceiling and mode,
// then refreshes the ledger's remaining headroom.
func (s *ledgerService) SetCategoryAllocation(userID, ledgerID, categoryID string, allocation int64, mode models.AllocationMode) (*models.LedgerCategory, error) {
	if allocation < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "allocation must not be negative")
	}
	ledger, err := s.loadLedger(userID, ledgerID)
	if err != nil {
		return nil, err
	}

	var lc *models.LedgerCategory
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		lc, err = findOrCreateLedgerCategory(tx, ledger, categoryID)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"allocation": allocation,
			"mode":       mode,
		}
		if err := tx.Model(lc).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.UpdateRemaining(ledger.ID); err != nil {
		return nil, err
	}
	return lc, nil
}

// UpdateRemaining recomputes the ledger's remaining headroom as total
// minus the sum of category allocations. Headroom measures unallocated
// budget, not unspent money.
func (s *ledgerService) UpdateRemaining(ledgerID string) error {
	var ledger models.WeeklyLedger
	if err := s.db.Where("id = ?", ledgerID).First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrLedgerNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var allocated int64
	if err := s.db.Model(&models.LedgerCategory{}).
		Select("COALESCE(SUM(allocation), 0)").
		Where("ledger_id = ?", ledgerID).
		Scan(&allocated).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.db.Model(&ledger).Update("remaining", ledger.TotalAmount-allocated).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetSpendingByCategory reports, per ledger category: allocated, spent
// (paid payments), scheduled (all live payments), remaining headroom, and
// percent used. Remaining counts scheduled payments, matching the
// AddPayment guard: headroom a pending payment already claims is not
// available. Categories without a ceiling report zero percent.
func (s *ledgerService) GetSpendingByCategory(userID, ledgerID string) ([]CategorySpending, error) {
	ledger, err := s.loadLedger(userID, ledgerID)
	if err != nil {
		return nil, err
	}

	report := make([]CategorySpending, 0, len(ledger.Categories))
	for _, lc := range ledger.Categories {
		var spent, scheduled int64
		for _, entry := range lc.Entries {
			if entry.Status == models.PaymentStatusCancelled {
				continue
			}
			scheduled += entry.Amount
			if entry.Status == models.PaymentStatusPaid {
				spent += entry.Amount
			}
		}

		row := CategorySpending{
			CategoryID: lc.CategoryID,
			Mode:       lc.Mode,
			Allocated:  lc.Allocation,
			Spent:      spent,
			Scheduled:  scheduled,
		}
		if lc.Allocation > 0 {
			row.Remaining = lc.Allocation - scheduled
			row.PercentUsed = float64(spent) / float64(lc.Allocation) * 100
		}
		report = append(report, row)
	}
	return report, nil
}

// CheckBudgetAlerts fires a budget_alert event for every limited ledger
// category whose paid spend has crossed 80% or 100% of its allocation.
// AlertLevel records the highest threshold already reported, so re-running
// the sweep produces no duplicate alerts. Returns the number of alerts
// fired; failures on individual categories are logged and skipped.
func (s *ledgerService) CheckBudgetAlerts() (int, error) {
	var categories []models.LedgerCategory
	err := s.db.Where("mode = ? AND allocation > 0 AND alert_level < 100", models.AllocationModeLimited).
		Find(&categories).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	fired := 0
	for i := range categories {
		lc := &categories[i]

		var spent int64
		err := s.db.Model(&models.PaymentEntry{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("ledger_category_id = ? AND status = ?", lc.ID, models.PaymentStatusPaid).
			Scan(&spent).Error
		if err != nil {
			logger.Get().Errorw("budget alert check failed", "ledger_category_id", lc.ID, "error", err)
			continue
		}

		percent := float64(spent) / float64(lc.Allocation) * 100
		var level int
		switch {
		case percent >= 100:
			level = 100
		case percent >= 80:
			level = 80
		default:
			continue
		}
		if level <= lc.AlertLevel {
			continue
		}

		var ledger models.WeeklyLedger
		if err := s.db.Where("id = ?", lc.LedgerID).First(&ledger).Error; err != nil {
			logger.Get().Errorw("budget alert check failed", "ledger_id", lc.LedgerID, "error", err)
			continue
		}

		title := "Budget warning"
		message := fmt.Sprintf("Spending has reached %.0f%% of the category allocation", percent)
		if level == 100 {
			title = "Budget exceeded"
			message = "Spending has reached the category allocation"
		}
		s.notifier.Notify(notify.Event{
			UserID:  ledger.UserID,
			Type:    models.NotificationBudgetAlert,
			Title:   title,
			Message: message,
			Payload: map[string]any{
				"ledger_id":   lc.LedgerID,
				"category_id": lc.CategoryID,
				"allocation":  lc.Allocation,
				"spent":       spent,
				"level":       level,
			},
		})

		if err := s.db.Model(lc).Update("alert_level", level).Error; err != nil {
			logger.Get().Errorw("failed to record alert level", "ledger_category_id", lc.ID, "error", err)
			continue
		}
		fired++
	}
	return fired, nil
}
