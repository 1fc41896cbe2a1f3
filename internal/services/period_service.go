package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"hearth/internal/clock"
	apperrors "hearth/internal/errors"
	"hearth/internal/models"
	"hearth/internal/pagination"
)

// periodService handles budget-plan decomposition and lifecycle.
type periodService struct {
	db    *gorm.DB
	clock clock.Clock
	gate  PermissionGate
}

// NewPeriodService creates a new PeriodServicer.
func NewPeriodService(db *gorm.DB, clk clock.Clock, gate PermissionGate) PeriodServicer {
	return &periodService{db: db, clock: clk, gate: gate}
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayOnOrBefore returns the Monday midnight on or before t.
func mondayOnOrBefore(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// periodRange computes the [start, end) window for a plan. Calendar types
// cover the month/quarter/year containing the anchor day.
func periodRange(periodType models.PeriodType, anchor time.Time, customStart, customEnd *time.Time) (time.Time, time.Time, error) {
	switch periodType {
	case models.PeriodTypeMonthly:
		start := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		return start, start.AddDate(0, 1, 0), nil
	case models.PeriodTypeQuarterly:
		quarterMonth := time.Month((int(anchor.Month())-1)/3*3 + 1)
		start := time.Date(anchor.Year(), quarterMonth, 1, 0, 0, 0, 0, anchor.Location())
		return start, start.AddDate(0, 3, 0), nil
	case models.PeriodTypeYearly:
		start := time.Date(anchor.Year(), 1, 1, 0, 0, 0, 0, anchor.Location())
		return start, start.AddDate(1, 0, 0), nil
	case models.PeriodTypeCustom:
		if customStart == nil || customEnd == nil {
			return time.Time{}, time.Time{}, apperrors.ErrCustomRangeNeeded
		}
		start, end := startOfDay(*customStart), startOfDay(*customEnd)
		if !end.After(start) {
			return time.Time{}, time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "end date must be after start date")
		}
		return start, end, nil
	}
	return time.Time{}, time.Time{}, apperrors.ErrInvalidPeriodType
}

// buildSlices tiles [start, end) with Monday-aligned weekly windows.
// The first and last windows are clipped to the plan boundaries; windows
// that do not overlap the plan are skipped. The resulting count equals
// ceil(days/7).
func buildSlices(start, end time.Time, totalAmount int64, weeklyAmount *int64) []models.WeeklySlice {
	var windows [][2]time.Time
	for cur := mondayOnOrBefore(start); cur.Before(end); cur = cur.AddDate(0, 0, 7) {
		sliceStart, sliceEnd := cur, cur.AddDate(0, 0, 7)
		if sliceStart.Before(start) {
			sliceStart = start
		}
		if sliceEnd.After(end) {
			sliceEnd = end
		}
		if sliceEnd.After(sliceStart) {
			windows = append(windows, [2]time.Time{sliceStart, sliceEnd})
		}
	}

	perSlice := int64(0)
	if weeklyAmount != nil {
		perSlice = *weeklyAmount
	} else if len(windows) > 0 {
		perSlice = totalAmount / int64(len(windows))
	}

	slices := make([]models.WeeklySlice, 0, len(windows))
	for i, w := range windows {
		slices = append(slices, models.WeeklySlice{
			WeekNumber:      i + 1,
			StartDate:       w[0],
			EndDate:         w[1],
			AllocatedAmount: perSlice,
			Status:          models.SliceStatusPending,
		})
	}
	return slices
}

// CreatePeriod creates a budget plan and its weekly slices.
func (s *periodService) CreatePeriod(userID string, in CreatePeriodInput) (*models.PeriodBudget, error) {
	if in.TotalAmount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "total amount must not be negative")
	}

	anchor := s.clock.Now()
	if in.Anchor != nil {
		anchor = *in.Anchor
	}
	start, end, err := periodRange(in.PeriodType, anchor, in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}

	// Verify every allocation's category exists and is visible to the user.
	for _, alloc := range in.Allocations {
		var count int64
		if err := s.db.Model(&models.Category{}).Where("id = ? AND user_id = ?", alloc.CategoryID, userID).Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return nil, apperrors.ErrCategoryNotFound
		}
	}

	period := &models.PeriodBudget{
		UserID:       userID,
		Name:         in.Name,
		PeriodType:   in.PeriodType,
		StartDate:    start,
		EndDate:      end,
		TotalAmount:  in.TotalAmount,
		WeeklyAmount: in.WeeklyAmount,
		Status:       models.PeriodStatusActive,
	}
	for _, alloc := range in.Allocations {
		period.Allocations = append(period.Allocations, models.PeriodAllocation{
			CategoryID: alloc.CategoryID,
			Amount:     alloc.Amount,
			Percent:    alloc.Percent,
		})
	}
	period.Slices = buildSlices(start, end, in.TotalAmount, in.WeeklyAmount)

	if err := s.db.Create(period).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return period, nil
}

// GetUserPeriods returns a paginated list of the user's budget plans.
func (s *periodService) GetUserPeriods(userID string, page pagination.PageRequest, status *models.PeriodStatus) (*pagination.PageResponse[models.PeriodBudget], error) {
	page.Defaults()

	base := s.db.Model(&models.PeriodBudget{}).Where("user_id = ?", userID)
	if status != nil {
		base = base.Where("status = ?", *status)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var periods []models.PeriodBudget
	if err := base.Preload("Slices").Scopes(pagination.Paginate(page)).Order("start_date DESC").Find(&periods).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(periods, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// loadPeriod fetches a plan by ID and checks the caller may act on it.
// A plan owned by someone else yields forbidden, not not-found.
func (s *periodService) loadPeriod(userID, periodID string) (*models.PeriodBudget, error) {
	var period models.PeriodBudget
	if err := s.db.Preload("Allocations").Preload("Slices", func(db *gorm.DB) *gorm.DB {
		return db.Order("week_number ASC")
	}).Where("id = ?", periodID).First(&period).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if period.UserID != userID && !s.gate.MayWrite(userID, period.UserID, "period_budget", period.ID) {
		return nil, apperrors.ErrForbidden
	}
	return &period, nil
}

// GetPeriodByID returns a plan with its allocations and slices.
func (s *periodService) GetPeriodByID(userID, periodID string) (*models.PeriodBudget, error) {
	return s.loadPeriod(userID, periodID)
}

// UpdatePeriodStatus transitions a plan's lifecycle status.
func (s *periodService) UpdatePeriodStatus(userID, periodID string, status models.PeriodStatus) (*models.PeriodBudget, error) {
	period, err := s.loadPeriod(userID, periodID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(period).Update("status", status).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return period, nil
}

// DeletePeriod soft-deletes a plan together with its slices and
// allocations. Materialized ledgers survive: they are the record of what
// actually happened and are only detached from the plan.
func (s *periodService) DeletePeriod(userID, periodID string) error {
	period, err := s.loadPeriod(userID, periodID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.WeeklyLedger{}).Where("period_budget_id = ?", period.ID).Update("period_budget_id", nil).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Where("period_budget_id = ?", period.ID).Delete(&models.WeeklySlice{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Where("period_budget_id = ?", period.ID).Delete(&models.PeriodAllocation{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(period).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// UpdateSliceAmount sets one slice's allocated amount. The plan total is
// not touched; RecalculateTotal re-derives it on request.
func (s *periodService) UpdateSliceAmount(userID, periodID string, weekNumber int, amount int64) (*models.WeeklySlice, error) {
	if amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "allocated amount must not be negative")
	}
	period, err := s.loadPeriod(userID, periodID)
	if err != nil {
		return nil, err
	}

	var slice models.WeeklySlice
	if err := s.db.Where("period_budget_id = ? AND week_number = ?", period.ID, weekNumber).First(&slice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSliceNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.db.Model(&slice).Update("allocated_amount", amount).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &slice, nil
}

// RecalculateTotal re-derives the plan total as the sum of its slices'
// allocated amounts. This is a manual, user-triggered reconciliation.
func (s *periodService) RecalculateTotal(userID, periodID string) (*models.PeriodBudget, error) {
	period, err := s.loadPeriod(userID, periodID)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := s.db.Model(&models.WeeklySlice{}).
		Select("COALESCE(SUM(allocated_amount), 0)").
		Where("period_budget_id = ?", period.ID).
		Scan(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.db.Model(period).Update("total_amount", total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	period.TotalAmount = total
	return period, nil
}

// CleanupFutureSlices deletes the materialized ledger of every slice whose
// start is strictly in the future and resets the slice to pending. Guards
// against a plan accumulating ledger state for weeks that have not
// started. Returns the number of slices reset.
func (s *periodService) CleanupFutureSlices(userID, periodID string) (int, error) {
	period, err := s.loadPeriod(userID, periodID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	reset := 0
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var slices []models.WeeklySlice
		if err := tx.Where("period_budget_id = ? AND start_date > ?", period.ID, now).Find(&slices).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		for i := range slices {
			slice := &slices[i]
			if slice.LedgerID != nil {
				ledgerID := *slice.LedgerID
				if err := tx.Where("ledger_id = ?", ledgerID).Delete(&models.PaymentEntry{}).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
				if err := tx.Where("ledger_id = ?", ledgerID).Delete(&models.LedgerCategory{}).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
				if err := tx.Where("id = ?", ledgerID).Delete(&models.WeeklyLedger{}).Error; err != nil {
					return apperrors.Wrap(apperrors.ErrInternalServer, err)
				}
			}
			updates := map[string]interface{}{
				"ledger_id":    nil,
				"status":       models.SliceStatusPending,
				"spent_amount": 0,
			}
			if err := tx.Model(slice).Updates(updates).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			reset++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}
